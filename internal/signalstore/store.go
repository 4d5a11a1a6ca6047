package signalstore

import (
	"sync"
	"time"

	"wisefido-locator/internal/models"
)

// Store 原始信号内存存储
// 按信标分桶保存最近的RSSI观测，供聚合器按时间窗读取
// 写入（MQTT消费协程）与读取（调度器协程）并发安全
type Store struct {
	mu        sync.RWMutex
	signals   map[string][]models.RawSignal // key: beaconID
	retention time.Duration
}

// NewStore 创建信号存储
// retention: 单条观测的最长保留时间，超过后在下次清理时淘汰
func NewStore(retention time.Duration) *Store {
	return &Store{
		signals:   make(map[string][]models.RawSignal),
		retention: retention,
	}
}

// Append 追加一条原始信号观测
func (s *Store) Append(sig models.RawSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[sig.BeaconID] = append(s.signals[sig.BeaconID], sig)
}

// AppendBatch 批量追加（单网关一次上报的多个信标观测）
func (s *Store) AppendBatch(sigs []models.RawSignal) {
	if len(sigs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range sigs {
		s.signals[sig.BeaconID] = append(s.signals[sig.BeaconID], sig)
	}
}

// Window 返回指定信标在 [now-window, now] 内的观测快照
// 返回副本，调用方可安全持有
func (s *Store) Window(beaconID string, now time.Time, window time.Duration) []models.RawSignal {
	cutoff := now.Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.signals[beaconID]
	var out []models.RawSignal
	for _, sig := range bucket {
		if !sig.ObservedAt.Before(cutoff) && !sig.ObservedAt.After(now) {
			out = append(out, sig)
		}
	}
	return out
}

// ActiveBeacons 返回当前持有观测的信标ID列表
func (s *Store) ActiveBeacons() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.signals))
	for id := range s.signals {
		ids = append(ids, id)
	}
	return ids
}

// Evict 淘汰超过保留时间的观测，返回淘汰条数
// 空桶一并移除，避免map无限增长
func (s *Store) Evict(now time.Time) int {
	cutoff := now.Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, bucket := range s.signals {
		// 观测按到达顺序追加，时间戳大体有序，但乱序到达也必须正确淘汰
		kept := bucket[:0]
		for _, sig := range bucket {
			if sig.ObservedAt.Before(cutoff) {
				evicted++
			} else {
				kept = append(kept, sig)
			}
		}
		if len(kept) == 0 {
			delete(s.signals, id)
		} else {
			s.signals[id] = kept
		}
	}
	return evicted
}

// Size 返回当前持有的观测总数
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, bucket := range s.signals {
		total += len(bucket)
	}
	return total
}
