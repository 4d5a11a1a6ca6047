package locator

import (
	"sort"
	"time"

	"wisefido-locator/internal/models"
	"wisefido-locator/internal/signalstore"
)

// Aggregator 信号聚合器
// 将滑动窗口内的原始RSSI观测按网关归并为单个稳健值
// 纯读操作，不修改存储（淘汰由存储自身的时间清理负责）
type Aggregator struct {
	store  *signalstore.Store
	window time.Duration
}

// NewAggregator 创建聚合器
func NewAggregator(store *signalstore.Store, window time.Duration) *Aggregator {
	return &Aggregator{
		store:  store,
		window: window,
	}
}

// Aggregate 聚合指定信标在 [now-window, now] 内的观测
// 返回 gatewayID -> AggregatedSignal；样本不足2条的网关被排除而非默认
func (a *Aggregator) Aggregate(beaconID string, now time.Time) map[string]models.AggregatedSignal {
	raw := a.store.Window(beaconID, now, a.window)
	if len(raw) == 0 {
		return nil
	}

	// 按网关分组
	byGateway := make(map[string][]float64)
	for _, sig := range raw {
		byGateway[sig.GatewayID] = append(byGateway[sig.GatewayID], sig.RSSI)
	}

	windowStart := now.Add(-a.window)
	result := make(map[string]models.AggregatedSignal, len(byGateway))
	for gatewayID, values := range byGateway {
		if len(values) < 2 {
			continue // 样本不足，排除该网关
		}
		robust, count := robustRSSI(values)
		result[gatewayID] = models.AggregatedSignal{
			BeaconID:    beaconID,
			GatewayID:   gatewayID,
			RobustRSSI:  robust,
			SampleCount: count,
			WindowStart: windowStart,
			WindowEnd:   now,
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// robustRSSI 四分位距过滤后取中位数
// 先排序使结果与样本到达顺序无关
func robustRSSI(values []float64) (float64, int) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	// 样本太少时四分位数无意义，直接取中位数
	if len(sorted) < 4 {
		return median(sorted), len(sorted)
	}

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	kept := sorted[:0:0]
	for _, v := range sorted {
		if v >= lower && v <= upper {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		// 理论上不会发生（中位数必在界内），保险回退
		kept = sorted
	}
	return median(kept), len(kept)
}

// median 已排序切片的中位数
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile 已排序切片的线性插值百分位数，p取[0,1]
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
