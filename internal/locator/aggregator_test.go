package locator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-locator/internal/models"
	"wisefido-locator/internal/signalstore"
)

func appendSignals(store *signalstore.Store, beaconID, gatewayID string, now time.Time, rssis ...float64) {
	for i, rssi := range rssis {
		store.Append(models.RawSignal{
			BeaconID:   beaconID,
			GatewayID:  gatewayID,
			RSSI:       rssi,
			ObservedAt: now.Add(-time.Duration(i) * 100 * time.Millisecond),
		})
	}
}

func TestAggregator_MedianOfWindow(t *testing.T) {
	store := signalstore.NewStore(30 * time.Second)
	agg := NewAggregator(store, 5*time.Second)
	now := time.Now()

	appendSignals(store, "beacon-1", "gw-1", now, -70, -72, -68)

	result := agg.Aggregate("beacon-1", now)
	require.Len(t, result, 1)
	sig := result["gw-1"]
	assert.Equal(t, -70.0, sig.RobustRSSI)
	assert.Equal(t, 3, sig.SampleCount)
	assert.Equal(t, "beacon-1", sig.BeaconID)
}

func TestAggregator_IQROutlierRejection(t *testing.T) {
	store := signalstore.NewStore(30 * time.Second)
	agg := NewAggregator(store, 5*time.Second)
	now := time.Now()

	// 一条-120的离群值应被四分位距过滤掉
	appendSignals(store, "beacon-1", "gw-1", now, -70, -71, -69, -70, -72, -120)

	result := agg.Aggregate("beacon-1", now)
	require.Len(t, result, 1)
	sig := result["gw-1"]
	assert.Equal(t, -70.0, sig.RobustRSSI)
	assert.Equal(t, 5, sig.SampleCount)
}

func TestAggregator_InsufficientSamplesExcluded(t *testing.T) {
	store := signalstore.NewStore(30 * time.Second)
	agg := NewAggregator(store, 5*time.Second)
	now := time.Now()

	appendSignals(store, "beacon-1", "gw-1", now, -70, -72)
	appendSignals(store, "beacon-1", "gw-2", now, -65) // 仅1条，排除

	result := agg.Aggregate("beacon-1", now)
	require.Len(t, result, 1)
	assert.Contains(t, result, "gw-1")
	assert.NotContains(t, result, "gw-2")
}

func TestAggregator_EmptyWindow(t *testing.T) {
	store := signalstore.NewStore(30 * time.Second)
	agg := NewAggregator(store, 5*time.Second)
	now := time.Now()

	assert.Nil(t, agg.Aggregate("beacon-unknown", now))

	// 窗口外的观测不计入
	store.Append(models.RawSignal{
		BeaconID:   "beacon-1",
		GatewayID:  "gw-1",
		RSSI:       -70,
		ObservedAt: now.Add(-time.Minute),
	})
	assert.Nil(t, agg.Aggregate("beacon-1", now))
}

func TestAggregator_OrderIndependent(t *testing.T) {
	now := time.Now()
	values := []float64{-70, -71, -69, -75, -68, -72, -110, -70}

	aggregateOf := func(vals []float64) float64 {
		store := signalstore.NewStore(30 * time.Second)
		agg := NewAggregator(store, 5*time.Second)
		appendSignals(store, "beacon-1", "gw-1", now, vals...)
		result := agg.Aggregate("beacon-1", now)
		require.Len(t, result, 1)
		return result["gw-1"].RobustRSSI
	}

	expected := aggregateOf(values)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]float64, len(values))
		copy(shuffled, values)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, expected, aggregateOf(shuffled))
	}
}
