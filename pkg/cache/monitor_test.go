package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceSampler(used ...uint64) Sampler {
	i := 0
	return func() (MemorySample, error) {
		u := used[i%len(used)]
		i++
		return MemorySample{Used: u, Limit: 1000}, nil
	}
}

// TestMonitor_Trend tests trend classification
func TestMonitor_Trend(t *testing.T) {
	tests := []struct {
		name     string
		samples  []uint64
		expected Trend
	}{
		{"no samples", nil, TrendStable},
		{"increasing", []uint64{100, 110, 150}, TrendIncreasing},
		{"decreasing", []uint64{300, 250, 200}, TrendDecreasing},
		{"stable", []uint64{100, 103, 105}, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.samples) == 0 {
				m := NewMonitor(DefaultMonitorConfig(), sequenceSampler(0))
				assert.Equal(t, tt.expected, m.Trend())
				return
			}
			m := NewMonitor(DefaultMonitorConfig(), sequenceSampler(tt.samples...))
			for range tt.samples {
				m.Sample()
			}
			assert.Equal(t, tt.expected, m.Trend())
		})
	}
}

// TestMonitor_HistoryBounded tests that history never exceeds its size
func TestMonitor_HistoryBounded(t *testing.T) {
	m := NewMonitor(MonitorConfig{HistorySize: 3}, sequenceSampler(1, 2, 3, 4, 5))
	for i := 0; i < 5; i++ {
		m.Sample()
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, uint64(3), history[0].Used)
	assert.Equal(t, uint64(5), history[2].Used)
}

// TestMonitor_IsCritical tests the utilization threshold
func TestMonitor_IsCritical(t *testing.T) {
	m := NewMonitor(DefaultMonitorConfig(), sequenceSampler(500, 800))

	assert.False(t, m.IsCritical())
	m.Sample()
	assert.False(t, m.IsCritical())
	assert.InDelta(t, 0.5, m.Current().Utilization, 0.0001)
	m.Sample()
	assert.True(t, m.IsCritical())
}

// TestMonitor_SamplerError tests that sampler failures report zeros
func TestMonitor_SamplerError(t *testing.T) {
	m := NewMonitor(DefaultMonitorConfig(), func() (MemorySample, error) {
		return MemorySample{Used: 99}, errors.New("unavailable")
	})

	sample := m.Sample()
	assert.Equal(t, uint64(0), sample.Used)
	assert.False(t, sample.Timestamp.IsZero())
	assert.False(t, m.IsCritical())
}

// TestRuntimeSampler tests reading the live heap
func TestRuntimeSampler(t *testing.T) {
	sample, err := RuntimeSampler()
	require.NoError(t, err)
	assert.Greater(t, sample.Used, uint64(0))
	assert.Greater(t, sample.Limit, uint64(0))
	assert.Less(t, sample.Utilization, 1.0)
}
