package cache

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
)

// CriticalUtilization is the heap utilization at or above which memory is critical.
const CriticalUtilization = 0.8

// Trend classifies the direction of heap usage across recent samples.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// MemorySample is a single heap usage reading. All sizes are bytes.
type MemorySample struct {
	Timestamp   time.Time `json:"timestamp"`
	Used        uint64    `json:"used"`
	Total       uint64    `json:"total"`
	Limit       uint64    `json:"limit"`
	Utilization float64   `json:"utilization"`
}

// Sampler reads current memory usage.
type Sampler func() (MemorySample, error)

// MonitorConfig configures a Monitor
type MonitorConfig struct {
	HistorySize    int
	TrendWindow    int
	TrendThreshold float64 // relative change that counts as a trend
}

// DefaultMonitorConfig returns the default monitor configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		HistorySize:    100,
		TrendWindow:    10,
		TrendThreshold: 0.1,
	}
}

// Monitor keeps a bounded history of heap samples.
type Monitor struct {
	config  MonitorConfig
	sampler Sampler

	mu      sync.RWMutex
	history []MemorySample
}

// NewMonitor creates a monitor. A nil sampler uses RuntimeSampler.
func NewMonitor(config MonitorConfig, sampler Sampler) *Monitor {
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultMonitorConfig().HistorySize
	}
	if config.TrendWindow <= 1 {
		config.TrendWindow = DefaultMonitorConfig().TrendWindow
	}
	if config.TrendThreshold <= 0 {
		config.TrendThreshold = DefaultMonitorConfig().TrendThreshold
	}
	if sampler == nil {
		sampler = RuntimeSampler
	}
	return &Monitor{config: config, sampler: sampler}
}

// Sample takes a reading and appends it to the history. A failing sampler
// yields a zero reading rather than an error.
func (m *Monitor) Sample() MemorySample {
	sample, err := m.sampler()
	if err != nil {
		sample = MemorySample{}
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	if sample.Limit > 0 && sample.Utilization == 0 {
		sample.Utilization = float64(sample.Used) / float64(sample.Limit)
	}

	m.mu.Lock()
	m.history = append(m.history, sample)
	if over := len(m.history) - m.config.HistorySize; over > 0 {
		m.history = append(m.history[:0:0], m.history[over:]...)
	}
	m.mu.Unlock()

	return sample
}

// Current returns the latest sample, or a zero sample if none was taken.
func (m *Monitor) Current() MemorySample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.history) == 0 {
		return MemorySample{}
	}
	return m.history[len(m.history)-1]
}

// History returns a copy of the retained samples, oldest first.
func (m *Monitor) History() []MemorySample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MemorySample(nil), m.history...)
}

// Trend compares the first and last sample of the trailing window.
func (m *Monitor) Trend() Trend {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.history)
	if n < 2 {
		return TrendStable
	}
	start := n - m.config.TrendWindow
	if start < 0 {
		start = 0
	}
	first := float64(m.history[start].Used)
	last := float64(m.history[n-1].Used)
	if first == 0 {
		if last > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (last - first) / first
	switch {
	case change > m.config.TrendThreshold:
		return TrendIncreasing
	case change < -m.config.TrendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// IsCritical reports whether the latest utilization is at or above CriticalUtilization.
func (m *Monitor) IsCritical() bool {
	return m.Current().Utilization >= CriticalUtilization
}

// RuntimeSampler reads the Go heap. The limit is the soft memory limit when one
// is set, otherwise total system memory.
func RuntimeSampler() (MemorySample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	sample := MemorySample{
		Timestamp: time.Now(),
		Used:      ms.HeapAlloc,
		Total:     ms.HeapSys,
	}

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		sample.Limit = uint64(limit)
	} else {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return MemorySample{}, err
		}
		sample.Limit = vm.Total
	}
	if sample.Limit > 0 {
		sample.Utilization = float64(sample.Used) / float64(sample.Limit)
	}
	return sample, nil
}
