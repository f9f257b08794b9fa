package metrics

import (
	"sync"
	"time"
)

// maxSamples bounds each latency/size series so long-running processes do
// not grow without limit. Newest observations win.
const maxSamples = 100

type sizeObservation struct {
	value     float64
	timestamp time.Time
}

// MetricsCollector is an in-process metrics sink: signing counts, signed
// artifact sizes and operation latencies, surfaced on GET /metrics.
type MetricsCollector struct {
	mutex     sync.RWMutex
	counters  map[string]map[string]int64
	latencies map[string][]time.Duration
	sizes     map[string][]sizeObservation
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]map[string]int64),
		latencies: make(map[string][]time.Duration),
		sizes:     make(map[string][]sizeObservation),
	}
}

func (mc *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	labelKey := "default"
	for k, v := range labels {
		labelKey = k + ":" + v
		break
	}

	if _, exists := mc.counters[name]; !exists {
		mc.counters[name] = make(map[string]int64)
	}
	mc.counters[name][labelKey]++
}

func (mc *MetricsCollector) ObserveLatency(name string, duration time.Duration) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	series := append(mc.latencies[name], duration)
	if len(series) > maxSamples {
		series = series[len(series)-maxSamples:]
	}
	mc.latencies[name] = series
}

func (mc *MetricsCollector) ObserveSize(name string, size float64) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	series := append(mc.sizes[name], sizeObservation{value: size, timestamp: time.Now()})
	if len(series) > maxSamples {
		series = series[len(series)-maxSamples:]
	}
	mc.sizes[name] = series
}

func (mc *MetricsCollector) GetCounters() map[string]map[string]int64 {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	counters := make(map[string]map[string]int64, len(mc.counters))
	for name, labels := range mc.counters {
		counters[name] = make(map[string]int64, len(labels))
		for label, value := range labels {
			counters[name][label] = value
		}
	}
	return counters
}

func (mc *MetricsCollector) GetLatencies() map[string]map[string]float64 {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	result := make(map[string]map[string]float64, len(mc.latencies))
	for name, durations := range mc.latencies {
		if len(durations) == 0 {
			continue
		}

		var sum, max time.Duration
		for _, d := range durations {
			sum += d
			if d > max {
				max = d
			}
		}
		result[name] = map[string]float64{
			"avg_ms": float64(sum) / float64(len(durations)) / float64(time.Millisecond),
			"max_ms": float64(max) / float64(time.Millisecond),
		}
	}
	return result
}

func (mc *MetricsCollector) GetSizes() map[string]map[string]float64 {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()

	result := make(map[string]map[string]float64, len(mc.sizes))
	for name, observations := range mc.sizes {
		if len(observations) == 0 {
			continue
		}

		var sum, max float64
		for _, obs := range observations {
			sum += obs.value
			if obs.value > max {
				max = obs.value
			}
		}
		result[name] = map[string]float64{
			"avg_bytes": sum / float64(len(observations)),
			"max_bytes": max,
		}
	}
	return result
}
