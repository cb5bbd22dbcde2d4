package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestWrapper_CounterOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	counter := wrapper.SamplesIngested()
	if counter == nil {
		t.Fatal("SamplesIngested returned nil counter")
	}

	initialValue := testutil.ToFloat64(metrics.SamplesIngested)
	if initialValue != 0 {
		t.Errorf("Expected initial counter value 0, got %f", initialValue)
	}

	counter.Inc()
	counter.Inc()
	finalValue := testutil.ToFloat64(metrics.SamplesIngested)
	if finalValue != 2 {
		t.Errorf("Expected counter value 2 after increments, got %f", finalValue)
	}

	counter.Add(3)
	added := testutil.ToFloat64(metrics.SamplesIngested)
	if added != 5 {
		t.Errorf("Expected counter value 5 after add, got %f", added)
	}
}

func TestWrapper_GaugeOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	scoreGauge := wrapper.DriftScore()
	if scoreGauge == nil {
		t.Fatal("DriftScore returned nil gauge")
	}

	scoreGauge.Set(72.5)
	value := testutil.ToFloat64(metrics.DriftScore)
	if value != 72.5 {
		t.Errorf("Expected gauge value 72.5, got %f", value)
	}

	scoreGauge.Add(-10.0)
	newValue := testutil.ToFloat64(metrics.DriftScore)
	if newValue != 62.5 {
		t.Errorf("Expected gauge value 62.5 after add, got %f", newValue)
	}
}

func TestWrapper_HistogramOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	latencyHist := wrapper.PredictionLatency()
	if latencyHist == nil {
		t.Fatal("PredictionLatency returned nil histogram")
	}

	// Observations should not panic; exact bucket values are not asserted.
	for _, value := range []float64{0.0001, 0.001, 0.01, 0.05} {
		latencyHist.Observe(value)
	}
}

func TestWrapper_NilSafe(t *testing.T) {
	// A nil wrapper (metrics disabled) must still hand out usable handles.
	var wrapper *Wrapper

	wrapper.SamplesIngested().Inc()
	wrapper.AdwinDetections().Add(2)
	wrapper.DriftScore().Set(50)
	wrapper.RetrainDuration().Observe(1.5)

	wrapped := NewWrapper(nil)
	wrapped.ErrorsTotal().Inc()
	wrapped.ModelAge().Set(3600)
}

func TestWrapper_ConcurrentAccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.Predictions().Inc()
				wrapper.PredictionLatency().Observe(0.01)
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	predictions := testutil.ToFloat64(metrics.Predictions)
	if predictions != 1000.0 {
		t.Errorf("Expected 1000 predictions after concurrent access, got %f", predictions)
	}
}

func BenchmarkWrapper_PredictionsInc(b *testing.B) {
	registry := prometheus.NewRegistry()
	wrapper := NewWrapper(NewWithRegistry(registry))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.Predictions().Inc()
	}
}
