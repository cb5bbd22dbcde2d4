package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Add(float64)
}

type Histogram interface {
	Observe(float64)
}

// Wrapper gives the pipeline a nil-safe view of the metrics set: every
// accessor returns a usable handle even when metrics are disabled, so
// callers never have to guard instrumentation sites.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) SamplesIngested() Counter    { return w.counter(func(m *Metrics) prometheus.Counter { return m.SamplesIngested }) }
func (w *Wrapper) SamplesRejected() Counter    { return w.counter(func(m *Metrics) prometheus.Counter { return m.SamplesRejected }) }
func (w *Wrapper) DriftEvaluations() Counter   { return w.counter(func(m *Metrics) prometheus.Counter { return m.DriftEvaluations }) }
func (w *Wrapper) AdwinDetections() Counter    { return w.counter(func(m *Metrics) prometheus.Counter { return m.AdwinDetections }) }
func (w *Wrapper) RetrainAttempts() Counter    { return w.counter(func(m *Metrics) prometheus.Counter { return m.RetrainAttempts }) }
func (w *Wrapper) RetrainPromotions() Counter  { return w.counter(func(m *Metrics) prometheus.Counter { return m.RetrainPromotions }) }
func (w *Wrapper) RetrainRejections() Counter  { return w.counter(func(m *Metrics) prometheus.Counter { return m.RetrainRejections }) }
func (w *Wrapper) Predictions() Counter        { return w.counter(func(m *Metrics) prometheus.Counter { return m.Predictions }) }
func (w *Wrapper) PredictionFailures() Counter { return w.counter(func(m *Metrics) prometheus.Counter { return m.PredictionFailures }) }
func (w *Wrapper) ErrorsTotal() Counter        { return w.counter(func(m *Metrics) prometheus.Counter { return m.ErrorsTotal }) }

func (w *Wrapper) DriftScore() Gauge       { return w.gauge(func(m *Metrics) prometheus.Gauge { return m.DriftScore }) }
func (w *Wrapper) ModelAge() Gauge         { return w.gauge(func(m *Metrics) prometheus.Gauge { return m.ModelAge }) }
func (w *Wrapper) ChampionAccuracy() Gauge { return w.gauge(func(m *Metrics) prometheus.Gauge { return m.ChampionAccuracy }) }
func (w *Wrapper) WSClients() Gauge        { return w.gauge(func(m *Metrics) prometheus.Gauge { return m.WSClients }) }

func (w *Wrapper) RetrainDuration() Histogram {
	return w.histogram(func(m *Metrics) prometheus.Histogram { return m.RetrainDuration })
}

func (w *Wrapper) PredictionLatency() Histogram {
	return w.histogram(func(m *Metrics) prometheus.Histogram { return m.PredictionLatency })
}

func (w *Wrapper) counter(pick func(*Metrics) prometheus.Counter) Counter {
	if w == nil || w.m == nil {
		return noopMetric{}
	}
	return &counterWrapper{pick(w.m)}
}

func (w *Wrapper) gauge(pick func(*Metrics) prometheus.Gauge) Gauge {
	if w == nil || w.m == nil {
		return noopMetric{}
	}
	return &gaugeWrapper{pick(w.m)}
}

func (w *Wrapper) histogram(pick func(*Metrics) prometheus.Histogram) Histogram {
	if w == nil || w.m == nil {
		return noopMetric{}
	}
	return &histogramWrapper{pick(w.m)}
}

type counterWrapper struct {
	c prometheus.Counter
}

func (cw *counterWrapper) Inc() {
	cw.c.Inc()
}

func (cw *counterWrapper) Add(v float64) {
	cw.c.Add(v)
}

type gaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *gaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *gaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type histogramWrapper struct {
	h prometheus.Histogram
}

func (hw *histogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}

type noopMetric struct{}

func (noopMetric) Inc()            {}
func (noopMetric) Set(float64)     {}
func (noopMetric) Add(float64)     {}
func (noopMetric) Observe(float64) {}
