package schedcore

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported by a Facade. Grounded
// on Generativebots-ocx-backend-go-svc/internal/escrow/metrics.go's
// promauto-constructed *Vec fields: the teacher hand-rolls its own
// latency/queue tracking entirely on the standard library (metrics.go,
// pSquareMultiQuantile), but the retrieval pack carries a real Prometheus
// client, so schedcore uses that for everything that is naturally a
// counter/gauge/histogram an operator would scrape.
type Metrics struct {
	ScheduleYields   *prometheus.CounterVec // by tag
	BackendDecisions *prometheus.CounterVec // by backend, tag
	Divergences      *prometheus.CounterVec // by backend, point
	RecordsEmitted   prometheus.Counter
	ReplayLag        prometheus.Histogram // seconds; running p99 of gaps between successive BEFORE_EXEC_CB points
}

// NewMetrics constructs and registers a fresh set of collectors against
// reg. Passing a dedicated *prometheus.Registry (rather than the global
// default) lets multiple Facade instances coexist in one process/test
// binary without colliding collector names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScheduleYields: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "schedcore_schedule_yields_total",
			Help: "Total number of ThreadYield calls, by schedule-point tag.",
		}, []string{"tag"}),
		BackendDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "schedcore_backend_decisions_total",
			Help: "Total number of decisions made by a backend, by backend name and tag.",
		}, []string{"backend", "tag"}),
		Divergences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "schedcore_divergences_total",
			Help: "Total number of divergence declarations, by backend name and trigger point.",
		}, []string{"backend", "point"}),
		RecordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "schedcore_records_emitted_total",
			Help: "Total number of schedule records written by Emit.",
		}),
		ReplayLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedcore_replay_lag_seconds",
			Help:    "Running p99 estimate of the wall-clock gap between successive BEFORE_EXEC_CB schedule points, observed every 32 samples.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// pSquareQuantile is a streaming single-quantile estimator (Jain &
// Chlamtac, 1985), adapted from the teacher's metrics.go. It is the one
// intentionally stdlib-only piece of the ambient metrics stack: the
// divergence detector updates it from inside the core lock on every
// BEFORE_EXEC_CB it observes, so it must be allocation-free and
// branch-cheap -- a Prometheus Summary/Histogram observation allocates
// and takes its own lock, which is unacceptable on that hot path. See
// DESIGN.md for the full justification.
type pSquareQuantile struct {
	p           float64
	q           [5]float64
	n           [5]int
	np          [5]float64
	dn          [5]float64
	count       int
	initBuffer  [5]float64
	initialized bool
}

func newPSquareQuantile(p float64) *pSquareQuantile {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &pSquareQuantile{p: p, dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1}}
}

func (ps *pSquareQuantile) Update(x float64) {
	ps.count++
	if ps.count <= 5 {
		ps.initBuffer[ps.count-1] = x
		if ps.count == 5 {
			ps.initialize()
		}
		return
	}

	var k int
	switch {
	case x < ps.q[0]:
		ps.q[0] = x
		k = 0
	case x >= ps.q[4]:
		ps.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if ps.q[k] <= x && x < ps.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		ps.n[i]++
	}
	for i := 0; i < 5; i++ {
		ps.np[i] += ps.dn[i]
	}
	for i := 1; i < 4; i++ {
		d := ps.np[i] - float64(ps.n[i])
		if (d >= 1 && ps.n[i+1]-ps.n[i] > 1) || (d <= -1 && ps.n[i-1]-ps.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := ps.parabolic(i, sign)
			if ps.q[i-1] < qPrime && qPrime < ps.q[i+1] {
				ps.q[i] = qPrime
			} else {
				ps.q[i] = ps.linear(i, sign)
			}
			ps.n[i] += sign
		}
	}
}

func (ps *pSquareQuantile) initialize() {
	for i := 1; i < 5; i++ {
		key := ps.initBuffer[i]
		j := i - 1
		for j >= 0 && ps.initBuffer[j] > key {
			ps.initBuffer[j+1] = ps.initBuffer[j]
			j--
		}
		ps.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		ps.q[i] = ps.initBuffer[i]
		ps.n[i] = i
	}
	ps.np = [5]float64{0, 2 * ps.p, 4 * ps.p, 2 + 2*ps.p, 4}
	ps.initialized = true
}

func (ps *pSquareQuantile) parabolic(i, d int) float64 {
	df := float64(d)
	ni, niPrev, niNext := float64(ps.n[i]), float64(ps.n[i-1]), float64(ps.n[i+1])
	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (ps.q[i+1] - ps.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (ps.q[i] - ps.q[i-1]) / (ni - niPrev)
	return ps.q[i] + term1*(term2+term3)
}

func (ps *pSquareQuantile) linear(i, d int) float64 {
	if d == 1 {
		return ps.q[i] + (ps.q[i+1]-ps.q[i])/float64(ps.n[i+1]-ps.n[i])
	}
	return ps.q[i] - (ps.q[i]-ps.q[i-1])/float64(ps.n[i]-ps.n[i-1])
}

func (ps *pSquareQuantile) Quantile() float64 {
	if ps.count == 0 {
		return 0
	}
	if ps.count < 5 {
		sorted := make([]float64, ps.count)
		copy(sorted, ps.initBuffer[:ps.count])
		for i := 1; i < ps.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(math.Min(float64(ps.count-1), float64(ps.count-1)*ps.p))
		return sorted[index]
	}
	return ps.q[2]
}
