// Package metrics exports board and directory counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-packedserial/board"
)

const namespace = "packedserial"

// NewRegistry creates a custom Prometheus registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler returns the metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Boards is the set of live board sessions.
type Boards interface {
	Range(fn func(b *board.Board) bool)
}

// DirectoryStats is the directory side of the collector.
type DirectoryStats interface {
	Len() int
	Dropped() uint64
	MirrorErrors() uint64
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(m *board.Metrics) uint64
}

// Collector reads board session counters on every scrape. Counters are labelled by board id, so
// a board that is pruned and paired again restarts its series.
type Collector struct {
	boards   Boards
	dir      DirectoryStats
	counters []counterDesc
	state    *prometheus.Desc
	things   *prometheus.Desc
	dropped  *prometheus.Desc
	mirror   *prometheus.Desc
	boardsN  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector. dir may be nil.
func NewCollector(boards Boards, dir DirectoryStats) *Collector {
	label := []string{"board"}
	counter := func(name string, help string, value func(m *board.Metrics) uint64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "board", name), help, label, nil),
			value: value,
		}
	}

	return &Collector{
		boards: boards,
		dir:    dir,
		counters: []counterDesc{
			counter("frames_sent_total", "Frames written to the board.",
				func(m *board.Metrics) uint64 { return m.FrameSendCount.Load() }),
			counter("frames_received_total", "Frames received from the board.",
				func(m *board.Metrics) uint64 { return m.FrameRecvCount.Load() }),
			counter("frame_errors_total", "Frames dropped for framing or decode errors.",
				func(m *board.Metrics) uint64 { return m.FrameErrCount.Load() }),
			counter("out_of_order_total", "Sessions ended by an out-of-order response.",
				func(m *board.Metrics) uint64 { return m.OutOfOrderCount.Load() }),
			counter("timeouts_total", "Sessions ended by a response timeout.",
				func(m *board.Metrics) uint64 { return m.TimeoutCount.Load() }),
			counter("status_updates_total", "Property status updates applied.",
				func(m *board.Metrics) uint64 { return m.StatusUpdateCount.Load() }),
			counter("things_revealed_total", "Things revealed to the directory.",
				func(m *board.Metrics) uint64 { return m.ThingRevealCount.Load() }),
			counter("connects_total", "Times the transport was opened.",
				func(m *board.Metrics) uint64 { return m.ConnectCount.Load() }),
		},
		state: prometheus.NewDesc(prometheus.BuildFQName(namespace, "board", "state"),
			"Current board state, 1 for the active state.", []string{"board", "state"}, nil),
		boardsN: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "boards"),
			"Registered boards.", nil, nil),
		things: prometheus.NewDesc(prometheus.BuildFQName(namespace, "directory", "things"),
			"Things in the directory.", nil, nil),
		dropped: prometheus.NewDesc(prometheus.BuildFQName(namespace, "directory", "dropped_changes_total"),
			"Change notifications dropped for slow subscribers.", nil, nil),
		mirror: prometheus.NewDesc(prometheus.BuildFQName(namespace, "directory", "mirror_errors_total"),
			"Failed directory mirror operations.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.state
	ch <- c.boardsN
	ch <- c.things
	ch <- c.dropped
	ch <- c.mirror
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	n := 0
	c.boards.Range(func(b *board.Board) bool {
		n++
		m := b.Metrics()
		for _, cd := range c.counters {
			ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(m)), b.ID())
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, 1, b.ID(), b.State().String())

		return true
	})
	ch <- prometheus.MustNewConstMetric(c.boardsN, prometheus.GaugeValue, float64(n))

	if c.dir == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.things, prometheus.GaugeValue, float64(c.dir.Len()))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(c.dir.Dropped()))
	ch <- prometheus.MustNewConstMetric(c.mirror, prometheus.CounterValue, float64(c.dir.MirrorErrors()))
}

// HTTPMetrics counts API requests.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Limited  prometheus.Counter
}

// NewHTTPMetrics registers and returns the API metrics.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		Limited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Property commands rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.Requests, m.Limited)

	return m
}
