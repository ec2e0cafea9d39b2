package db

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	reg        prometheus.Registerer
	collectors []prometheus.Collector

	commits        prometheus.Counter
	emptyCommits   prometheus.Counter
	aborts         prometheus.Counter
	commitFailures prometheus.Counter
	commitLatency  prometheus.Histogram
	lockWait       prometheus.Histogram
}

func newMetrics(db *Database, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		reg: reg,
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cowdb",
			Name:      "commits_total",
			Help:      "Write transactions which committed a new version.",
		}),
		emptyCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cowdb",
			Name:      "empty_commits_total",
			Help:      "Write transactions which committed without changes.",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cowdb",
			Name:      "aborts_total",
			Help:      "Write transactions which were aborted.",
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cowdb",
			Name:      "commit_failures_total",
			Help:      "Commits which failed to write to the backend.",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cowdb",
			Name:      "commit_seconds",
			Help:      "Time to durably commit a version.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cowdb",
			Name:      "writer_wait_seconds",
			Help:      "Time spent waiting for the writer lock.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12),
		}),
	}

	m.collectors = []prometheus.Collector{
		m.commits, m.emptyCommits, m.aborts, m.commitFailures, m.commitLatency, m.lockWait,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cowdb",
			Name:      "live_versions",
			Help:      "Versions held by a transaction, plus the head.",
		}, func() float64 {
			return float64(db.store.Stats().Live)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cowdb",
			Name:      "pending_pages",
			Help:      "Superseded pages still reachable from a live version.",
		}, func() float64 {
			return float64(db.store.Stats().Pending)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "cowdb",
			Name:      "reclaimed_pages_total",
			Help:      "Superseded pages which were reclaimed.",
		}, func() float64 {
			return float64(db.store.Stats().Reclaimed)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "cowdb",
			Name:      "page_reads_total",
			Help:      "Pages read from the backend.",
		}, func() float64 {
			return float64(db.pager.Stats().Reads)
		}),
	}

	if reg != nil {
		for idx, c := range m.collectors {
			err := reg.Register(c)
			if err != nil {
				for _, c := range m.collectors[:idx] {
					reg.Unregister(c)
				}
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *metrics) unregister() {
	if m.reg == nil {
		return
	}
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
}
