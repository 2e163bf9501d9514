package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolCollector exports pgxpool statistics at scrape time.
type PoolCollector struct {
	stat func() *pgxpool.Stat

	totalConns    *prometheus.Desc
	acquiredConns *prometheus.Desc
	idleConns     *prometheus.Desc
	maxConns      *prometheus.Desc
	acquireCount  *prometheus.Desc
	acquireWait   *prometheus.Desc
	emptyAcquire  *prometheus.Desc
	canceled      *prometheus.Desc
}

func NewPoolCollector(p *Pool) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("soe", "db_pool", name), help, nil, nil)
	}
	return &PoolCollector{
		stat:          p.pool.Stat,
		totalConns:    desc("total_connections", "Connections currently open"),
		acquiredConns: desc("acquired_connections", "Connections checked out of the pool"),
		idleConns:     desc("idle_connections", "Idle connections in the pool"),
		maxConns:      desc("max_connections", "Configured pool size"),
		acquireCount:  desc("acquires_total", "Successful connection acquisitions"),
		acquireWait:   desc("acquire_wait_seconds_total", "Time spent waiting for a connection"),
		emptyAcquire:  desc("empty_acquires_total", "Acquisitions that had to wait because the pool was empty"),
		canceled:      desc("canceled_acquires_total", "Acquisitions canceled by their context"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.totalConns, c.acquiredConns, c.idleConns, c.maxConns,
		c.acquireCount, c.acquireWait, c.emptyAcquire, c.canceled,
	} {
		ch <- d
	}
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, s.AcquireDuration().Seconds())
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.canceled, prometheus.CounterValue, float64(s.CanceledAcquireCount()))
}
