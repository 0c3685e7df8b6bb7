// Package exporter publishes the monitor's sample history over HTTP, as
// Prometheus metrics and as JSON. It never polls; it only reads history.
package exporter

import (
	"strconv"
	"time"

	"github.com/Dicklesworthstone/procmon/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "procmon"

// Source is the read-only view of a monitor the exporter needs.
type Source interface {
	History() []model.Sample
	CoreCount() int
	ClockHz() uint64
	Platform() model.PlatformKind
	StartedAt() time.Time
}

// Collector turns the last sample of every scope into metrics at scrape
// time, so scrapes always see the latest poll.
type Collector struct {
	src Source

	cpuPercent  *prometheus.Desc
	cpuSeconds  *prometheus.Desc
	memoryBytes *prometheus.Desc
	duration    *prometheus.Desc
	polledAt    *prometheus.Desc
	cores       *prometheus.Desc
	clockHz     *prometheus.Desc
	startTime   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(src Source) *Collector {
	scopeLabels := []string{"scope", "thread"}
	return &Collector{
		src: src,
		cpuPercent: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "cpu_percent"),
			"CPU utilization between the last two polls of the scope.", scopeLabels, nil),
		cpuSeconds: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "cpu_seconds_total"),
			"Cumulative user and kernel CPU time of the scope.", scopeLabels, nil),
		memoryBytes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "memory_bytes"),
			"Memory reported for the scope at the last poll.", scopeLabels, nil),
		duration: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "poll_interval_seconds"),
			"Wall-clock time covered by the last sample of the scope.", scopeLabels, nil),
		polledAt: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "last_poll_timestamp_seconds"),
			"Unix time of the last poll of the scope.", scopeLabels, nil),
		cores: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "cores"),
			"Logical cores detected at startup.", []string{"platform"}, nil),
		clockHz: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "clock_hz"),
			"Nominal CPU clock rate, 0 when unknown.", nil, nil),
		startTime: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "start_time_seconds"),
			"Unix time the monitor was created.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuPercent
	ch <- c.cpuSeconds
	ch <- c.memoryBytes
	ch <- c.duration
	ch <- c.polledAt
	ch <- c.cores
	ch <- c.clockHz
	ch <- c.startTime
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.cores, prometheus.GaugeValue, float64(c.src.CoreCount()), c.src.Platform().String())
	ch <- prometheus.MustNewConstMetric(c.clockHz, prometheus.GaugeValue, float64(c.src.ClockHz()))
	ch <- prometheus.MustNewConstMetric(c.startTime, prometheus.GaugeValue, float64(c.src.StartedAt().UnixMilli())/1000)

	for _, s := range c.src.History() {
		labels := []string{s.Scope.String(), threadLabel(s)}
		ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, s.CPUPercent, labels...)
		ch <- prometheus.MustNewConstMetric(c.cpuSeconds, prometheus.CounterValue, s.CPUTime, labels...)
		ch <- prometheus.MustNewConstMetric(c.memoryBytes, prometheus.GaugeValue, float64(s.MemoryBytes), labels...)
		ch <- prometheus.MustNewConstMetric(c.duration, prometheus.GaugeValue, float64(s.DurationMs)/1000, labels...)
		ch <- prometheus.MustNewConstMetric(c.polledAt, prometheus.GaugeValue, float64(s.PolledAt)/1000, labels...)
	}
}

func threadLabel(s model.Sample) string {
	if s.Scope == model.ScopeProcess {
		return ""
	}
	return strconv.FormatUint(s.Thread, 10)
}
