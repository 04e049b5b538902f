// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总抢票服务对外暴露的 Prometheus 指标
type Metrics struct {
	GrabTotal                *prometheus.CounterVec
	GrabDuration             prometheus.Histogram
	CompensationTotal        *prometheus.CounterVec
	ScheduleFailures         prometheus.Counter
	CompensationDeadLettered prometheus.Counter
}

// New 创建指标并注册到 reg。reg 为 nil 时只创建不注册（测试用）。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GrabTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket",
			Name:      "grab_total",
			Help:      "Ticket grab attempts partitioned by result.",
		}, []string{"result"}),
		GrabDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ticket",
			Name:      "grab_duration_seconds",
			Help:      "Latency of the synchronous grab path.",
			Buckets:   prometheus.DefBuckets,
		}),
		CompensationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticket",
			Name:      "compensation_total",
			Help:      "Fired compensation tasks partitioned by outcome.",
		}, []string{"outcome"}),
		ScheduleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticket",
			Name:      "compensation_schedule_failures_total",
			Help:      "Reservations whose compensation task could not be scheduled.",
		}),
		CompensationDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ticket",
			Name:      "compensation_dead_lettered_total",
			Help:      "Compensation tasks moved to the dead letter topic.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.GrabTotal, m.GrabDuration, m.CompensationTotal, m.ScheduleFailures, m.CompensationDeadLettered)
	}
	return m
}
