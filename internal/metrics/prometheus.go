package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mealsync"

// Prometheus is a Recorder backed by client_golang collectors.
type Prometheus struct {
	reads         *prometheus.CounterVec
	writes        *prometheus.CounterVec
	remoteChanges prometheus.Counter
	migrations    *prometheus.CounterVec
	domainEvents  *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "reads_total",
			Help:      "Key-value reads by result.",
		}, []string{"result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "writes_total",
			Help:      "Key-value writes by result.",
		}, []string{"result"}),
		remoteChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "remote_changes_total",
			Help:      "Change events received from other tabs.",
		}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "namespace",
			Name:      "migrations_total",
			Help:      "Legacy keys copied into per-user keys, by entity kind.",
		}, []string{"kind"}),
		domainEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events published, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(p.reads, p.writes, p.remoteChanges, p.migrations, p.domainEvents)
	return p
}

func (p *Prometheus) IncRead(result string)      { p.reads.WithLabelValues(result).Inc() }
func (p *Prometheus) IncWrite(result string)     { p.writes.WithLabelValues(result).Inc() }
func (p *Prometheus) IncRemoteChange()           { p.remoteChanges.Inc() }
func (p *Prometheus) IncMigration(kind string)   { p.migrations.WithLabelValues(kind).Inc() }
func (p *Prometheus) IncDomainEvent(kind string) { p.domainEvents.WithLabelValues(kind).Inc() }
