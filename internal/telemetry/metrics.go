package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bootstrap outcomes.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	bootstrapTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogd_bootstrap_total",
		Help: "Catalog bootstraps by result",
	}, []string{"result"})

	bootstrapDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalogd_bootstrap_duration_seconds",
		Help:    "Wall time of a catalog bootstrap",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	builtinsMigrated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalogd_builtins_migrated_total",
		Help: "Built-in objects whose definition changed and were migrated",
	})

	itemsMigrated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalogd_items_migrated_total",
		Help: "Catalog items dropped and recreated by built-in migrations",
	})

	entriesLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalogd_entries",
		Help: "Catalog entries after the last bootstrap by namespace",
	}, []string{"namespace"})
)

// RecordBootstrap counts one bootstrap and observes its duration.
func RecordBootstrap(result string, elapsed time.Duration) {
	bootstrapTotal.WithLabelValues(result).Inc()
	bootstrapDuration.Observe(elapsed.Seconds())
}

// RecordMigration counts the changed built-ins and the items rebuilt for them.
func RecordMigration(builtins, items int) {
	builtinsMigrated.Add(float64(builtins))
	itemsMigrated.Add(float64(items))
}

// RecordEntries sets the entry gauges.
func RecordEntries(system, user int) {
	entriesLoaded.WithLabelValues("system").Set(float64(system))
	entriesLoaded.WithLabelValues("user").Set(float64(user))
}

// WriteTextfile writes every registered metric to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
