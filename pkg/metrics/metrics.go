package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_operations_total",
		Help: "Operaciones del coordinador por tipo y resultado",
	}, []string{"kind", "outcome"})

	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_ledger_operation_latency_seconds",
		Help:    "Latencia de las operaciones del coordinador",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_ledger_lock_wait_seconds",
		Help:    "Espera por el bloqueo exclusivo de un producto",
		Buckets: prometheus.DefBuckets,
	})

	LockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_ledger_lock_conflicts_total",
		Help: "Bloqueos de producto no obtenidos dentro del timeout",
	})

	EntriesAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_entries_appended_total",
		Help: "Asientos insertados en el libro por tipo de movimiento",
	}, []string{"movement_type"})

	AlertsEvaluatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_alerts_evaluated_total",
		Help: "Evaluaciones de alerta por estado resultante",
	}, []string{"state"})

	MigrationItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_migration_items_total",
		Help: "Productos procesados por la migración del contador legado",
	}, []string{"result"})

	EventsPublishFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_ledger_events_publish_failed_total",
		Help: "Eventos de stock que no se pudieron publicar",
	})
)

// Handler expone el registro por defecto en formato Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}
