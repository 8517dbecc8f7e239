package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buster_retention_runs_total",
			Help: "Total number of retention runs by target and status.",
		},
		[]string{"target", "status"},
	)
	exportsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "buster_retention_exports_deleted_total",
			Help: "Total number of expired export files deleted.",
		},
	)
	auditRowsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "buster_retention_audit_rows_deleted_total",
			Help: "Total number of query audit rows pruned.",
		},
	)
)

func init() {
	prometheus.MustRegister(retentionRunsTotal, exportsDeletedTotal, auditRowsDeletedTotal)
}
