package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storeErrorsTotal, draftLoadsTotal, workerTasksTotal) }

var (
	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_errors_total",
			Help: "Store failures swallowed by read paths, by operation.",
		},
		[]string{"op"}, // e.g. 'search', 'search_records', 'live'
	)

	draftLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draft_loads_total",
			Help: "Draft slot reads by result.",
		},
		[]string{"result"}, // 'hit', 'miss', 'corrupt'
	)

	workerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_total",
			Help: "Background tasks by result.",
		},
		[]string{"result"}, // 'ok', 'error', 'rejected'
	)
)

func IncStoreError(op string) {
	storeErrorsTotal.WithLabelValues(norm(op)).Inc()
}

func IncDraftLoad(result string) {
	draftLoadsTotal.WithLabelValues(norm(result)).Inc()
}

func IncWorkerTask(result string) {
	workerTasksTotal.WithLabelValues(norm(result)).Inc()
}
