package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal) }

var jobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scheduled_job_runs_total",
		Help: "Background job runs by job name and result.",
	},
	[]string{"job", "result"}, // result: 'ok', 'error'
)

func IncJobRun(job, result string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(result)).Inc()
}
