package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TranscodingJobsTotal counts finished jobs by result (completed, failed).
	TranscodingJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelhouse_transcoding_jobs_total",
		Help: "Transcoding jobs finished by the worker, by result",
	}, []string{"result"})

	TranscodingJobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reelhouse_transcoding_job_duration_seconds",
		Help:    "Wall time from claim to completion or failure of a transcoding job",
		Buckets: []float64{1, 2, 3, 5, 10, 30, 60, 120, 300, 600},
	})

	WorkerTickErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelhouse_transcoding_worker_tick_errors_total",
		Help: "Worker ticks that failed before a job could be claimed",
	})

	PlaybackTokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelhouse_playback_tokens_issued_total",
		Help: "Playback tokens issued",
	})

	PlaybackTokenRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelhouse_playback_token_rejections_total",
		Help: "Stream requests rejected because the playback token did not verify",
	})

	// ViewCommitsTotal counts view crediting attempts by outcome.
	ViewCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelhouse_view_commits_total",
		Help: "View crediting attempts by outcome",
	}, []string{"outcome"})

	ViewCommitErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelhouse_view_commit_errors_total",
		Help: "View crediting attempts that failed against the store",
	})
)

func ObserveJobFinished(result string, duration time.Duration) {
	TranscodingJobsTotal.WithLabelValues(result).Inc()
	TranscodingJobDuration.Observe(duration.Seconds())
}

func ObserveViewCommit(outcome string) {
	ViewCommitsTotal.WithLabelValues(outcome).Inc()
}
