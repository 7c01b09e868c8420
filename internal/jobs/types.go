package jobs

type JobType string

const (
	JobHealthCheck      JobType = "health_check"
	JobCleanupSnapshots JobType = "cleanup_snapshots"
	JobMetricsRollup    JobType = "metrics_rollup"
)

// check to see if the job type is a known constant

func (t JobType) IsValid() bool {
	switch t {
	case JobHealthCheck, JobCleanupSnapshots, JobMetricsRollup:
		return true
	default:
		return false
	}
}
