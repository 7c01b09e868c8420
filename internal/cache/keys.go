package cache

// Versioned key builders so a format change never reads stale entries.

func WorkerStatsKey() string {
	return "worker:stats:v1"
}

func WorkerQueueStatsKey() string {
	return "worker:queue_stats:v1"
}
