// Package metrics provides Prometheus instrumentation for the HelpMeOut server.
//
// All metrics are registered with the default registry through promauto and
// are prefixed with "helpmeout_". The /metrics endpoint is served on a
// separate listener (see METRICS_PORT) so it is never exposed through the
// public API router.
//
// # Metric Categories
//
// HTTP metrics track request counts, durations and in-flight requests per
// normalized route. Database metrics are recorded by every query helper in
// the database package. Upload metrics count received chunks and decoded
// bytes, and time the merge of chunks into the original recording.
// Processing metrics time each step of the post-upload pipeline.
//
// # Collector
//
// Inventory gauges (videos by status, users, sessions) are refreshed by a
// Collector that polls a StatsProvider on a fixed interval:
//
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// InitializeMetrics should be called once at startup so that every label
// combination is exported from the first scrape.
package metrics
