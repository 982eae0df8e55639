// Package processor runs post-upload processing for finished recordings.
//
// Each submitted job runs in its own goroutine and walks through a fixed
// pipeline: validate, probe, compress, thumbnail, audio, transcript and an
// optional archive upload. A failure in any step before archiving marks the
// video failed and stops the pipeline. There are no retries.
//
// Config.Workers bounds how many pipelines run at once. Extra jobs wait for
// a slot without blocking Submit.
//
// All jobs share a service context owned by the Processor. Shutdown stops
// accepting work, waits for in-flight jobs, and cancels the context (which
// kills running ffmpeg subprocesses) if the caller's deadline passes first.
package processor
