package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"helpmeout/internal/database"
	"helpmeout/internal/logging"
	"helpmeout/internal/metrics"
	"helpmeout/internal/transcoder"
	"helpmeout/internal/transcript"
)

// ErrStopped is returned by Submit after Shutdown has been called.
var ErrStopped = errors.New("processor is shut down")

// Store persists processing results.
type Store interface {
	SaveArtifacts(ctx context.Context, id string, a database.Artifacts) error
	MarkVideoFailed(ctx context.Context, id, reason string) error
}

// Transcoder runs the media steps.
type Transcoder interface {
	IsValidVideo(ctx context.Context, input string) (bool, error)
	Duration(ctx context.Context, input string) (float64, error)
	Compress(ctx context.Context, input, output string) error
	ExtractThumbnail(ctx context.Context, input, output string, offset time.Duration) error
	ExtractAudio(ctx context.Context, input, output string) error
}

// Transcriber converts extracted audio to text.
type Transcriber interface {
	Enabled() bool
	Transcribe(ctx context.Context, audioPath string) (*transcript.Response, error)
}

// Archiver copies finished files to long-term storage.
type Archiver interface {
	Upload(ctx context.Context, key, path string) error
}

// Config holds processing options.
type Config struct {
	ThumbnailWidth  int
	ThumbnailHeight int
	// Workers bounds how many jobs run at once. 0 means 1.
	Workers int
}

// Job identifies a merged recording awaiting processing.
type Job struct {
	VideoID  string
	Username string
	// Input is the merged original file.
	Input string
}

// Processor runs jobs in the background.
type Processor struct {
	store       Store
	transcoder  Transcoder
	transcriber Transcriber
	archiver    Archiver
	config      Config
	slots       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New creates a Processor. transcriber and archiver may be nil.
func New(store Store, tc Transcoder, transcriber Transcriber, archiver Archiver, config Config) *Processor {
	if config.Workers < 1 {
		config.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		slots:       semaphore.NewWeighted(int64(config.Workers)),
		store:       store,
		transcoder:  tc,
		transcriber: transcriber,
		archiver:    archiver,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Submit starts processing job in the background.
func (p *Processor) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}

	p.wg.Add(1)
	metrics.ProcessingJobsQueued.Inc()
	go func() {
		defer p.wg.Done()
		err := p.slots.Acquire(p.ctx, 1)
		metrics.ProcessingJobsQueued.Dec()
		if err != nil {
			// Cancelled while waiting for a slot during shutdown.
			logging.Warn("Processing of video %s abandoned: %v", job.VideoID, err)
			if markErr := p.store.MarkVideoFailed(context.Background(), job.VideoID, "processing cancelled"); markErr != nil {
				logging.Error("Failed to mark video %s failed: %v", job.VideoID, markErr)
			}
			return
		}
		defer p.slots.Release(1)

		if err := p.Process(p.ctx, job); err != nil {
			logging.Error("Processing failed for video %s: %v", job.VideoID, err)
		}
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for running ones. If ctx expires
// first, running jobs are cancelled and Shutdown waits for them to unwind.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		logging.Warn("Processing did not finish before shutdown deadline, cancelling in-flight jobs")
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Process runs the pipeline for job synchronously. On failure the video is
// marked failed and the error returned.
func (p *Processor) Process(ctx context.Context, job Job) (err error) {
	start := time.Now()
	metrics.ProcessingJobsInProgress.Inc()
	defer metrics.ProcessingJobsInProgress.Dec()

	logging.Info("Processing video %s for %s", job.VideoID, job.Username)

	defer func() {
		if err == nil {
			metrics.ProcessingJobsTotal.WithLabelValues("success").Inc()
			logging.Info("Processed video %s in %v", job.VideoID, time.Since(start).Round(time.Millisecond))
			return
		}
		metrics.ProcessingJobsTotal.WithLabelValues("failed").Inc()
		if markErr := p.store.MarkVideoFailed(context.WithoutCancel(ctx), job.VideoID, err.Error()); markErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to mark video failed: %w", markErr))
		}
	}()

	dir := filepath.Dir(job.Input)
	artifacts := database.Artifacts{
		CompressedLocation: filepath.Join(dir, "compressed_"+job.VideoID+".mp4"),
		ThumbnailLocation:  filepath.Join(dir, "thumbnail_"+job.VideoID+".jpg"),
		AudioLocation:      filepath.Join(dir, "audio_"+job.VideoID+".mp3"),
	}

	if err = step(ctx, "validate", func(ctx context.Context) error {
		valid, err := p.transcoder.IsValidVideo(ctx, job.Input)
		if err != nil {
			return err
		}
		if !valid {
			return errors.New("recording is not a valid video")
		}
		return nil
	}); err != nil {
		return err
	}

	if err = step(ctx, "probe", func(ctx context.Context) error {
		length, err := p.transcoder.Duration(ctx, job.Input)
		artifacts.VideoLength = length
		return err
	}); err != nil {
		return err
	}

	if err = step(ctx, "compress", func(ctx context.Context) error {
		return p.transcoder.Compress(ctx, job.Input, artifacts.CompressedLocation)
	}); err != nil {
		return err
	}

	if err = step(ctx, "thumbnail", func(ctx context.Context) error {
		offset := transcoder.ThumbnailOffset(artifacts.VideoLength)
		if err := p.transcoder.ExtractThumbnail(ctx, job.Input, artifacts.ThumbnailLocation, offset); err != nil {
			return err
		}
		if p.config.ThumbnailWidth > 0 && p.config.ThumbnailHeight > 0 {
			return transcoder.ResizeThumbnail(artifacts.ThumbnailLocation, p.config.ThumbnailWidth, p.config.ThumbnailHeight)
		}
		return nil
	}); err != nil {
		return err
	}

	if err = step(ctx, "audio", func(ctx context.Context) error {
		return p.transcoder.ExtractAudio(ctx, job.Input, artifacts.AudioLocation)
	}); err != nil {
		return err
	}

	if p.transcriber != nil && p.transcriber.Enabled() {
		if err = step(ctx, "transcript", func(ctx context.Context) error {
			resp, err := p.transcriber.Transcribe(ctx, artifacts.AudioLocation)
			if err != nil {
				return err
			}
			jsonPath := filepath.Join(dir, "transcript_"+job.VideoID+".json")
			if err := transcript.WriteJSON(resp, jsonPath); err != nil {
				return err
			}
			if err := transcript.WriteSRT(resp, SRTPath(jsonPath)); err != nil {
				return err
			}
			artifacts.TranscriptLocation = jsonPath
			return nil
		}); err != nil {
			return err
		}
	} else {
		logging.Debug("Transcription disabled, skipping transcript for video %s", job.VideoID)
	}

	if err = p.store.SaveArtifacts(ctx, job.VideoID, artifacts); err != nil {
		return fmt.Errorf("failed to save artifacts: %w", err)
	}

	if p.archiver != nil {
		p.archive(ctx, job, artifacts)
	}
	return nil
}

// archive uploads finished files. Failures are logged only.
func (p *Processor) archive(ctx context.Context, job Job, a database.Artifacts) {
	files := []string{job.Input, a.CompressedLocation, a.ThumbnailLocation}
	if a.TranscriptLocation != "" {
		files = append(files, a.TranscriptLocation, SRTPath(a.TranscriptLocation))
	}

	_ = step(ctx, "archive", func(ctx context.Context) error {
		var errs []error
		for _, path := range files {
			key := job.Username + "/" + job.VideoID + "/" + filepath.Base(path)
			if err := p.archiver.Upload(ctx, key, path); err != nil {
				logging.Warn("Failed to archive %s for video %s: %v", filepath.Base(path), job.VideoID, err)
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// step times fn and records its outcome.
func step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	start := time.Now()
	err := fn(ctx)
	metrics.ProcessingStepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProcessingStepFailures.WithLabelValues(name).Inc()
		return fmt.Errorf("%s: %w", name, err)
	}
	logging.Debug("Processing step %s completed in %v", name, time.Since(start).Round(time.Millisecond))
	return nil
}

// SRTPath returns the SRT sibling of a JSON transcript path.
func SRTPath(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".srt"
}

// RemoveArtifacts deletes the files produced for a video. Missing files are
// ignored.
func RemoveArtifacts(v *database.Video) error {
	paths := []string{v.CompressedLocation, v.ThumbnailLocation, v.AudioLocation}
	if v.TranscriptLocation != "" {
		paths = append(paths, v.TranscriptLocation, SRTPath(v.TranscriptLocation))
	}

	var errs []error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
