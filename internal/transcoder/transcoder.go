package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"helpmeout/internal/logging"
)

// invalidInputMarker is what ffmpeg prints for files it cannot demux.
const invalidInputMarker = "Invalid data found when processing input"

// DefaultThumbnailOffset is where the thumbnail frame is captured.
const DefaultThumbnailOffset = 2 * time.Second

// ErrInvalidVideo is returned when ffmpeg cannot decode a recording.
var ErrInvalidVideo = errors.New("invalid video data")

// Transcoder runs ffmpeg/ffprobe subprocesses.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
	processes   map[string]*exec.Cmd
	processMu   sync.Mutex
}

// New creates a new Transcoder. Empty paths default to the binaries on PATH.
func New(ffmpegPath, ffprobePath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Transcoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		processes:   make(map[string]*exec.Cmd),
	}
}

// run executes bin with args, tracking the process under key until it exits.
func (t *Transcoder) run(ctx context.Context, key, bin string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	t.processMu.Lock()
	t.processes[key] = cmd
	t.processMu.Unlock()

	defer func() {
		t.processMu.Lock()
		delete(t.processes, key)
		t.processMu.Unlock()
	}()

	logging.Debug("Running %s %s", bin, strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return outBuf.Bytes(), errBuf.Bytes(), ctx.Err()
		}
		return outBuf.Bytes(), errBuf.Bytes(), fmt.Errorf("%s failed: %w: %s", bin, err, lastLine(errBuf.String()))
	}

	return outBuf.Bytes(), errBuf.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Duration returns the container duration of input in seconds.
func (t *Transcoder) Duration(ctx context.Context, input string) (float64, error) {
	stdout, _, err := t.run(ctx, "probe:"+input, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	if err != nil {
		return 0, err
	}

	value := strings.TrimSpace(string(stdout))
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration for %s", input)
	}
	duration, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe duration %q: %w", value, err)
	}
	return duration, nil
}

// IsValidVideo reports whether ffmpeg can read input. A file ffmpeg rejects
// as invalid data returns false with a nil error; other failures return the
// error.
func (t *Transcoder) IsValidVideo(ctx context.Context, input string) (bool, error) {
	_, stderr, err := t.run(ctx, "validate:"+input, t.ffmpegPath,
		"-v", "error",
		"-i", input,
		"-t", "1",
		"-f", "null", "-",
	)
	if bytes.Contains(stderr, []byte(invalidInputMarker)) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Compress re-encodes input to H.264 at CRF 28.
func (t *Transcoder) Compress(ctx context.Context, input, output string) error {
	_, _, err := t.run(ctx, output, t.ffmpegPath,
		"-y",
		"-i", input,
		"-vcodec", "libx264",
		"-crf", "28",
		output,
	)
	return err
}

// ExtractThumbnail captures a single frame at offset into output.
func (t *Transcoder) ExtractThumbnail(ctx context.Context, input, output string, offset time.Duration) error {
	_, _, err := t.run(ctx, output, t.ffmpegPath,
		"-y",
		"-ss", FormatTimestamp(offset),
		"-i", input,
		"-vframes", "1",
		output,
	)
	return err
}

// ExtractAudio writes a low-bitrate mono-friendly MP3 of input's audio track.
func (t *Transcoder) ExtractAudio(ctx context.Context, input, output string) error {
	_, _, err := t.run(ctx, output, t.ffmpegPath,
		"-y",
		"-i", input,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "12k",
		output,
	)
	return err
}

// ThumbnailOffset picks the capture offset for a recording of the given
// length: DefaultThumbnailOffset, or the first frame for shorter videos.
func ThumbnailOffset(duration float64) time.Duration {
	if duration <= DefaultThumbnailOffset.Seconds() {
		return 0
	}
	return DefaultThumbnailOffset
}

// FormatTimestamp renders d as HH:MM:SS.mmm for ffmpeg's -ss option.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// ResizeThumbnail scales the image at path down to fit within width x height,
// preserving aspect ratio, and overwrites it. Smaller images are left as is.
func ResizeThumbnail(path string, width, height int) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open thumbnail: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= width && bounds.Dy() <= height {
		return nil
	}

	resized := imaging.Fit(img, width, height, imaging.Lanczos)
	if err := imaging.Save(resized, path, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// ActiveProcesses returns the number of running subprocesses.
func (t *Transcoder) ActiveProcesses() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// Cleanup kills all running subprocesses.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for key, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process for: %s", key)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process for %s: %v", key, err)
			}
		}
	}
}
