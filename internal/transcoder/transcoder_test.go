package transcoder

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

// fakeBinary writes a shell script that records its arguments to argsFile,
// prints stdout/stderr and exits with code.
func fakeBinary(t *testing.T, dir, name, stdout, stderr string, code int) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries require a POSIX shell")
	}

	bin = filepath.Join(dir, name)
	argsFile = filepath.Join(dir, name+".args")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > '" + argsFile + "'\n" +
		"printf '%s' '" + stdout + "'\n" +
		"printf '%s' '" + stderr + "' >&2\n" +
		"exit " + strconv.Itoa(code) + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake binary: %v", err)
	}
	return bin, argsFile
}

func readArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("failed to read recorded args: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewDefaults(t *testing.T) {
	tr := New("", "")
	if tr.ffmpegPath != "ffmpeg" {
		t.Errorf("ffmpegPath = %q, want ffmpeg", tr.ffmpegPath)
	}
	if tr.ffprobePath != "ffprobe" {
		t.Errorf("ffprobePath = %q, want ffprobe", tr.ffprobePath)
	}
	if tr.ActiveProcesses() != 0 {
		t.Errorf("ActiveProcesses() = %d, want 0", tr.ActiveProcesses())
	}
}

func TestDuration(t *testing.T) {
	dir := t.TempDir()
	probe, argsFile := fakeBinary(t, dir, "ffprobe", "12.480000", "", 0)
	tr := New("ffmpeg", probe)

	got, err := tr.Duration(context.Background(), "/videos/in.mp4")
	if err != nil {
		t.Fatalf("Duration() error = %v", err)
	}
	if got != 12.48 {
		t.Errorf("Duration() = %v, want 12.48", got)
	}

	args := readArgs(t, argsFile)
	want := []string{"-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", "/videos/in.mp4"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Errorf("ffprobe args = %v, want %v", args, want)
	}
}

func TestDurationNotAvailable(t *testing.T) {
	dir := t.TempDir()
	probe, _ := fakeBinary(t, dir, "ffprobe", "N/A", "", 0)
	tr := New("ffmpeg", probe)

	if _, err := tr.Duration(context.Background(), "in.webm"); err == nil {
		t.Error("Duration() expected error for N/A output")
	}
}

func TestIsValidVideo(t *testing.T) {
	tests := []struct {
		name    string
		stderr  string
		code    int
		want    bool
		wantErr bool
	}{
		{"valid", "", 0, true, false},
		{"invalid data", "in.mp4: " + invalidInputMarker, 1, false, false},
		{"other failure", "Permission denied", 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ffmpeg, _ := fakeBinary(t, dir, "ffmpeg", "", tt.stderr, tt.code)
			tr := New(ffmpeg, "ffprobe")

			got, err := tr.IsValidVideo(context.Background(), "in.mp4")
			if (err != nil) != tt.wantErr {
				t.Fatalf("IsValidVideo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("IsValidVideo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFFmpegArguments(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(tr *Transcoder) error
		want string
	}{
		{
			name: "compress",
			run:  func(tr *Transcoder) error { return tr.Compress(ctx, "in.mp4", "out.mp4") },
			want: "-y -i in.mp4 -vcodec libx264 -crf 28 out.mp4",
		},
		{
			name: "thumbnail",
			run: func(tr *Transcoder) error {
				return tr.ExtractThumbnail(ctx, "in.mp4", "thumb.jpg", DefaultThumbnailOffset)
			},
			want: "-y -ss 00:00:02.000 -i in.mp4 -vframes 1 thumb.jpg",
		},
		{
			name: "audio",
			run:  func(tr *Transcoder) error { return tr.ExtractAudio(ctx, "in.mp4", "audio.mp3") },
			want: "-y -i in.mp4 -vn -c:a libmp3lame -b:a 12k audio.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ffmpeg, argsFile := fakeBinary(t, dir, "ffmpeg", "", "", 0)
			tr := New(ffmpeg, "ffprobe")

			if err := tt.run(tr); err != nil {
				t.Fatalf("run error = %v", err)
			}
			if got := strings.Join(readArgs(t, argsFile), " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
			if tr.ActiveProcesses() != 0 {
				t.Errorf("process still tracked after exit")
			}
		})
	}
}

func TestRunReportsStderr(t *testing.T) {
	dir := t.TempDir()
	ffmpeg, _ := fakeBinary(t, dir, "ffmpeg", "", "Unknown encoder libx264", 1)
	tr := New(ffmpeg, "ffprobe")

	err := tr.Compress(context.Background(), "in.mp4", "out.mp4")
	if err == nil {
		t.Fatal("Compress() expected error")
	}
	if !strings.Contains(err.Error(), "Unknown encoder libx264") {
		t.Errorf("error %q does not include ffmpeg output", err)
	}
}

func TestMissingBinary(t *testing.T) {
	tr := New(filepath.Join(t.TempDir(), "no-such-ffmpeg"), "ffprobe")
	if err := tr.Compress(context.Background(), "in.mp4", "out.mp4"); err == nil {
		t.Error("Compress() expected error for missing binary")
	}
}

func TestThumbnailOffset(t *testing.T) {
	tests := []struct {
		duration float64
		want     time.Duration
	}{
		{0, 0},
		{1.5, 0},
		{2, 0},
		{2.5, DefaultThumbnailOffset},
		{600, DefaultThumbnailOffset},
	}
	for _, tt := range tests {
		if got := ThumbnailOffset(tt.duration); got != tt.want {
			t.Errorf("ThumbnailOffset(%v) = %v, want %v", tt.duration, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{2 * time.Second, "00:00:02.000"},
		{90*time.Minute + 5*time.Second + 250*time.Millisecond, "01:30:05.250"},
		{-time.Second, "00:00:00.000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResizeThumbnail(t *testing.T) {
	dir := t.TempDir()

	large := filepath.Join(dir, "large.jpg")
	if err := imaging.Save(imaging.New(1280, 720, color.NRGBA{R: 200, A: 255}), large); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	if err := ResizeThumbnail(large, 640, 360); err != nil {
		t.Fatalf("ResizeThumbnail() error = %v", err)
	}
	img, err := imaging.Open(large)
	if err != nil {
		t.Fatalf("failed to reopen image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 360 {
		t.Errorf("resized to %dx%d, want 640x360", b.Dx(), b.Dy())
	}

	small := filepath.Join(dir, "small.jpg")
	if err := imaging.Save(imaging.New(320, 180, color.NRGBA{B: 200, A: 255}), small); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	if err := ResizeThumbnail(small, 640, 360); err != nil {
		t.Fatalf("ResizeThumbnail() error = %v", err)
	}
	img, err = imaging.Open(small)
	if err != nil {
		t.Fatalf("failed to reopen image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 180 {
		t.Errorf("small image changed to %dx%d", b.Dx(), b.Dy())
	}
}

func TestResizeThumbnailMissingFile(t *testing.T) {
	if err := ResizeThumbnail(filepath.Join(t.TempDir(), "missing.jpg"), 640, 360); err == nil {
		t.Error("ResizeThumbnail() expected error for missing file")
	}
}

func TestCleanupNoProcesses(t *testing.T) {
	New("", "").Cleanup()
}
