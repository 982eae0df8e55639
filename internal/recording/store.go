package recording

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"helpmeout/internal/logging"
	"helpmeout/internal/metrics"
)

var (
	// ErrNoChunks is returned by Merge when no chunk files exist.
	ErrNoChunks = errors.New("no chunks found")
	// ErrInvalidPath is returned when a video id or artifact name is not a
	// safe single path component.
	ErrInvalidPath = errors.New("invalid path component")
	// ErrChunkTooLarge is returned when a chunk exceeds the configured limit.
	ErrChunkTooLarge = errors.New("chunk too large")
	// ErrInvalidIndex is returned for negative chunk indexes.
	ErrInvalidIndex = errors.New("invalid chunk index")
)

const chunkExt = ".mp4"

var safeComponent = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ChunkStore manages per-video chunk directories under a root directory.
type ChunkStore struct {
	root          string
	maxChunkBytes int64
}

// NewChunkStore creates a store rooted at root. maxChunkBytes <= 0 disables
// the size limit.
func NewChunkStore(root string, maxChunkBytes int64) *ChunkStore {
	return &ChunkStore{root: root, maxChunkBytes: maxChunkBytes}
}

// Root returns the store's root directory.
func (s *ChunkStore) Root() string {
	return s.root
}

// MaxChunkBytes returns the largest accepted chunk size.
func (s *ChunkStore) MaxChunkBytes() int64 {
	return s.maxChunkBytes
}

func validComponent(name string) bool {
	return safeComponent.MatchString(name) && name != "." && name != ".." && !strings.Contains(name, "..")
}

// Dir returns the directory holding a video's chunks and artifacts. It
// depends on the video id only, so ownership changes never move it.
func (s *ChunkStore) Dir(videoID string) (string, error) {
	if !validComponent(videoID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, videoID)
	}
	return filepath.Join(s.root, videoID), nil
}

// ArtifactPath returns the path of a derived file such as
// compressed_{id}.mp4 inside the video directory.
func (s *ChunkStore) ArtifactPath(videoID, name string) (string, error) {
	dir, err := s.Dir(videoID)
	if err != nil {
		return "", err
	}
	if !validComponent(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(dir, name), nil
}

// SaveChunk writes one chunk as {index}.mp4, replacing an earlier upload of
// the same index.
func (s *ChunkStore) SaveChunk(videoID string, index int, data []byte) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if s.maxChunkBytes > 0 && int64(len(data)) > s.maxChunkBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrChunkTooLarge, len(data), s.maxChunkBytes)
	}

	dir, err := s.Dir(videoID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chunk directory: %w", err)
	}

	path := filepath.Join(dir, strconv.Itoa(index)+chunkExt)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write chunk %d: %w", index, err)
	}

	metrics.UploadChunksTotal.Inc()
	metrics.UploadBytesTotal.Add(float64(len(data)))
	logging.Debug("Stored chunk %d for %s (%d bytes)", index, videoID, len(data))

	return path, nil
}

type chunkFile struct {
	index int
	path  string
}

// chunks lists chunk files in index order. The merged {videoID}.mp4 is never
// treated as a chunk, even when the id is numeric.
func (s *ChunkStore) chunks(videoID string) ([]chunkFile, error) {
	dir, err := s.Dir(videoID)
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+chunkExt))
	if err != nil {
		return nil, err
	}

	var files []chunkFile
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), chunkExt)
		if base == videoID {
			continue
		}
		index, err := strconv.Atoi(base)
		if err != nil || index < 0 {
			continue
		}
		files = append(files, chunkFile{index: index, path: m})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })
	return files, nil
}

// ChunkCount returns the number of stored chunks.
func (s *ChunkStore) ChunkCount(videoID string) (int, error) {
	files, err := s.chunks(videoID)
	return len(files), err
}

// Merge concatenates all chunks in numeric order into {videoID}.mp4 and
// returns its path. The output is written to a temporary file and renamed
// into place, so a reader never sees a partial merge.
func (s *ChunkStore) Merge(videoID string) (path string, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrNoChunks):
			status = "no_chunks"
		case err != nil:
			status = "error"
		default:
			metrics.UploadMergeDuration.Observe(time.Since(start).Seconds())
		}
		metrics.UploadMergesTotal.WithLabelValues(status).Inc()
	}()

	files, err := s.chunks(videoID)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoChunks
	}

	dir := filepath.Dir(files[0].path)
	tmp, err := os.CreateTemp(dir, ".merge-*")
	if err != nil {
		return "", fmt.Errorf("failed to create merge file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	var total int64
	for _, f := range files {
		n, copyErr := appendFile(tmp, f.path)
		if copyErr != nil {
			return "", fmt.Errorf("failed to append chunk %d: %w", f.index, copyErr)
		}
		total += n
	}

	if err = tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync merge file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close merge file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("failed to set merge file mode: %w", err)
	}

	path = filepath.Join(dir, videoID+chunkExt)
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move merged file into place: %w", err)
	}

	logging.Info("Merged %d chunks for %s (%d bytes)", len(files), videoID, total)
	return path, nil
}

func appendFile(dst io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

// RemoveChunks deletes the chunk files, keeping the merged file and any
// artifacts.
func (s *ChunkStore) RemoveChunks(videoID string) error {
	files, err := s.chunks(videoID)
	if err != nil {
		return err
	}

	var errs []error
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveAll deletes the whole video directory. A missing directory is not
// an error.
func (s *ChunkStore) RemoveAll(videoID string) error {
	dir, err := s.Dir(videoID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// RemoveFile deletes a single artifact if it lives inside the store root.
// Paths outside the root are ignored.
func (s *ChunkStore) RemoveFile(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: %s is outside %s", ErrInvalidPath, path, s.root)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
