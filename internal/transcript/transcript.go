package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyTranscript is returned when a response carries no channels
	// or alternatives.
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrUnsupportedFormat is returned for formats other than json and srt.
	ErrUnsupportedFormat = errors.New("unsupported transcript format")
)

// Format is a transcript file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatSRT  Format = "srt"
)

// ParseFormat maps a file extension (with or without the dot) to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(s, "."))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatSRT:
		return FormatSRT, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatSRT {
		return "application/x-subrip; charset=utf-8"
	}
	return "application/json"
}

// Word is a single recognised word with its timing.
type Word struct {
	Word           string  `json:"word"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Confidence     float64 `json:"confidence"`
	PunctuatedWord string  `json:"punctuated_word,omitempty"`
}

// Text returns the punctuated form of the word when present.
func (w Word) Text() string {
	if w.PunctuatedWord != "" {
		return w.PunctuatedWord
	}
	return w.Word
}

// Alternative is one transcription hypothesis for a channel.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Channel holds the hypotheses for one audio channel.
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Response is the subset of the Deepgram response body we use.
type Response struct {
	Results struct {
		Channels []Channel `json:"channels"`
	} `json:"results"`
}

// Best returns the first alternative of the first channel.
func (r *Response) Best() (*Alternative, error) {
	if r == nil || len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil, ErrEmptyTranscript
	}
	return &r.Results.Channels[0].Alternatives[0], nil
}

// Document is the stored JSON transcript.
type Document struct {
	Transcript string `json:"transcript"`
	Words      []Word `json:"words"`
}

// Write renders resp in format to path.
func Write(resp *Response, path string, format Format) error {
	switch format {
	case FormatJSON:
		return WriteJSON(resp, path)
	case FormatSRT:
		return WriteSRT(resp, path)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// WriteJSON stores the transcript text and word timings as JSON.
func WriteJSON(resp *Response, path string) error {
	alt, err := resp.Best()
	if err != nil {
		return err
	}

	words := alt.Words
	if words == nil {
		words = []Word{}
	}

	data, err := json.MarshalIndent(Document{Transcript: alt.Transcript, Words: words}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return writeFile(path, data)
}

// WriteSRT stores one caption cue per word.
func WriteSRT(resp *Response, path string) error {
	alt, err := resp.Best()
	if err != nil {
		return err
	}
	return writeFile(path, []byte(RenderSRT(alt.Words)))
}

// RenderSRT formats words as SRT cues numbered from 1.
func RenderSRT(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(w.Start), srtTimestamp(w.End), w.Text())
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// writeFile writes via a temp file so readers never see a partial transcript.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".transcript-*")
	if err != nil {
		return fmt.Errorf("failed to create transcript file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write transcript: %w", err), tmp.Close(), os.Remove(tmpName))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close transcript: %w", err), os.Remove(tmpName))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Join(fmt.Errorf("failed to save transcript: %w", err), os.Remove(tmpName))
	}
	return nil
}
