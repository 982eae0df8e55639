package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"helpmeout/internal/logging"
)

// DefaultBaseURL is the public Deepgram API.
const DefaultBaseURL = "https://api.deepgram.com"

const maxErrorBody = 512

// Client calls the Deepgram pre-recorded transcription endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. A nil httpClient uses a client with a five
// minute timeout, since long recordings take a while to transcribe.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Transcribe uploads the MP3 at audioPath and returns the decoded response.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer func() {
		if closeErr := audio.Close(); closeErr != nil {
			logging.Warn("failed to close audio file %s: %v", audioPath, closeErr)
		}
	}()

	params := url.Values{}
	params.Set("punctuate", "true")
	params.Set("tier", "enhanced")
	params.Set("utterances", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/listen?"+params.Encode(), audio)
	if err != nil {
		return nil, fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/mp3")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return &result, nil
}
