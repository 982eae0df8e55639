package transcript

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3fake-audio"), 0o644))
	return path
}

func TestClientEnabled(t *testing.T) {
	assert.False(t, NewClient("", "", nil).Enabled())
	assert.True(t, NewClient("", "key", nil).Enabled())

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
}

func TestTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("punctuate"))
		assert.Equal(t, "enhanced", r.URL.Query().Get("tier"))
		assert.Equal(t, "true", r.URL.Query().Get("utterances"))
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/mp3", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "ID3fake-audio", string(body))

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(sampleResponse()))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret", server.Client())
	resp, err := client.Transcribe(context.Background(), writeAudio(t))
	require.NoError(t, err)

	alt, err := resp.Best()
	require.NoError(t, err)
	assert.Equal(t, "hello world", alt.Transcript)
	assert.Len(t, alt.Words, 2)
}

func TestTranscribeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad", server.Client())
	_, err := client.Transcribe(context.Background(), writeAudio(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestTranscribeMissingAudio(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", "key", nil)
	_, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestTranscribeCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "key", server.Client())
	_, err := client.Transcribe(ctx, writeAudio(t))
	assert.ErrorIs(t, err, context.Canceled)
}
