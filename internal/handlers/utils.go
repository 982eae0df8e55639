package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"helpmeout/internal/logging"
)

// maxJSONBodyBytes bounds request bodies other than chunk uploads.
const maxJSONBodyBytes = 1 << 20

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"detail": message, "status_code": statusCode}.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]interface{}{
		"detail":      message,
		"status_code": statusCode,
	})
}

// writeMessage writes {"message": message, "status_code": statusCode}
// merged with extra.
func writeMessage(w http.ResponseWriter, statusCode int, message string, extra map[string]interface{}) {
	body := map[string]interface{}{
		"message":     message,
		"status_code": statusCode,
	}
	for k, v := range extra {
		body[k] = v
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, body)
}

// writeInternalError logs err and writes a generic 500.
func writeInternalError(w http.ResponseWriter, context string, err error) {
	logging.Error("%s: %v", context, err)
	writeJSONError(w, "Internal server error.", http.StatusInternalServerError)
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// queryParam returns the first non-empty query value among names.
func queryParam(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
