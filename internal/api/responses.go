package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/snarg/voicescribe/internal/transcribe"
)

// maxRequestBody bounds JSON request bodies. Audio never travels inline.
const maxRequestBody = 64 << 10

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a failure envelope carrying status as both the HTTP
// status and the status_code field.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, transcribe.Envelope{Message: msg, StatusCode: status})
}

// WriteOutcome writes a pipeline outcome: 200 with the transcript, or the
// failure's status code with its message.
func WriteOutcome(w http.ResponseWriter, out transcribe.Outcome) {
	status := http.StatusOK
	if !out.OK() {
		status = out.StatusCode()
	}
	WriteJSON(w, status, out.Envelope())
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
