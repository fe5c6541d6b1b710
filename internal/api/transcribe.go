package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/voicescribe/internal/transcribe"
)

// Runner executes one transcription job.
type Runner interface {
	Run(ctx context.Context, job transcribe.JobRequest) transcribe.Outcome
}

// TranscribeHandler serves synchronous transcription requests.
type TranscribeHandler struct {
	runner Runner
	log    zerolog.Logger
}

func NewTranscribeHandler(runner Runner, log zerolog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		runner: runner,
		log:    log.With().Str("handler", "transcribe").Logger(),
	}
}

// Routes registers the transcription endpoint.
func (h *TranscribeHandler) Routes(r chi.Router) {
	r.Post("/transcribe", h.Transcribe)
}

// Transcribe handles POST /transcribe.
// Body: {"voice_url": "..."} ("source_url" is accepted as an alias).
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var body transcribe.RequestBody
	if err := DecodeJSON(r, &body); err != nil {
		h.log.Debug().Err(err).Msg("invalid request body")
		WriteJSON(w, http.StatusBadRequest, transcribe.Envelope{
			Message:    "invalid request: " + err.Error(),
			StatusCode: http.StatusBadRequest,
			Kind:       transcribe.KindInvalidInput.String(),
		})
		return
	}

	job := body.JobRequest()
	if job.ID == "" {
		job.ID = w.Header().Get("X-Request-ID")
	}

	out := h.runner.Run(r.Context(), job)
	WriteOutcome(w, out)
}
