package transcribe

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/snarg/voicescribe/internal/audio"
	"github.com/snarg/voicescribe/internal/fetch"
	"github.com/snarg/voicescribe/internal/transcode"
)

// Kind classifies a failed job. The caller-facing status code is derived
// from the Kind alone.
type Kind int

const (
	KindInvalidInput Kind = iota + 1
	KindFetch
	KindPayloadTooLarge
	KindUnsupportedFormat
	KindTranscode
	KindRecognition
	KindRecognitionParse
)

var kindNames = map[Kind]string{
	KindInvalidInput:      "invalid_input",
	KindFetch:             "fetch_error",
	KindPayloadTooLarge:   "payload_too_large",
	KindUnsupportedFormat: "unsupported_format",
	KindTranscode:         "transcode_error",
	KindRecognition:       "recognition_error",
	KindRecognitionParse:  "recognition_parse_error",
}

// Kinds lists every failure kind.
var Kinds = []Kind{
	KindInvalidInput, KindFetch, KindPayloadTooLarge, KindUnsupportedFormat,
	KindTranscode, KindRecognition, KindRecognitionParse,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// StatusCode maps a Kind to the HTTP status returned to the caller.
func (k Kind) StatusCode() int {
	switch k {
	case KindInvalidInput, KindPayloadTooLarge, KindUnsupportedFormat:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Stage is a pipeline state.
type Stage string

const (
	StageReceived    Stage = "received"
	StageFetched     Stage = "fetched"
	StageSizeOK      Stage = "size_ok"
	StageFormatKnown Stage = "format_known"
	StageTranscoded  Stage = "transcoded"
	StageTranscribed Stage = "transcribed"
)

// Error is a classified job failure. Stage is the last state the job
// reached before failing.
type Error struct {
	Stage  Stage
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Detail)
	}
	return fmt.Sprintf("%s at %s", e.Kind, e.Stage)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the caller-facing HTTP status.
func (e *Error) StatusCode() int { return e.Kind.StatusCode() }

// ErrRecognitionParse is returned when a 2xx recognition response has no usable text.
var ErrRecognitionParse = errors.New("recognition response has no text")

// RecognitionError is a non-2xx response from the recognition service.
type RecognitionError struct {
	StatusCode int
	Detail     string
}

func (e *RecognitionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("recognition service returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("recognition service returned status %d", e.StatusCode)
}

// classify maps a component error to a Kind. Errors from unknown sources
// are attributed to the stage they occurred in.
func classify(stage Stage, err error) Kind {
	var (
		fe *fetch.Error
		te *transcode.Error
		re *RecognitionError
	)
	switch {
	case errors.Is(err, fetch.ErrInvalidURL):
		return KindInvalidInput
	case errors.As(err, &fe):
		return KindFetch
	case errors.Is(err, audio.ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, transcode.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.As(err, &te):
		return KindTranscode
	case errors.As(err, &re):
		return KindRecognition
	case errors.Is(err, ErrRecognitionParse):
		return KindRecognitionParse
	}

	switch stage {
	case StageReceived:
		return KindFetch
	case StageFormatKnown:
		return KindTranscode
	default:
		return KindRecognition
	}
}
