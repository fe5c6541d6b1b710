package transcribe

import (
	"context"

	"github.com/snarg/voicescribe/internal/audio"
)

// Fetcher downloads a voice message.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*audio.Blob, error)
}

// Transcoder converts a supported voice message to canonical audio.
type Transcoder interface {
	Transcode(ctx context.Context, blob *audio.Blob, format audio.Format) (*audio.Canonical, error)
}

// Recognizer is the interface for speech-to-text backends.
type Recognizer interface {
	Transcribe(ctx context.Context, canonical *audio.Canonical, opts TranscribeOpts) (string, error)
	Model() string // model identifier for logs
}

// Archiver keeps a copy of fetched source audio. Archive failures never fail a job.
type Archiver interface {
	Archive(ctx context.Context, jobID string, blob *audio.Blob, format audio.Format) error
}
