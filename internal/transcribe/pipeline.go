package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/voicescribe/internal/audio"
	"github.com/snarg/voicescribe/internal/metrics"
)

// JobRequest is one transcription job.
type JobRequest struct {
	ID        string // optional; generated when empty
	SourceURL string
}

// Outcome is the terminal result of a job: Text on success, Err on failure.
type Outcome struct {
	JobID    string
	Text     string
	Err      *Error
	Duration time.Duration
}

// OK reports whether the job produced a transcript.
func (o Outcome) OK() bool { return o.Err == nil }

// Message is the caller-facing message: the transcript, or an error
// description that includes the underlying cause.
func (o Outcome) Message() string {
	if o.Err == nil {
		return o.Text
	}
	return failureMessage(o.Err)
}

// StatusCode is 200 on success, otherwise derived from the error kind.
func (o Outcome) StatusCode() int {
	if o.Err == nil {
		return 200
	}
	return o.Err.StatusCode()
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Fetcher     Fetcher
	Transcoder  Transcoder
	Recognizer  Recognizer
	Archiver    Archiver // optional
	MaxBytes    int64    // 0 = audio.DefaultMaxBytes
	Language    string
	Prompt      string
	Temperature float64 // 0 = server default

	// ArchiveTimeout bounds a single archive write; 0 = DefaultArchiveTimeout.
	ArchiveTimeout time.Duration

	Log zerolog.Logger
}

// DefaultArchiveTimeout bounds how long a job waits on the archive backend.
const DefaultArchiveTimeout = 10 * time.Second

// Pipeline runs fetch, size check, format detection, transcode and
// recognition strictly in order. The first failing stage ends the job.
// A Pipeline holds no per-job state and is safe for concurrent use.
type Pipeline struct {
	opts PipelineOptions
	log  zerolog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = audio.DefaultMaxBytes
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = DefaultArchiveTimeout
	}
	return &Pipeline{opts: opts, log: opts.Log}
}

// Run executes one job. It always returns an Outcome; scratch resources
// allocated by the stages are released before it returns.
func (p *Pipeline) Run(ctx context.Context, job JobRequest) Outcome {
	start := time.Now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := p.log.With().Str("job_id", job.ID).Logger()

	text, jerr := p.run(ctx, log, job)

	out := Outcome{JobID: job.ID, Text: text, Err: jerr, Duration: time.Since(start)}
	if jerr != nil {
		metrics.JobsTotal.WithLabelValues(jerr.Kind.String()).Inc()
		ev := log.Warn()
		if jerr.Kind.StatusCode() < 500 {
			ev = log.Info()
		}
		ev.Err(jerr.Err).
			Str("stage", string(jerr.Stage)).
			Str("kind", jerr.Kind.String()).
			Dur("duration", out.Duration).
			Msg("transcription failed")
		return out
	}

	metrics.JobsTotal.WithLabelValues("success").Inc()
	log.Info().
		Str("model", p.opts.Recognizer.Model()).
		Int("chars", len([]rune(text))).
		Dur("duration", out.Duration).
		Msg("transcription complete")
	return out
}

func (p *Pipeline) run(ctx context.Context, log zerolog.Logger, job JobRequest) (string, *Error) {
	stage := StageReceived

	if strings.TrimSpace(job.SourceURL) == "" {
		return "", &Error{Stage: stage, Kind: KindInvalidInput, Detail: "voice message url is missing"}
	}

	// 1. Fetch
	var blob *audio.Blob
	err := timeStage("fetch", func() (err error) {
		blob, err = p.opts.Fetcher.Fetch(ctx, job.SourceURL)
		return err
	})
	if err != nil {
		return "", fail(stage, err)
	}
	stage = StageFetched
	metrics.FetchedBytes.Observe(float64(blob.Size()))

	// 2. Size guard, before any CPU is spent on the payload
	if err := audio.CheckSize(blob, p.opts.MaxBytes); err != nil {
		return "", fail(stage, err)
	}
	stage = StageSizeOK

	// 3. Format
	format := audio.DetectFormat(blob)
	if !format.Supported() {
		return "", &Error{
			Stage:  stage,
			Kind:   KindUnsupportedFormat,
			Detail: fmt.Sprintf("cannot determine audio format (content type %q, extension %q)", blob.ContentType, blob.Extension),
		}
	}
	stage = StageFormatKnown
	log.Debug().Str("format", format.String()).Int("bytes", blob.Size()).Msg("format detected")

	if p.opts.Archiver != nil {
		p.archive(ctx, log, job.ID, blob, format)
	}

	// 4. Transcode
	var canonical *audio.Canonical
	err = timeStage("transcode", func() (err error) {
		canonical, err = p.opts.Transcoder.Transcode(ctx, blob, format)
		return err
	})
	if err != nil {
		return "", fail(stage, err)
	}
	stage = StageTranscoded

	// 5. Recognize
	var text string
	err = timeStage("transcribe", func() (err error) {
		text, err = p.opts.Recognizer.Transcribe(ctx, canonical, TranscribeOpts{
			Language:    p.opts.Language,
			Prompt:      p.opts.Prompt,
			Temperature: p.opts.Temperature,
		})
		return err
	})
	if err != nil {
		return "", fail(stage, err)
	}
	return text, nil
}

// archive stores the source audio. A slow or failing backend only costs
// ArchiveTimeout; the job continues either way.
func (p *Pipeline) archive(ctx context.Context, log zerolog.Logger, jobID string, blob *audio.Blob, format audio.Format) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ArchiveTimeout)
	defer cancel()
	if err := p.opts.Archiver.Archive(ctx, jobID, blob, format); err != nil {
		log.Warn().Err(err).Msg("failed to archive source audio")
	}
}

func fail(stage Stage, err error) *Error {
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr
	}
	return &Error{Stage: stage, Kind: classify(stage, err), Detail: err.Error(), Err: err}
}

func timeStage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func failureMessage(e *Error) string {
	var prefix string
	switch e.Kind {
	case KindInvalidInput:
		prefix = "invalid request"
	case KindFetch:
		prefix = "failed to download audio"
	case KindPayloadTooLarge:
		prefix = "audio is too large"
	case KindUnsupportedFormat:
		prefix = "unsupported audio format"
	case KindTranscode:
		prefix = "failed to convert audio"
	case KindRecognition:
		prefix = "speech recognition failed"
	case KindRecognitionParse:
		prefix = "speech recognition returned no text"
	default:
		prefix = "transcription failed"
	}
	if e.Detail == "" {
		return prefix
	}
	return prefix + ": " + e.Detail
}
