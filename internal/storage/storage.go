package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voicescribe/internal/audio"
	"github.com/snarg/voicescribe/internal/config"
)

// AudioStore abstracts archive storage backends.
type AudioStore interface {
	// Save stores audio data. key format: {YYYY-MM-DD}/{job_id}{ext}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Type returns "local" or "s3".
	Type() string
}

// New creates an AudioStore based on config. Returns nil when archiving is
// disabled, and an error if S3 is configured but unreachable.
func New(cfg config.ArchiveConfig, log zerolog.Logger) (AudioStore, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "local":
		return NewLocalStore(cfg.Dir), nil
	case "s3":
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")
	return s3store, nil
}

// Archiver saves fetched source audio to an AudioStore.
type Archiver struct {
	store AudioStore
	now   func() time.Time
}

// NewArchiver wraps store.
func NewArchiver(store AudioStore) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

// ArchiveKey builds the object key for a job.
func ArchiveKey(at time.Time, jobID string, format audio.Format) string {
	return fmt.Sprintf("%s/%s%s", at.UTC().Format("2006-01-02"), jobID, format.Extension())
}

// Archive stores blob under a date-partitioned key.
func (a *Archiver) Archive(ctx context.Context, jobID string, blob *audio.Blob, format audio.Format) error {
	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := ArchiveKey(a.now(), jobID, format)
	if err := a.store.Save(ctx, key, blob.Data, contentType); err != nil {
		return fmt.Errorf("archive %s to %s: %w", key, a.store.Type(), err)
	}
	return nil
}
