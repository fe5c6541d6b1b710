package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voicescribe/internal/audio"
)

// MaxTimeout is the upper bound on a single download.
const MaxTimeout = 10 * time.Second

// ErrInvalidURL is returned when the source URL is empty or not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid source url")

// Error describes a failed download: a transport failure, a non-2xx status
// or an empty body.
type Error struct {
	URL        string // redacted, see Redact
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration // clamped to MaxTimeout
	MaxBytes int64         // body reads stop after MaxBytes+1 bytes
	Client   *http.Client  // optional; Timeout is applied on top
	Log      zerolog.Logger
}

// Fetcher downloads voice messages. One attempt per call, no retries.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	log      zerolog.Logger
}

// NewFetcher creates a Fetcher with a bounded per-request timeout.
func NewFetcher(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = audio.DefaultMaxBytes
	}

	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.Timeout = timeout

	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		log:      opts.Log,
	}
}

// ParseSourceURL validates a job's source URL.
func ParseSourceURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: not absolute", ErrInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return u, nil
}

// Redact returns u without credentials, query or fragment, so signed-URL
// tokens stay out of errors and logs.
func Redact(u *url.URL) string {
	r := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path, RawPath: u.RawPath}
	return r.String()
}

// Fetch downloads rawURL and captures its declared content type and URL
// extension. The body is read up to MaxBytes+1 bytes so that an oversized
// payload is still rejected by audio.CheckSize without buffering all of it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*audio.Blob, error) {
	u, err := ParseSourceURL(rawURL)
	if err != nil {
		return nil, err
	}

	safeURL := Redact(u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{URL: safeURL, Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = safeURL
		}
		return nil, &Error{URL: safeURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{URL: safeURL, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &Error{URL: safeURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) == 0 {
		return nil, &Error{URL: safeURL, StatusCode: resp.StatusCode, Err: errors.New("empty body")}
	}

	blob := &audio.Blob{
		Data:        data,
		ContentType: audio.NormalizeContentType(resp.Header.Get("Content-Type")),
		Extension:   audio.ExtensionFromURL(u),
	}

	f.log.Debug().
		Str("host", u.Host).
		Int("bytes", len(data)).
		Str("content_type", blob.ContentType).
		Str("ext", blob.Extension).
		Dur("duration", time.Since(start)).
		Msg("voice message fetched")

	return blob, nil
}
