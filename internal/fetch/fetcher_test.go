package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestFetcher(maxBytes int64, timeout time.Duration) *Fetcher {
	return NewFetcher(Options{Timeout: timeout, MaxBytes: maxBytes, Log: zerolog.Nop()})
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg; codecs=opus")
		w.Write([]byte("OggS-fake"))
	}))
	defer srv.Close()

	blob, err := newTestFetcher(1024, time.Second).Fetch(context.Background(), srv.URL+"/media/voice.OGG?sig=1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(blob.Data) != "OggS-fake" {
		t.Errorf("Data = %q, want OggS-fake", blob.Data)
	}
	if blob.ContentType != "audio/ogg" {
		t.Errorf("ContentType = %q, want audio/ogg", blob.ContentType)
	}
	if blob.Extension != ".ogg" {
		t.Errorf("Extension = %q, want .ogg", blob.Extension)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	f := newTestFetcher(1024, time.Second)
	for _, raw := range []string{"", "voice.ogg", "/relative/voice.ogg", "ftp://host/voice.ogg", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Fetch(%q) err = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestFetch_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(1024, time.Second).Fetch(context.Background(), srv.URL+"/voice.ogg")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *fetch.Error", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", fe.StatusCode)
	}
}

func TestFetch_ErrorsOmitQueryToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	f := newTestFetcher(1024, time.Second)
	for _, raw := range []string{
		srv.URL + "/voice.ogg?sig=s3cr3t&expires=1",
		"http://user:s3cr3t@" + strings.TrimPrefix(srv.URL, "http://") + "/voice.ogg",
		"https://host/%zz?sig=s3cr3t",
		"//host/voice.ogg?sig=s3cr3t",
	} {
		_, err := f.Fetch(context.Background(), raw)
		if err == nil {
			t.Fatalf("Fetch(%q): expected error", raw)
		}
		if strings.Contains(err.Error(), "s3cr3t") {
			t.Errorf("error leaks token: %v", err)
		}
	}

	// Transport failures carry a *url.Error whose message embeds the URL.
	_, err := f.Fetch(context.Background(), closedURL+"/voice.ogg?sig=s3cr3t")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "s3cr3t") {
		t.Errorf("transport error leaks token: %v", err)
	}
}

func TestRedact(t *testing.T) {
	u, err := ParseSourceURL("https://user:pw@cdn.example.com/v/voice.ogg?sig=abc#frag")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := Redact(u), "https://cdn.example.com/v/voice.ogg"; got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}
}

func TestFetch_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := newTestFetcher(1024, time.Second).Fetch(context.Background(), srv.URL+"/voice.ogg")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *fetch.Error", err)
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestFetcher(1024, 50*time.Millisecond).Fetch(context.Background(), srv.URL+"/voice.ogg")
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *fetch.Error", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport error", fe.StatusCode)
	}
}

func TestFetch_BoundedRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	blob, err := newTestFetcher(100, time.Second).Fetch(context.Background(), srv.URL+"/voice.wav")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(blob.Data) != 101 {
		t.Errorf("len(Data) = %d, want 101 (limit+1)", len(blob.Data))
	}
}

func TestNewFetcher_ClampsTimeout(t *testing.T) {
	f := NewFetcher(Options{Timeout: time.Minute, Log: zerolog.Nop()})
	if f.client.Timeout != MaxTimeout {
		t.Errorf("Timeout = %v, want %v", f.client.Timeout, MaxTimeout)
	}
	f = NewFetcher(Options{Log: zerolog.Nop()})
	if f.client.Timeout != MaxTimeout {
		t.Errorf("zero Timeout = %v, want %v", f.client.Timeout, MaxTimeout)
	}
}
