package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/voicescribe/internal/audio"
)

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("scratch dir not cleaned up: %v", names)
	}
}

// fakeRun writes output to the last argument (the output path) and returns err.
func fakeRun(output []byte, err error, calls *int) RunFunc {
	return func(ctx context.Context, binary string, args []string) ([]byte, error) {
		*calls++
		if output != nil {
			if werr := os.WriteFile(args[len(args)-1], output, 0o600); werr != nil {
				return nil, werr
			}
		}
		if err != nil {
			return []byte("Invalid data found when processing input"), err
		}
		return nil, nil
	}
}

func TestDemuxerFor_CoversEveryFormat(t *testing.T) {
	for _, f := range audio.Formats {
		if demuxerFor(f) == "" {
			t.Errorf("no ffmpeg demuxer for %v", f)
		}
	}
	if demuxerFor(audio.FormatUnknown) != "" {
		t.Error("FormatUnknown must not map to a demuxer")
	}
}

func TestTranscode_Unknown(t *testing.T) {
	scratch := t.TempDir()
	calls := 0
	tc := New(Options{ScratchDir: scratch, Run: fakeRun(nil, nil, &calls), Log: zerolog.Nop()})

	_, err := tc.Transcode(context.Background(), &audio.Blob{Data: []byte("x")}, audio.FormatUnknown)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
	if calls != 0 {
		t.Errorf("codec invoked %d times, want 0", calls)
	}
	assertScratchEmpty(t, scratch)
}

func TestTranscode_CleanupOnEveryPath(t *testing.T) {
	canonical := audio.EncodeWAV(make([]byte, 3200), audio.CanonicalSampleRate, 1)
	wrongRate := audio.EncodeWAV(make([]byte, 3200), 8000, 1)

	tests := []struct {
		name   string
		output []byte
		runErr error
		wantOp string
	}{
		{"success", canonical, nil, ""},
		{"codec_failure", nil, errors.New("exit status 1"), "ffmpeg"},
		{"codec_failure_partial_output", []byte("RIFF"), errors.New("exit status 1"), "ffmpeg"},
		{"missing_output", nil, nil, "read"},
		{"non_canonical_output", wrongRate, nil, "validate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := t.TempDir()
			calls := 0
			tc := New(Options{ScratchDir: scratch, Run: fakeRun(tt.output, tt.runErr, &calls), Log: zerolog.Nop()})

			got, err := tc.Transcode(context.Background(), &audio.Blob{Data: []byte("OggS")}, audio.FormatOggOpus)
			if tt.wantOp == "" {
				if err != nil {
					t.Fatalf("Transcode: %v", err)
				}
				if got.SampleRate != audio.CanonicalSampleRate || got.Channels != audio.CanonicalChannels {
					t.Errorf("got %d Hz/%d ch", got.SampleRate, got.Channels)
				}
			} else {
				var te *Error
				if !errors.As(err, &te) {
					t.Fatalf("err = %v, want *transcode.Error", err)
				}
				if te.Op != tt.wantOp {
					t.Errorf("Op = %q, want %q", te.Op, tt.wantOp)
				}
			}
			if calls != 1 {
				t.Errorf("codec invoked %d times, want 1", calls)
			}
			assertScratchEmpty(t, scratch)
		})
	}
}

func TestTranscode_UniqueScratchPerCall(t *testing.T) {
	scratch := t.TempDir()
	var seen []string
	run := func(ctx context.Context, binary string, args []string) ([]byte, error) {
		out := args[len(args)-1]
		seen = append(seen, filepath.Dir(out))
		return nil, os.WriteFile(out, audio.EncodeWAV(make([]byte, 2), audio.CanonicalSampleRate, 1), 0o600)
	}
	tc := New(Options{ScratchDir: scratch, Run: run, Log: zerolog.Nop()})

	for i := 0; i < 2; i++ {
		if _, err := tc.Transcode(context.Background(), &audio.Blob{Data: []byte("x")}, audio.FormatWAV); err != nil {
			t.Fatalf("Transcode: %v", err)
		}
	}
	if len(seen) != 2 || seen[0] == seen[1] {
		t.Errorf("scratch dirs = %v, want two distinct dirs", seen)
	}
	assertScratchEmpty(t, scratch)
}

func TestTranscode_Args(t *testing.T) {
	joined := strings.Join(ffmpegArgs("ogg", "/in.ogg", "/out.wav"), " ")
	for _, want := range []string{"-f ogg -i /in.ogg", "-ac 1", "-ar 16000", "-c:a pcm_s16le", "-f wav /out.wav"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
}

// --- ffmpeg-backed tests ---

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not in PATH")
	}
}

// synthesize renders a 2 second 44.1 kHz stereo tone in the given format.
func synthesize(t *testing.T, f audio.Format) []byte {
	t.Helper()
	var codec []string
	switch f {
	case audio.FormatOggOpus:
		codec = []string{"-c:a", "libopus", "-f", "ogg"}
	case audio.FormatMP3:
		codec = []string{"-c:a", "libmp3lame", "-f", "mp3"}
	case audio.FormatWAV:
		codec = []string{"-c:a", "pcm_s16le", "-f", "wav"}
	case audio.FormatWebM:
		codec = []string{"-c:a", "libopus", "-f", "webm"}
	}
	out := filepath.Join(t.TempDir(), "src"+f.Extension())
	args := append([]string{"-nostdin", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100:duration=2",
		"-ac", "2"}, codec...)
	args = append(args, out)
	if msg, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Skipf("cannot synthesize %v (encoder missing?): %v: %s", f, err, msg)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestTrimOutput_KeepsRunesWhole(t *testing.T) {
	got := trimOutput([]byte("x" + strings.Repeat("ошибка", 200)))
	if !utf8.ValidString(got) {
		t.Errorf("output is not valid UTF-8 (%d bytes)", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncation marker, got %q", got[len(got)-8:])
	}
}

func TestTranscode_FFmpeg_AllFormats(t *testing.T) {
	requireFFmpeg(t)
	for _, f := range audio.Formats {
		t.Run(f.String(), func(t *testing.T) {
			scratch := t.TempDir()
			tc := New(Options{ScratchDir: scratch, Log: zerolog.Nop()})
			blob := &audio.Blob{Data: synthesize(t, f)}

			got, err := tc.Transcode(context.Background(), blob, audio.DetectFormat(&audio.Blob{Extension: f.Extension()}))
			if err != nil {
				t.Fatalf("Transcode: %v", err)
			}
			if got.SampleRate != 16000 || got.Channels != 1 || got.BitsPerSample != 16 {
				t.Errorf("got %d Hz/%d ch/%d bit, want 16000/1/16", got.SampleRate, got.Channels, got.BitsPerSample)
			}
			if d := got.Duration(); d < 1900*time.Millisecond || d > 2200*time.Millisecond {
				t.Errorf("Duration = %v, want about 2s", d)
			}
			assertScratchEmpty(t, scratch)
		})
	}
}

func TestTranscode_FFmpeg_Deterministic(t *testing.T) {
	requireFFmpeg(t)
	blob := &audio.Blob{Data: synthesize(t, audio.FormatOggOpus)}
	tc := New(Options{ScratchDir: t.TempDir(), Log: zerolog.Nop()})

	first, err := tc.Transcode(context.Background(), blob, audio.FormatOggOpus)
	if err != nil {
		t.Fatalf("first Transcode: %v", err)
	}
	second, err := tc.Transcode(context.Background(), blob, audio.FormatOggOpus)
	if err != nil {
		t.Fatalf("second Transcode: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("transcoding the same input twice produced different bytes")
	}
}

func TestTranscode_FFmpeg_CorruptInput(t *testing.T) {
	requireFFmpeg(t)
	scratch := t.TempDir()
	tc := New(Options{ScratchDir: scratch, Log: zerolog.Nop()})

	_, err := tc.Transcode(context.Background(), &audio.Blob{Data: []byte("definitely not an ogg stream")}, audio.FormatOggOpus)
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *transcode.Error", err)
	}
	assertScratchEmpty(t, scratch)
}
