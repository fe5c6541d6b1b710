package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/snarg/voicescribe/internal/audio"
)

// ErrUnsupportedFormat is returned for FormatUnknown input.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Error is a failed codec operation: ffmpeg missing or exiting non-zero,
// scratch I/O failure, or output that is not canonical WAV.
type Error struct {
	Op     string // "scratch", "ffmpeg", "read", "validate"
	Output string // trimmed ffmpeg stderr, if any
	Err    error
}

func (e *Error) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("transcode %s: %v: %s", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("transcode %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RunFunc executes the codec binary and returns its combined output.
type RunFunc func(ctx context.Context, binary string, args []string) ([]byte, error)

// Options configures a Transcoder.
type Options struct {
	FFmpegPath string // defaults to "ffmpeg" resolved via PATH
	ScratchDir string // parent of per-job scratch dirs; defaults to os.TempDir()
	Run        RunFunc
	Log        zerolog.Logger
}

// Transcoder normalizes any supported voice message to canonical
// 16 kHz mono PCM16LE WAV using ffmpeg.
type Transcoder struct {
	ffmpeg     string
	scratchDir string
	run        RunFunc
	log        zerolog.Logger

	availOnce sync.Once
	avail     bool
}

// New creates a Transcoder.
func New(opts Options) *Transcoder {
	bin := opts.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}
	run := opts.Run
	if run == nil {
		run = execRun
	}
	return &Transcoder{
		ffmpeg:     bin,
		scratchDir: opts.ScratchDir,
		run:        run,
		log:        opts.Log,
	}
}

// Available reports whether the ffmpeg binary can be found. Checked once.
func (t *Transcoder) Available() bool {
	t.availOnce.Do(func() {
		_, err := exec.LookPath(t.ffmpeg)
		t.avail = err == nil
	})
	return t.avail
}

// Transcode converts blob to canonical audio. Input and output live in a
// scratch directory unique to this call, removed on every return path.
func (t *Transcoder) Transcode(ctx context.Context, blob *audio.Blob, format audio.Format) (*audio.Canonical, error) {
	demuxer := demuxerFor(format)
	if demuxer == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	dir, err := os.MkdirTemp(t.scratchDir, "voicescribe-*")
	if err != nil {
		return nil, &Error{Op: "scratch", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			t.log.Warn().Err(err).Str("dir", dir).Msg("failed to remove scratch dir")
		}
	}()

	inPath := filepath.Join(dir, "input"+format.Extension())
	outPath := filepath.Join(dir, "canonical.wav")

	if err := os.WriteFile(inPath, blob.Data, 0o600); err != nil {
		return nil, &Error{Op: "scratch", Err: err}
	}

	output, err := t.run(ctx, t.ffmpeg, ffmpegArgs(demuxer, inPath, outPath))
	if err != nil {
		return nil, &Error{Op: "ffmpeg", Output: trimOutput(output), Err: err}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	canonical, err := audio.NewCanonical(data)
	if err != nil {
		return nil, &Error{Op: "validate", Err: err}
	}

	t.log.Debug().
		Str("format", format.String()).
		Int("in_bytes", len(blob.Data)).
		Int("out_bytes", len(data)).
		Dur("audio_duration", canonical.Duration()).
		Msg("transcoded to canonical wav")

	return canonical, nil
}

// demuxerFor returns the ffmpeg input format for a supported Format, or ""
// for FormatUnknown.
func demuxerFor(f audio.Format) string {
	switch f {
	case audio.FormatOggOpus:
		return "ogg"
	case audio.FormatMP3:
		return "mp3"
	case audio.FormatWAV:
		return "wav"
	case audio.FormatWebM:
		return "matroska"
	case audio.FormatUnknown:
		return ""
	}
	return ""
}

// ffmpegArgs builds the canonicalization command:
//   - force the detected demuxer
//   - drop video and metadata
//   - resample to 16 kHz mono signed 16-bit little-endian PCM
//   - bitexact muxing so identical input yields identical bytes
func ffmpegArgs(demuxer, inPath, outPath string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-f", demuxer,
		"-i", inPath,
		"-vn",
		"-map_metadata", "-1",
		"-ac", strconv.Itoa(audio.CanonicalChannels),
		"-ar", strconv.Itoa(audio.CanonicalSampleRate),
		"-c:a", "pcm_s16le",
		"-fflags", "+bitexact",
		"-flags:a", "+bitexact",
		"-f", "wav",
		outPath,
	}
}

func execRun(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func trimOutput(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
