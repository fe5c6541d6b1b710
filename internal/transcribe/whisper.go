package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/snarg/voicescribe/internal/audio"
)

// DefaultWhisperURL is the OpenAI transcription endpoint.
const DefaultWhisperURL = "https://api.openai.com/v1/audio/transcriptions"

// DefaultLanguage is the language hint sent when none is configured.
const DefaultLanguage = "ru"

// maxErrorDetail bounds how much of an upstream error body ends up in messages.
const maxErrorDetail = 512

// maxResponseBytes caps how much of a recognizer response is read.
const maxResponseBytes = 1 << 20

// WhisperClient calls an OpenAI-compatible /v1/audio/transcriptions endpoint.
type WhisperClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// TranscribeOpts are per-request options. Zero-value fields other than
// Language are omitted from the request.
type TranscribeOpts struct {
	Language    string  // defaults to DefaultLanguage
	Prompt      string  // domain vocabulary / initial prompt
	Temperature float64 // 0 = server default
}

// whisperResponse is the json response body. Text is a pointer so a missing
// field can be told apart from an empty transcript.
type whisperResponse struct {
	Text *string `json:"text"`
}

// apiErrorResponse is the OpenAI error envelope.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewWhisperClient creates a new Whisper HTTP client. apiKey is sent as a
// bearer token.
func NewWhisperClient(url, apiKey, model string, timeout time.Duration) *WhisperClient {
	if url == "" {
		url = DefaultWhisperURL
	}
	return &WhisperClient{
		url:    url,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model identifier.
func (wc *WhisperClient) Model() string { return wc.model }

// Transcribe uploads canonical audio as multipart/form-data and returns the
// recognised text. One attempt; failures are returned to the caller.
func (wc *WhisperClient) Transcribe(ctx context.Context, canonical *audio.Canonical, opts TranscribeOpts) (string, error) {
	body, contentType, err := wc.encode(canonical, opts)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wc.url, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	// Content type comes from the multipart writer so it carries the boundary.
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+wc.apiKey)

	resp, err := wc.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RecognitionError{StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	var result whisperResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrRecognitionParse, err)
	}
	if result.Text == nil {
		return "", fmt.Errorf("%w: missing text field", ErrRecognitionParse)
	}
	text := strings.TrimSpace(*result.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrRecognitionParse)
	}
	return text, nil
}

func (wc *WhisperClient) encode(canonical *audio.Canonical, opts TranscribeOpts) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// Audio file field
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, audio.CanonicalFilename))
	header.Set("Content-Type", audio.CanonicalContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(canonical.Data); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	if wc.model != "" {
		w.WriteField("model", wc.model)
	}

	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	w.WriteField("language", lang)

	if opts.Prompt != "" {
		w.WriteField("prompt", opts.Prompt)
	}
	if opts.Temperature > 0 {
		w.WriteField("temperature", fmt.Sprintf("%.2f", opts.Temperature))
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorDetail extracts a readable message from an upstream error body.
func errorDetail(body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return truncate(apiErr.Error.Message, maxErrorDetail)
	}
	return truncate(strings.TrimSpace(string(body)), maxErrorDetail)
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
