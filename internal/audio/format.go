package audio

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Format is the container/codec of a fetched voice message.
type Format int

const (
	FormatUnknown Format = iota
	FormatOggOpus
	FormatMP3
	FormatWAV
	FormatWebM
)

// Formats lists every supported format. FormatUnknown is not included.
var Formats = []Format{FormatOggOpus, FormatMP3, FormatWAV, FormatWebM}

func (f Format) String() string {
	switch f {
	case FormatOggOpus:
		return "ogg_opus"
	case FormatMP3:
		return "mp3"
	case FormatWAV:
		return "wav"
	case FormatWebM:
		return "webm"
	default:
		return "unknown"
	}
}

// Supported reports whether the format may be handed to the transcoder.
func (f Format) Supported() bool {
	return f != FormatUnknown
}

// Extension returns the canonical file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatOggOpus:
		return ".ogg"
	case FormatMP3:
		return ".mp3"
	case FormatWAV:
		return ".wav"
	case FormatWebM:
		return ".webm"
	default:
		return ".bin"
	}
}

var contentTypeFormats = map[string]Format{
	"audio/mpeg":  FormatMP3,
	"audio/wav":   FormatWAV,
	"audio/x-wav": FormatWAV,
	"audio/ogg":   FormatOggOpus,
	"audio/webm":  FormatWebM,
}

var extensionFormats = map[string]Format{
	".mp3":  FormatMP3,
	".wav":  FormatWAV,
	".ogg":  FormatOggOpus,
	".webm": FormatWebM,
}

// FormatFromContentType maps a Content-Type header value to a Format.
// Parameters (e.g. "; codecs=opus") are ignored.
func FormatFromContentType(contentType string) Format {
	mt := NormalizeContentType(contentType)
	if mt == "" {
		return FormatUnknown
	}
	return contentTypeFormats[mt]
}

// FormatFromExtension maps a file extension (with or without the dot) to a Format.
func FormatFromExtension(ext string) Format {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return FormatUnknown
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return extensionFormats[ext]
}

// DetectFormat resolves the format of a blob. The server-declared content
// type wins over the URL extension; when neither is recognised the result is
// FormatUnknown. It never fails: deciding that unknown is fatal is up to the
// caller.
func DetectFormat(b *Blob) Format {
	if b == nil {
		return FormatUnknown
	}
	if f := FormatFromContentType(b.ContentType); f != FormatUnknown {
		return f
	}
	return FormatFromExtension(b.Extension)
}

// NormalizeContentType strips parameters and lower-cases a media type.
// Returns "" for empty or unparseable values.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fall back to the part before ';' for sloppy servers.
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// ExtensionFromURL returns the lower-cased trailing extension of the URL
// path, including the dot. Query string and fragment are ignored.
func ExtensionFromURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}
