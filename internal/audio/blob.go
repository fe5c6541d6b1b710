package audio

import (
	"errors"
	"fmt"
)

// DefaultMaxBytes is the largest voice message accepted for transcription.
const DefaultMaxBytes = 25 * 1024 * 1024

// ErrPayloadTooLarge is returned by CheckSize for oversized blobs.
var ErrPayloadTooLarge = errors.New("audio payload too large")

// Blob is the raw result of downloading a voice message.
type Blob struct {
	Data        []byte
	ContentType string // media type from the response, parameters stripped
	Extension   string // trailing extension of the source URL path, e.g. ".ogg"
}

// Size returns the number of bytes in the blob.
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// CheckSize rejects blobs larger than maxBytes. A non-positive maxBytes
// falls back to DefaultMaxBytes.
func CheckSize(b *Blob, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size := int64(b.Size()); size > maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrPayloadTooLarge, size, maxBytes)
	}
	return nil
}
