package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Canonical audio parameters accepted by the recognition service.
const (
	CanonicalSampleRate    = 16000
	CanonicalChannels      = 1
	CanonicalBitsPerSample = 16
	CanonicalContentType   = "audio/wav"
	CanonicalFilename      = "voice.wav"
)

// Canonical is a RIFF/WAVE PCM16LE, 16 kHz mono recording.
type Canonical struct {
	Data          []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int // size of the PCM payload, header excluded
}

// Duration returns the playback length of the PCM payload.
func (c *Canonical) Duration() time.Duration {
	if c == nil || c.SampleRate == 0 || c.Channels == 0 || c.BitsPerSample == 0 {
		return 0
	}
	frameBytes := c.Channels * c.BitsPerSample / 8
	frames := c.DataBytes / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// WAVHeader holds the fields of a WAVE "fmt " chunk that matter here.
type WAVHeader struct {
	AudioFormat   uint16 // 1 = PCM
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// ParseWAVHeader walks the RIFF chunks of data and returns the format and
// the size of the data chunk.
func ParseWAVHeader(data []byte) (WAVHeader, error) {
	var h WAVHeader
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, errNotWAV
	}

	var haveFmt, haveData bool
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return h, fmt.Errorf("wav: truncated fmt chunk")
			}
			h.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			h.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			h.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			h.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			// Streamed WAVs may carry a placeholder size; clamp to what is present.
			if body+size > len(data) || size == 0 {
				size = len(data) - body
			}
			h.DataBytes = size
			haveData = true
		}
		if haveFmt && haveData {
			return h, nil
		}

		// Chunks are word aligned.
		off = body + size + size%2
	}

	if !haveFmt {
		return h, fmt.Errorf("wav: missing fmt chunk")
	}
	return h, fmt.Errorf("wav: missing data chunk")
}

// NewCanonical validates that data is canonical WAV and wraps it.
func NewCanonical(data []byte) (*Canonical, error) {
	h, err := ParseWAVHeader(data)
	if err != nil {
		return nil, err
	}
	if h.AudioFormat != 1 {
		return nil, fmt.Errorf("wav: audio format %d is not PCM", h.AudioFormat)
	}
	if h.SampleRate != CanonicalSampleRate || h.Channels != CanonicalChannels || h.BitsPerSample != CanonicalBitsPerSample {
		return nil, fmt.Errorf("wav: got %d Hz/%d ch/%d bit, want %d Hz/%d ch/%d bit",
			h.SampleRate, h.Channels, h.BitsPerSample,
			CanonicalSampleRate, CanonicalChannels, CanonicalBitsPerSample)
	}
	return &Canonical{
		Data:          data,
		SampleRate:    h.SampleRate,
		Channels:      h.Channels,
		BitsPerSample: h.BitsPerSample,
		DataBytes:     h.DataBytes,
	}, nil
}

// EncodeWAV wraps raw PCM16LE samples in a minimal canonical WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bits = 16
	blockAlign := channels * bits / 8
	out := make([]byte, 44+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bits)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}
