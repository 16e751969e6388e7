package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// Format names an encoded audio container.
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

// DetectFormat sniffs the container from the leading bytes.
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// formatFromExt maps a file extension to a Format.
func formatFromExt(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// DecodeFile reads and decodes an audio file into a mono Signal at its
// native sample rate. The content is sniffed first; the extension is
// only a fallback.
func DecodeFile(path string) (Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Signal{}, fmt.Errorf("audio: reading %s: %w", path, err)
	}
	format := DetectFormat(data)
	if format == FormatUnknown {
		format = formatFromExt(path)
	}
	return Decode(data, format)
}

// Decode decodes data in the given format. FormatUnknown sniffs the
// content. Failures are returned as *DecodeError.
func Decode(data []byte, format Format) (Signal, error) {
	if format == FormatUnknown {
		format = DetectFormat(data)
	}
	switch format {
	case FormatWAV:
		return DecodeWAV(data)
	case FormatMP3:
		return decodeMP3(data)
	default:
		return Signal{}, &DecodeError{Err: errors.New("unrecognized audio encoding (supported: wav, mp3)")}
	}
}

// decodeMP3 decodes an MP3 stream. go-mp3 always emits interleaved
// stereo 16-bit little-endian PCM.
func decodeMP3(data []byte) (Signal, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Signal{}, &DecodeError{Format: "mp3", Err: err}
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return Signal{}, &DecodeError{Format: "mp3", Err: err}
	}
	if len(raw) == 0 {
		return Signal{}, &DecodeError{Format: "mp3", Err: errors.New("no audio frames")}
	}
	if len(raw)%4 != 0 {
		return Signal{}, &DecodeError{Format: "mp3", Err: fmt.Errorf("unexpected decoded length %d", len(raw))}
	}

	stereo := make([]float32, len(raw)/2)
	for i := range stereo {
		v := int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		stereo[i] = dequantize(v, wavBitDepth)
	}
	return Signal{
		Samples:    downmix(stereo, 2),
		SampleRate: dec.SampleRate(),
	}, nil
}
