package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1
)

// EncodeWAV renders sig as a mono 16-bit PCM RIFF/WAVE file with a
// 44-byte header. Samples are clamped to [-1, 1]; positive values scale
// by 32767 and negative values by 32768.
func EncodeWAV(sig Signal) ([]byte, error) {
	if sig.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid sample rate %d", sig.SampleRate)
	}

	data := make([]int, len(sig.Samples))
	for i, s := range sig.Samples {
		data[i] = quantize16(s)
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sig.SampleRate, wavBitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sig.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	return ws.buf, nil
}

// DecodeWAV parses a PCM WAV file and returns its samples downmixed to
// mono at the file's native rate.
func DecodeWAV(data []byte) (Signal, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Signal{}, &DecodeError{Format: "wav", Err: errors.New("not a valid WAV file")}
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return Signal{}, &DecodeError{Format: "wav", Err: fmt.Errorf("unsupported audio format %d (PCM only)", dec.WavAudioFormat)}
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Signal{}, &DecodeError{Format: "wav", Err: err}
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return Signal{}, &DecodeError{Format: "wav", Err: errors.New("missing sample rate")}
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = dequantize(v, bitDepth)
	}

	return Signal{
		Samples:    downmix(samples, buf.Format.NumChannels),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// quantize16 maps [-1, 1] to int16 range, rounding to nearest.
func quantize16(s float32) int {
	s = clamp(s)
	if s < 0 {
		return int(math.Round(float64(s) * 32768))
	}
	return int(math.Round(float64(s) * 32767))
}

// dequantize inverts quantize16 for any integer PCM bit depth.
// 8-bit WAV data is unsigned and centered on 128.
func dequantize(v, bitDepth int) float32 {
	if bitDepth == 8 {
		v -= 128
	}
	if bitDepth <= 0 {
		bitDepth = wavBitDepth
	}
	neg := float64(int64(1) << (bitDepth - 1))
	if v < 0 {
		return float32(float64(v) / neg)
	}
	return float32(float64(v) / (neg - 1))
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes when it is closed.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, max(end, 2*cap(w.buf)))
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("audio: negative seek position %d", abs)
	}
	w.pos = int(abs)
	return abs, nil
}
