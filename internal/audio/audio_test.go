package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sine(n, rate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestFitLength(t *testing.T) {
	tests := []struct {
		name string
		in   int
	}{
		{"shorter", 10000},
		{"exact", 48000},
		{"longer", 60000},
		{"empty", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Signal{Samples: sine(tt.in, 16000, 440), SampleRate: 16000}
			got := FitLength(sig, 3)
			if len(got.Samples) != 48000 {
				t.Fatalf("len = %d, want 48000", len(got.Samples))
			}
			if got.SampleRate != 16000 {
				t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
			}
			n := min(tt.in, 48000)
			for i := 0; i < n; i++ {
				if got.Samples[i] != sig.Samples[i] {
					t.Fatalf("sample %d = %f, want %f", i, got.Samples[i], sig.Samples[i])
				}
			}
			for i := n; i < 48000; i++ {
				if got.Samples[i] != 0 {
					t.Fatalf("padding sample %d = %f, want 0", i, got.Samples[i])
				}
			}
		})
	}
}

func TestFitLengthHalfDuration(t *testing.T) {
	sig := Signal{Samples: sine(24000, 16000, 220), SampleRate: 16000}
	got := FitLength(sig, 3)
	for i := 24000; i < 48000; i++ {
		if got.Samples[i] != 0 {
			t.Fatalf("second half not silent at %d", i)
		}
	}
}

func TestFitLengthDoesNotAlias(t *testing.T) {
	sig := Signal{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 1}
	got := FitLength(sig, 2)
	got.Samples[0] = 9
	if sig.Samples[0] != 0.1 {
		t.Error("FitLength modified the input signal")
	}
}

func TestSignalDuration(t *testing.T) {
	sig := Signal{Samples: make([]float32, 8000), SampleRate: 16000}
	if got := sig.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration() = %v, want 500ms", got)
	}
	if got := (Signal{}).Duration(); got != 0 {
		t.Errorf("zero signal Duration() = %v, want 0", got)
	}
}

func TestDownmix(t *testing.T) {
	got := downmix([]float32{1, 0, 0.5, -0.5, -1, -1}, 2)
	want := []float32{0.5, 0, -1}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := sine(16000, 16000, 440)
	samples = append(samples, 1, -1, 0, 1.5, -2)
	sig := Signal{Samples: samples, SampleRate: 16000}

	data, err := EncodeWAV(sig)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	if want := 44 + 2*len(samples); len(data) != want {
		t.Fatalf("encoded size = %d, want %d", len(data), want)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: %q", data[:12])
	}

	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if got.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
	}
	if len(got.Samples) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(got.Samples), len(samples))
	}
	for i, s := range samples {
		want := float64(clamp(s))
		if d := math.Abs(float64(got.Samples[i]) - want); d > 1.0/32768 {
			t.Fatalf("sample %d: |%f - %f| = %g exceeds 1/32768", i, got.Samples[i], want, d)
		}
	}
}

func TestQuantizeExtremes(t *testing.T) {
	if got := quantize16(1); got != 32767 {
		t.Errorf("quantize16(1) = %d, want 32767", got)
	}
	if got := quantize16(-1); got != -32768 {
		t.Errorf("quantize16(-1) = %d, want -32768", got)
	}
	if got := dequantize(-32768, 16); got != -1 {
		t.Errorf("dequantize(-32768) = %f, want -1", got)
	}
	if got := dequantize(128, 8); got != 0 {
		t.Errorf("dequantize(128, 8) = %f, want 0", got)
	}
}

func TestEncodeWAVInvalidRate(t *testing.T) {
	if _, err := EncodeWAV(Signal{Samples: []float32{0}}); err == nil {
		t.Fatal("EncodeWAV() with zero rate should fail")
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"wav", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), FormatWAV},
		{"id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90, 0x00}, FormatMP3},
		{"text", []byte("hello world"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"unknown", []byte("definitely not audio"), FormatUnknown},
		{"bad wav", []byte("RIFF\x04\x00\x00\x00WAVE"), FormatWAV},
		{"bad mp3", []byte{0x00, 0x01, 0x02, 0x03}, FormatMP3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tt.format)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("Decode() error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestDecodeFileWAV(t *testing.T) {
	sig := Signal{Samples: sine(800, 8000, 100), SampleRate: 8000}
	data, err := EncodeWAV(sig)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if got.SampleRate != 8000 || len(got.Samples) != 800 {
		t.Errorf("got rate=%d len=%d, want 8000/800", got.SampleRate, len(got.Samples))
	}
}

func TestDecodeFileMissing(t *testing.T) {
	if _, err := DecodeFile(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("DecodeFile() on missing file should fail")
	}
}

func TestFormatFromExt(t *testing.T) {
	if formatFromExt("a/B.WAV") != FormatWAV {
		t.Error("expected wav for .WAV")
	}
	if formatFromExt("x.mp3") != FormatMP3 {
		t.Error("expected mp3 for .mp3")
	}
	if formatFromExt("x.flac") != FormatUnknown {
		t.Error("expected unknown for .flac")
	}
}

func TestResampleSameRate(t *testing.T) {
	sig := Signal{Samples: []float32{0.1, -0.2, 0.3}, SampleRate: 16000}
	got, err := Resample(sig, 16000)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	for i := range sig.Samples {
		if got.Samples[i] != sig.Samples[i] {
			t.Fatalf("sample %d changed", i)
		}
	}
	got.Samples[0] = 5
	if sig.Samples[0] != 0.1 {
		t.Error("Resample aliased its input")
	}
}

func TestResampleDown(t *testing.T) {
	sig := Signal{Samples: sine(16000, 16000, 200), SampleRate: 16000}
	got, err := Resample(sig, 8000)
	if err != nil {
		t.Fatalf("Resample() error = %v", err)
	}
	if got.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", got.SampleRate)
	}
	if d := len(got.Samples) - 8000; d < -40 || d > 40 {
		t.Errorf("len = %d, want 8000 +/- 40", len(got.Samples))
	}
	for i, s := range got.Samples {
		if s > 1 || s < -1 {
			t.Fatalf("sample %d = %f out of range", i, s)
		}
	}
}

func TestResampleKeepsTail(t *testing.T) {
	tests := []struct {
		from, to int
	}{
		{44100, 16000},
		{48000, 16000},
		{8000, 16000},
	}
	for _, tt := range tests {
		sig := Signal{Samples: sine(tt.from, tt.from, 440), SampleRate: tt.from}
		got, err := Resample(sig, tt.to)
		if err != nil {
			t.Fatalf("Resample(%d -> %d) error = %v", tt.from, tt.to, err)
		}
		// One second in, one second out, within 0.5%.
		tol := tt.to / 200
		if d := len(got.Samples) - tt.to; d < -tol || d > tol {
			t.Errorf("Resample(%d -> %d) len = %d, want %d +/- %d", tt.from, tt.to, len(got.Samples), tt.to, tol)
		}
	}
}

func TestResampleInvalidRates(t *testing.T) {
	if _, err := Resample(Signal{SampleRate: 16000}, 0); err == nil {
		t.Error("Resample() to rate 0 should fail")
	}
	if _, err := Resample(Signal{}, 16000); err == nil {
		t.Error("Resample() from rate 0 should fail")
	}
}
