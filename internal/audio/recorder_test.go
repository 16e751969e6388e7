package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(16000, 1)
	if err != nil {
		t.Skipf("audio backend unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return r
}

func TestNewRecorderAndClose(t *testing.T) {
	r := newTestRecorder(t)

	if r.sampleRate != 16000 {
		t.Errorf("sampleRate = %d, want 16000", r.sampleRate)
	}
	if r.channels != 1 {
		t.Errorf("channels = %d, want 1", r.channels)
	}
	if r.SampleRate() != 16000 {
		t.Errorf("SampleRate() = %d, want 16000", r.SampleRate())
	}
}

func TestRecorderNotRecordingByDefault(t *testing.T) {
	r := newTestRecorder(t)

	if r.IsRecording() {
		t.Error("IsRecording() should be false after creation")
	}
}

func TestStopWithoutStart(t *testing.T) {
	r := newTestRecorder(t)

	samples := r.Stop()
	if samples != nil {
		t.Errorf("Stop() without Start() should return nil, got %d samples", len(samples))
	}
}

func TestInterruptWithoutCaptureIsNoop(t *testing.T) {
	r := newTestRecorder(t)
	r.Interrupt()
	r.Interrupt()
	if r.IsRecording() {
		t.Error("IsRecording() = true after Interrupt on idle recorder")
	}
}

func TestCaptureRejectsNonPositiveDuration(t *testing.T) {
	r := newTestRecorder(t)
	if _, err := r.Capture(context.Background(), 0); err == nil {
		t.Fatal("Capture(0) should fail")
	}
	if r.IsRecording() {
		t.Error("recorder left recording after rejected Capture")
	}
}

func TestCaptureCancelledContext(t *testing.T) {
	r := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Capture(ctx, time.Second)
	var dae *DeviceAccessError
	if errors.As(err, &dae) {
		t.Skipf("no usable capture device: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Capture() error = %v, want context.Canceled", err)
	}
	if r.IsRecording() {
		t.Error("device still recording after cancelled Capture")
	}
}

func TestOnDataIgnoredWhenIdle(t *testing.T) {
	r := &Recorder{channels: 1}
	r.onData(nil, []byte{0x00, 0x00, 0x80, 0x3F}, 1)
	if len(r.buf) != 0 {
		t.Errorf("buf has %d samples while idle, want 0", len(r.buf))
	}

	r.recording = true
	r.onData(nil, []byte{0x00, 0x00, 0x80, 0x3F}, 1)
	r.onData(nil, []byte{0x00, 0x00, 0x80, 0xBF}, 1)
	if len(r.buf) != 2 || r.buf[0] != 1 || r.buf[1] != -1 {
		t.Errorf("buf = %v, want [1 -1] in arrival order", r.buf)
	}
}

func TestStopReleasesBufferBeforeDevice(t *testing.T) {
	r := &Recorder{channels: 1, recording: true, buf: []float32{0.5, -0.5}}

	// Callbacks racing with Stop must never block on it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 100 {
			r.onData(nil, []byte{0x00, 0x00, 0x80, 0x3F}, 1)
		}
	}()

	got := r.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("onData blocked after Stop")
	}

	if len(got) < 2 || got[0] != 0.5 || got[1] != -0.5 {
		t.Fatalf("Stop() = %v, want leading [0.5 -0.5]", got)
	}
	if r.IsRecording() {
		t.Error("IsRecording() = true after Stop")
	}
	if !r.mu.TryLock() {
		t.Fatal("Stop() returned with the mutex held")
	}
	r.mu.Unlock()

	n := len(r.buf)
	r.onData(nil, []byte{0x00, 0x00, 0x80, 0x3F}, 1)
	if len(r.buf) != n {
		t.Error("onData appended after Stop")
	}
}

func TestBytesToFloat32(t *testing.T) {
	// Test with known float32 value: 1.0 = 0x3F800000
	data := []byte{0x00, 0x00, 0x80, 0x3F} // 1.0 in little-endian float32
	samples := bytesToFloat32(data, 1)

	if len(samples) != 1 {
		t.Fatalf("bytesToFloat32() returned %d samples, want 1", len(samples))
	}
	if samples[0] != 1.0 {
		t.Errorf("bytesToFloat32() = %f, want 1.0", samples[0])
	}
}

func TestBytesToFloat32Multiple(t *testing.T) {
	// Two samples: 0.0 and -1.0
	// 0.0 = 0x00000000, -1.0 = 0xBF800000
	data := []byte{
		0x00, 0x00, 0x00, 0x00, // 0.0
		0x00, 0x00, 0x80, 0xBF, // -1.0
	}
	samples := bytesToFloat32(data, 2)

	if len(samples) != 2 {
		t.Fatalf("bytesToFloat32() returned %d samples, want 2", len(samples))
	}
	if samples[0] != 0.0 {
		t.Errorf("samples[0] = %f, want 0.0", samples[0])
	}
	if samples[1] != -1.0 {
		t.Errorf("samples[1] = %f, want -1.0", samples[1])
	}
}

func TestBytesToFloat32ClampsAndTruncates(t *testing.T) {
	// 2.0 = 0x40000000; the trailing 2 bytes are an incomplete sample.
	data := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x00}
	samples := bytesToFloat32(data, 2)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0] != 1 {
		t.Errorf("samples[0] = %f, want clamped 1.0", samples[0])
	}
}

func TestClassifyDeviceError(t *testing.T) {
	tests := []struct {
		msg  string
		want Reason
	}{
		{"initializing capture device: Access denied.", ReasonPermission},
		{"operation not authorized", ReasonPermission},
		{"starting capture device: No device", ReasonNoDevice},
		{"device not found", ReasonNoDevice},
		{"device busy", ReasonUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cause := errors.New(tt.msg)
			got := classifyDeviceError(cause)
			if got.Reason != tt.want {
				t.Errorf("Reason = %v, want %v", got.Reason, tt.want)
			}
			if !errors.Is(got, cause) {
				t.Error("classified error does not unwrap to cause")
			}
			if got.UserMessage() == "" {
				t.Error("UserMessage() is empty")
			}
		})
	}
}

func TestDeviceAccessErrorMessages(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range []Reason{ReasonUnavailable, ReasonPermission, ReasonNoDevice} {
		e := &DeviceAccessError{Reason: r}
		if e.Error() != "audio: "+r.String() {
			t.Errorf("Error() = %q", e.Error())
		}
		seen[e.UserMessage()] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected distinct user messages per reason, got %d", len(seen))
	}
}
