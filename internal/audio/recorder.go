package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Recorder captures audio from the default microphone into a float32 buffer.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu        sync.Mutex
	buf       []float32
	recording bool
	interrupt chan struct{}
}

// NewRecorder creates a new audio recorder. Call Close() when done.
func NewRecorder(sampleRate, channels uint32) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError(fmt.Errorf("initializing audio context: %w", err))
	}

	r := &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}

	return r, nil
}

// SampleRate returns the capture rate in Hz.
func (r *Recorder) SampleRate() int { return int(r.sampleRate) }

// Start begins capturing audio from the default microphone.
// Audio samples are accumulated in an internal buffer as float32 values.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("audio: already recording")
	}
	r.buf = r.buf[:0] // reset buffer but keep capacity
	r.recording = true
	r.interrupt = make(chan struct{})
	r.mu.Unlock()

	if devs, err := r.ctx.Devices(malgo.Capture); err == nil && len(devs) == 0 {
		r.abort()
		return &DeviceAccessError{Reason: ReasonNoDevice}
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.abort()
		return classifyDeviceError(fmt.Errorf("initializing capture device: %w", err))
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.abort()
		return classifyDeviceError(fmt.Errorf("starting capture device: %w", err))
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	return nil
}

// abort clears the recording flag after a failed Start.
func (r *Recorder) abort() {
	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()
}

// Stop ends the audio capture and returns the recorded samples as float32,
// interleaved if the recorder has more than one channel.
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	dev := r.device
	r.device = nil

	// Return a copy of the buffer
	result := make([]float32, len(r.buf))
	copy(result, r.buf)
	r.mu.Unlock()

	// Uninit waits for the audio thread, which may be blocked in onData
	// on r.mu, so it must run unlocked.
	if dev != nil {
		dev.Uninit()
	}

	return result
}

// Interrupt ends an in-progress Capture early. Capture still returns
// everything recorded up to this point.
func (r *Recorder) Interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || r.interrupt == nil {
		return
	}
	select {
	case <-r.interrupt:
	default:
		close(r.interrupt)
	}
}

// Capture records for duration d and returns one mono signal assembled
// from every delivered chunk in arrival order. It returns early when
// Interrupt is called. If ctx is cancelled first the recording is
// discarded and ctx.Err() is returned. The device is released on every
// path.
func (r *Recorder) Capture(ctx context.Context, d time.Duration) (Signal, error) {
	if d <= 0 {
		return Signal{}, fmt.Errorf("audio: capture duration must be > 0, got %s", d)
	}
	if err := r.Start(); err != nil {
		return Signal{}, err
	}

	r.mu.Lock()
	interrupt := r.interrupt
	r.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-interrupt:
	case <-ctx.Done():
		r.Stop()
		return Signal{}, ctx.Err()
	}

	samples := r.Stop()
	return Signal{
		Samples:    downmix(samples, int(r.channels)),
		SampleRate: int(r.sampleRate),
	}, nil
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	dev := r.device
	r.device = nil
	r.recording = false
	r.mu.Unlock()

	if dev != nil {
		dev.Uninit()
	}

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}

	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured audio frames as raw bytes (float32 format).
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * r.channels
	samples := bytesToFloat32(pSample, sampleCount)

	r.mu.Lock()
	if r.recording {
		r.buf = append(r.buf, samples...)
	}
	r.mu.Unlock()
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, clamp(math.Float32frombits(bits)))
	}
	return samples
}

// Device describes a capture device.
type Device struct {
	Name    string
	Default bool
}

// ListCaptureDevices returns the capture devices the audio backend sees.
func ListCaptureDevices() ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classifyDeviceError(fmt.Errorf("initializing audio context: %w", err))
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, classifyDeviceError(fmt.Errorf("enumerating capture devices: %w", err))
	}
	devs := make([]Device, 0, len(infos))
	for i := range infos {
		devs = append(devs, Device{Name: infos[i].Name(), Default: infos[i].IsDefault != 0})
	}
	return devs, nil
}
