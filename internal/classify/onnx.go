package classify

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// RuntimeOptions configures the ONNX Runtime binding.
type RuntimeOptions struct {
	// Library is the path to the onnxruntime shared library. Empty uses
	// the platform default search.
	Library string
	// InputName and OutputName are the tensor names every model exposes.
	InputName  string
	OutputName string
}

// Runtime owns the process-wide ONNX Runtime environment and opens
// model sessions on it.
type Runtime struct {
	opts RuntimeOptions

	mu       sync.Mutex
	ready    bool
	sessions int
}

// NewRuntime returns a runtime. The shared library is loaded lazily by
// the first Open.
func NewRuntime(opts RuntimeOptions) *Runtime {
	if opts.InputName == "" {
		opts.InputName = "input"
	}
	if opts.OutputName == "" {
		opts.OutputName = "output"
	}
	return &Runtime{opts: opts}
}

func (rt *Runtime) init() error {
	if rt.ready {
		return nil
	}
	if !ort.IsInitialized() {
		if rt.opts.Library != "" {
			ort.SetSharedLibraryPath(rt.opts.Library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("classify: initializing onnxruntime: %w", err)
		}
	}
	rt.ready = true
	return nil
}

// Open creates a session from serialized ONNX model bytes.
func (rt *Runtime) Open(name string, model []byte) (Classifier, error) {
	if len(model) == 0 {
		return nil, fmt.Errorf("classify: model %s is empty", name)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.init(); err != nil {
		return nil, err
	}

	sess, err := ort.NewDynamicAdvancedSessionWithONNXData(model,
		[]string{rt.opts.InputName}, []string{rt.opts.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("classify: creating session for %s: %w", name, err)
	}
	rt.sessions++
	return &onnxSession{name: name, rt: rt, sess: sess}, nil
}

// Close tears down the environment once every session is closed.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.ready {
		return nil
	}
	if rt.sessions > 0 {
		return fmt.Errorf("classify: %d sessions still open", rt.sessions)
	}
	rt.ready = false
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("classify: destroying onnxruntime: %w", err)
	}
	return nil
}

func (rt *Runtime) release() {
	rt.mu.Lock()
	rt.sessions--
	rt.mu.Unlock()
}

// onnxSession is a Classifier over one ONNX model. Tensors live only for
// the duration of a Predict call.
type onnxSession struct {
	name string
	rt   *Runtime

	mu   sync.RWMutex
	sess *ort.DynamicAdvancedSession
}

func (s *onnxSession) Predict(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkShape(len(input), shape); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil, fmt.Errorf("classify: model %s is closed", s.name)
	}

	in, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("classify: %s: creating input tensor: %w", s.name, err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.sess.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("classify: %s: run: %w", s.name, err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("classify: %s: output is %T, want float32 tensor", s.name, outputs[0])
	}
	data := t.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	s.rt.release()
	if err != nil {
		return fmt.Errorf("classify: closing %s: %w", s.name, err)
	}
	return nil
}
