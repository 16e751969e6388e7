package classify

import (
	"context"
	"math"
	"os"
	"testing"
)

func TestRank(t *testing.T) {
	labels := []string{"Español", "Inglés", "Francés", "Alemán"}
	got := Rank([]float32{0.1, 0.6, 0.2, 0.1}, labels)

	want := []string{"Inglés", "Francés", "Español", "Alemán"}
	for i, w := range want {
		if got[i].Label != w {
			t.Errorf("rank %d = %q, want %q", i, got[i].Label, w)
		}
	}
	if got[0].Probability != 0.6 {
		t.Errorf("top probability = %f, want 0.6", got[0].Probability)
	}
}

func TestRankMoreOutputsThanLabels(t *testing.T) {
	got := Rank([]float32{0.2, 0.8}, []string{"human"})
	if got[0].Label != "class_1" {
		t.Errorf("unlabeled output = %q, want class_1", got[0].Label)
	}
}

func TestSoftmax(t *testing.T) {
	got := Softmax([]float32{1, 2, 3})
	var sum float64
	for _, v := range got {
		sum += float64(v)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("sum = %f, want 1", sum)
	}
	if !(got[2] > got[1] && got[1] > got[0]) {
		t.Errorf("softmax not monotonic: %v", got)
	}

	// large logits must not overflow
	big := Softmax([]float32{1000, 1000})
	if math.IsNaN(float64(big[0])) || math.Abs(float64(big[0])-0.5) > 1e-6 {
		t.Errorf("Softmax(large) = %v, want [0.5 0.5]", big)
	}
	if Softmax(nil) != nil {
		t.Error("Softmax(nil) should be nil")
	}
}

func TestAsProbabilities(t *testing.T) {
	probs := []float32{0.25, 0.75}
	got := AsProbabilities(probs)
	if got[0] != 0.25 || got[1] != 0.75 {
		t.Errorf("distribution changed: %v", got)
	}

	logits := AsProbabilities([]float32{-2, 3})
	if logits[1] < 0.99 {
		t.Errorf("logits not softmaxed: %v", logits)
	}

	unnormalized := AsProbabilities([]float32{0.5, 0.9})
	if s := unnormalized[0] + unnormalized[1]; math.Abs(float64(s)-1) > 1e-6 {
		t.Errorf("sum = %f, want 1", s)
	}
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		shape   []int64
		wantErr bool
	}{
		{"match", 1 * 186 * 39, []int64{1, 186, 39}, false},
		{"mismatch", 10, []int64{1, 2, 3}, true},
		{"empty", 0, nil, true},
		{"zero dim", 0, []int64{1, 0, 39}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkShape(tt.n, tt.shape)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkShape() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRuntimeDefaults(t *testing.T) {
	rt := NewRuntime(RuntimeOptions{})
	if rt.opts.InputName != "input" || rt.opts.OutputName != "output" {
		t.Errorf("names = %q/%q, want input/output", rt.opts.InputName, rt.opts.OutputName)
	}
	if err := rt.Close(); err != nil {
		t.Errorf("Close() on unused runtime = %v", err)
	}
}

func TestOpenEmptyModel(t *testing.T) {
	rt := NewRuntime(RuntimeOptions{})
	if _, err := rt.Open("language", nil); err == nil {
		t.Fatal("Open() with empty model should fail")
	}
}

func TestOpenInvalidModel(t *testing.T) {
	lib := os.Getenv("ONNXRUNTIME_LIB")
	if lib == "" {
		t.Skip("ONNXRUNTIME_LIB not set")
	}
	rt := NewRuntime(RuntimeOptions{Library: lib})
	defer rt.Close()

	if _, err := rt.Open("language", []byte("not an onnx model")); err == nil {
		t.Fatal("Open() with garbage should fail")
	}
}

func TestClosedSessionPredict(t *testing.T) {
	s := &onnxSession{name: "spoof", rt: NewRuntime(RuntimeOptions{})}
	_, err := s.Predict(context.Background(), []float32{1}, []int64{1})
	if err == nil {
		t.Fatal("Predict() on closed session should fail")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on closed session = %v", err)
	}
}
