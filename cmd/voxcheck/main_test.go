package main

import (
	"math"
	"testing"

	"github.com/chaz8081/voxcheck/internal/features"
)

func TestSummarize(t *testing.T) {
	seq := features.Sequence{{-1, 1}, {1, -1}}
	st := summarize(seq)
	if st.Shape[0] != 2 || st.Shape[1] != 2 {
		t.Errorf("Shape = %v, want [2 2]", st.Shape)
	}
	if st.Min != -1 || st.Max != 1 {
		t.Errorf("Min/Max = %v/%v, want -1/1", st.Min, st.Max)
	}
	if st.Mean != 0 || math.Abs(st.Std-1) > 1e-9 {
		t.Errorf("Mean/Std = %v/%v, want 0/1", st.Mean, st.Std)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	st := summarize(nil)
	if st.Min != 0 || st.Max != 0 {
		t.Errorf("empty summary = %+v", st)
	}
}

func TestConfigInitWritesFile(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	g := &globals{configPath: path}
	cmd := newConfigCmd(g)
	cmd.SetArgs([]string{"init"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	// second run is a no-op
	cmd.SetArgs([]string{"init"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("second config init error = %v", err)
	}
}
