package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/voxcheck/internal/analyze"
	"github.com/chaz8081/voxcheck/internal/audio"
	"github.com/chaz8081/voxcheck/internal/backend"
	"github.com/chaz8081/voxcheck/internal/config"
	"github.com/chaz8081/voxcheck/internal/features"
	"github.com/chaz8081/voxcheck/internal/models"
)

func newRecordCmd(g *globals) *cobra.Command {
	var (
		duration time.Duration
		remote   bool
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone and analyze the utterance",
		Long:  "Records for the configured duration. Ctrl+C ends the recording early and analyzes what was captured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if duration <= 0 {
				duration = time.Duration(e.cfg.Audio.DurationSeconds * float64(time.Second))
			}

			a, cleanup, err := e.analyzer(ctx, remote)
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := audio.NewRecorder(e.cfg.Audio.SampleRate, e.cfg.Audio.Channels)
			if err != nil {
				return err
			}
			defer rec.Close()

			stop := interruptOnSignal(rec, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "Recording %s... (Ctrl+C to stop early)\n", duration)
			sig, err := rec.Capture(ctx, duration)
			// Ctrl+C after this point gets default handling again.
			stop()
			if err != nil {
				return err
			}
			e.log.WithField("duration", sig.Duration().Round(time.Millisecond)).Info("captured audio")
			return report(ctx, g, a, sig, remote)
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "recording length (default: audio.duration_seconds)")
	cmd.Flags().BoolVar(&remote, "submit", false, "upload to the backend instead of scoring locally")
	return cmd
}

func newAnalyzeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Score a WAV or MP3 file with the local models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			sig, err := audio.DecodeFile(args[0])
			if err != nil {
				return err
			}
			a, cleanup, err := e.analyzer(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer cleanup()
			return report(cmd.Context(), g, a, sig, false)
		},
	}
}

func newSubmitCmd(g *globals) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload a WAV or MP3 file to the analysis backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			if url != "" {
				e.cfg.Backend.URL = url
			}
			sig, err := audio.DecodeFile(args[0])
			if err != nil {
				return err
			}
			a, cleanup, err := e.analyzer(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()
			return report(cmd.Context(), g, a, sig, true)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "backend endpoint (default: backend.url)")
	return cmd
}

func report(ctx context.Context, g *globals, a *analyze.Analyzer, sig audio.Signal, remote bool) error {
	if remote {
		res, err := a.Submit(ctx, sig)
		if err != nil {
			return err
		}
		return printResult(g, res)
	}
	r, err := a.Analyze(ctx, sig)
	if err != nil {
		return err
	}
	if g.jsonOut {
		return printJSON(r)
	}
	fmt.Printf("Request:  %s\n", r.RequestID)
	fmt.Printf("Input:    %s\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("Language: %s (%.1f%%)\n", r.Language[0].Label, r.Language[0].Probability*100)
	if len(r.Accent) > 0 {
		fmt.Printf("Accent:   %s (%.1f%%)\n", r.Accent[0].Label, r.Accent[0].Probability*100)
	}
	if r.Spoof != nil {
		fmt.Printf("Voice:    %s (spoof score %.2f)\n", r.Spoof.Label, r.Spoof.Score)
	}
	return nil
}

func printResult(g *globals, res *backend.Result) error {
	if g.jsonOut || (len(res.Raw) > 0 && res.Fields == nil) {
		_, err := fmt.Println(string(res.Raw))
		return err
	}
	fmt.Printf("Request: %s\n", res.RequestID)
	if res.Label != "" {
		fmt.Printf("Label:   %s\n", res.Label)
	}
	if res.Language != "" {
		fmt.Printf("Language: %s\n", res.Language)
	}
	if res.Accent != "" {
		fmt.Printf("Accent:  %s\n", res.Accent)
	}
	if res.Spoof != nil {
		fmt.Printf("Spoof:   %t\n", *res.Spoof)
	}
	if res.Confidence > 0 {
		fmt.Printf("Confidence: %.2f\n", res.Confidence)
	}
	return nil
}

// tensorStats summarizes a feature tensor.
type tensorStats struct {
	Shape []int   `json:"shape"`
	Min   float32 `json:"min"`
	Max   float32 `json:"max"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

func summarize(seq features.Sequence) tensorStats {
	rows, cols := seq.Shape()
	st := tensorStats{Shape: []int{rows, cols}, Min: float32(math.Inf(1)), Max: float32(math.Inf(-1))}
	flat := features.Flatten(seq)
	if len(flat) == 0 {
		st.Min, st.Max = 0, 0
		return st
	}
	var sum, sq float64
	for _, v := range flat {
		st.Min = min(st.Min, v)
		st.Max = max(st.Max, v)
		sum += float64(v)
	}
	st.Mean = sum / float64(len(flat))
	for _, v := range flat {
		d := float64(v) - st.Mean
		sq += d * d
	}
	st.Std = math.Sqrt(sq / float64(len(flat)))
	return st
}

func newFeaturesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "features <file>",
		Short: "Print the feature tensor shape and summary statistics for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			sig, err := audio.DecodeFile(args[0])
			if err != nil {
				return err
			}
			seq, err := analyze.New(e.pipeline, nil, nil, e.log).Features(sig)
			if err != nil {
				return err
			}
			st := summarize(seq)
			if g.jsonOut {
				return printJSON(st)
			}
			fmt.Printf("Shape: %v (model input %v)\n", st.Shape, e.pipeline.Config().InputShape())
			fmt.Printf("Min:   %.4f\n", st.Min)
			fmt.Printf("Max:   %.4f\n", st.Max)
			fmt.Printf("Mean:  %.4f\n", st.Mean)
			fmt.Printf("Std:   %.4f\n", st.Std)
			return nil
		},
	}
}

func newModelsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage classifier model bundles",
	}

	var baseURL string
	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Download the model bundle into the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = e.cfg.Models.BaseURL
			}
			store, err := e.cfg.OpenStore()
			if err != nil {
				return err
			}
			d := &models.Downloader{
				BaseURL:  baseURL,
				Store:    store,
				Progress: os.Stderr,
				Log:      e.log,
			}
			return d.Download(cmd.Context(), models.BundleFor(e.cfg.RegistryOptions()))
		},
	}
	fetch.Flags().StringVar(&baseURL, "base-url", "", "bundle base URL (default: models.base_url)")

	list := &cobra.Command{
		Use:   "list",
		Short: "Load the registry and show which models are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := g.setup()
			if err != nil {
				return err
			}
			reg, cleanup, err := e.registry(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			status := reg.Status()
			if g.jsonOut {
				return printJSON(map[string]any{
					"models": status,
					"labels": reg.Labels(),
					"spoof":  reg.SpoofConfig(),
				})
			}
			for _, s := range status {
				state := "missing"
				if s.Loaded {
					state = "loaded"
				}
				req := "optional"
				if s.Required {
					req = "required"
				}
				fmt.Printf("  %-9s %-8s %-8s %s\n", s.Name, state, req, s.Path)
			}
			fmt.Printf("  labels:   %v\n", reg.Labels())
			sc := reg.SpoofConfig()
			fmt.Printf("  spoof:    threshold %.2f, labels %v\n", sc.Threshold, sc.Labels)
			return nil
		},
	}

	cmd.AddCommand(fetch, list)
	return cmd
}

func newMicCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mic",
		Aliases: []string{"mics", "microphone"},
		Short:   "Inspect capture devices",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			devs, err := audio.ListCaptureDevices()
			if err != nil {
				return err
			}
			if g.jsonOut {
				return printJSON(devs)
			}
			if len(devs) == 0 {
				fmt.Println("No capture devices found.")
				return nil
			}
			for i, d := range devs {
				mark := " "
				if d.Default {
					mark = "*"
				}
				fmt.Printf("%s [%d] %s\n", mark, i, d.Name)
			}
			return nil
		},
	})
	return cmd
}

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path := g.configPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			written, err := config.WriteDefaultTo(path)
			if err != nil {
				return err
			}
			if written == "" {
				fmt.Printf("Config already exists: %s\n", path)
				return nil
			}
			fmt.Printf("Wrote default config to %s\n", written)
			return nil
		},
	})
	return cmd
}

type interrupter interface {
	Interrupt()
}

// interruptOnSignal calls i.Interrupt on the first of sigs received.
// The returned func removes the handler and may be called more than once.
func interruptOnSignal(i interrupter, sigs ...os.Signal) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	go func() {
		if _, ok := <-sigCh; ok {
			i.Interrupt()
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(sigCh)
		})
	}
}
