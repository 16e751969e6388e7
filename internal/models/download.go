package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chaz8081/voxcheck/internal/storage"
)

// Bundle lists the files of a model bundle and which of them must exist.
type Bundle struct {
	Required []string
	Optional []string
}

// BundleFor derives the downloadable files from registry options.
func BundleFor(opts Options) Bundle {
	var b Bundle
	specs := opts.Models
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	for _, s := range specs {
		if s.Required {
			b.Required = append(b.Required, s.Path)
		} else {
			b.Optional = append(b.Optional, s.Path)
		}
	}
	labels, spoof := opts.LabelsPath, opts.SpoofConfigPath
	if labels == "" {
		labels = LabelsPath
	}
	if spoof == "" {
		spoof = SpoofConfigPath
	}
	b.Optional = append(b.Optional, labels, spoof)
	return b
}

// Downloader fetches bundle files over HTTP into a FileStore.
type Downloader struct {
	Client  *http.Client
	BaseURL string
	Store   storage.FileStore
	// Progress receives a running byte count per file; nil disables it.
	Progress io.Writer
	Log      logrus.FieldLogger
}

// Download fetches every file of b that the store does not already
// hold. A required file the server lacks is an error; a missing
// optional file is skipped.
func (d *Downloader) Download(ctx context.Context, b Bundle) error {
	if d.BaseURL == "" {
		return fmt.Errorf("models: download: no base URL configured")
	}
	for _, path := range b.Required {
		if err := d.fetch(ctx, path, true); err != nil {
			return err
		}
	}
	for _, path := range b.Optional {
		if err := d.fetch(ctx, path, false); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, path string, required bool) error {
	log := d.logger().WithField("path", path)

	if ok, err := d.Store.Exists(ctx, path); err != nil {
		return fmt.Errorf("models: download %s: %w", path, err)
	} else if ok {
		log.Info("already present, skipping")
		return nil
	}

	url := strings.TrimRight(d.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("models: download %s: %w", path, err)
	}
	resp, err := d.client().Do(req)
	if err != nil {
		return fmt.Errorf("models: downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && !required {
		log.Warn("optional file not on server, skipping")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: download %s failed: HTTP %d", url, resp.StatusCode)
	}

	w, err := d.Store.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("models: download %s: %w", path, err)
	}
	var dst io.Writer = w
	pw := &progressWriter{writer: w, total: resp.ContentLength, label: path, out: d.Progress}
	if d.Progress != nil {
		dst = pw
	}
	written, err := io.Copy(dst, resp.Body)
	if err != nil {
		storage.Abort(w)
		return fmt.Errorf("models: writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("models: storing %s: %w", path, err)
	}
	pw.done()

	log.WithField("bytes", written).Info("downloaded")
	return nil
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Downloader) logger() logrus.FieldLogger {
	if d.Log != nil {
		return d.Log
	}
	return logrus.StandardLogger()
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}

func (pw *progressWriter) done() {
	if pw.out != nil && pw.written > 0 {
		fmt.Fprintln(pw.out)
	}
}
