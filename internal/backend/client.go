// Package backend submits recorded utterances to a remote analysis
// service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultFieldName is the multipart field carrying the WAV file.
	DefaultFieldName = "audio"
	// FileName is the filename sent with the upload.
	FileName = "recording.wav"

	maxResponseBytes = 1 << 20
)

// TransportError reports a failed submission. StatusCode is zero when
// the request never got an HTTP response.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("backend: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result is the decoded analysis response. Fields the service does not
// send stay zero; Fields and Raw keep the complete response.
type Result struct {
	RequestID  string             `json:"-"`
	Label      string             `json:"label,omitempty"`
	Language   string             `json:"language,omitempty"`
	Accent     string             `json:"accent,omitempty"`
	Spoof      *bool              `json:"spoof,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Fields     map[string]any     `json:"-"`
	Raw        json.RawMessage    `json:"-"`
}

// Options configures a Client.
type Options struct {
	URL       string
	FieldName string
	Timeout   time.Duration
}

// Client uploads WAV recordings to one analysis endpoint. Failures are
// returned to the caller; nothing is retried.
type Client struct {
	url   string
	field string
	http  *http.Client
	log   logrus.FieldLogger
}

// NewClient returns a Client for opts.URL.
func NewClient(opts Options, log logrus.FieldLogger) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("backend: no URL configured")
	}
	field := opts.FieldName
	if field == "" {
		field = DefaultFieldName
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		url:   opts.URL,
		field: field,
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

// Submit posts wav as a multipart file upload and decodes the JSON
// reply.
func (c *Client) Submit(ctx context.Context, wav []byte) (*Result, error) {
	body, contentType, err := c.encode(wav)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("backend: building request: %w", err)
	}
	id := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)

	log := c.log.WithFields(logrus.Fields{"request_id": id, "bytes": len(wav)})
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("submission failed")
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}
	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "elapsed": time.Since(start)})
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("backend rejected submission")
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: snippet(raw)}
	}

	res, err := decodeResult(raw)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	res.RequestID = id
	log.Info("submission analyzed")
	return res, nil
}

func (c *Client) encode(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(c.field), escapeQuotes(FileName)))
	h.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("backend: encoding upload: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("backend: encoding upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: encoding upload: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func decodeResult(raw []byte) (*Result, error) {
	res := &Result{Raw: json.RawMessage(raw)}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response")
	}
	if trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, errors.New("decoding response: invalid JSON")
		}
		return res, nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if err := json.Unmarshal(raw, &res.Fields); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return res, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// escapeQuotes escapes a Content-Disposition parameter the way
// multipart.Writer.CreateFormFile does.
func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func snippet(b []byte) string {
	const n = 200
	b = bytes.TrimSpace(b)
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
