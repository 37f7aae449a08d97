package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/hazardwatch/edge-next/internal/app/appconfig"
	"github.com/hazardwatch/edge-next/internal/model"
)

// Uplink is the client for the remote submission endpoint. It speaks the
// endpoint's multipart contract and classifies failures so the sync engine
// can decide between automatic retry and manual-only retry.
type Uplink struct {
	endpoint string
	client   *http.Client
}

func NewUplink(conf *appconfig.Config) *Uplink {
	return &Uplink{
		endpoint: strings.TrimRight(conf.UpstreamBaseURL, "/") + conf.SubmitPath,
		client: &http.Client{
			Timeout: conf.SubmitTimeout,
		},
	}
}

// SubmitError is a non-2xx response from the submission endpoint. Transport
// level failures (unreachable, timeout) are returned as plain wrapped errors
// and are always transient.
type SubmitError struct {
	StatusCode int
	Message    string
}

func (e *SubmitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("submission rejected with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("submission rejected with status %d", e.StatusCode)
}

// Permanent reports whether the endpoint rejected the report data itself
// (4xx). Resubmitting identical data would fail identically, so such reports
// are not retried automatically.
func (e *SubmitError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Transient reports whether err is worth retrying automatically on a later
// pass: network-class errors and server-side (5xx) failures are, data
// rejections (4xx) are not.
func Transient(err error) bool {
	var se *SubmitError
	if errors.As(err, &se) {
		return !se.Permanent()
	}
	return true
}

// Submit delivers one report, media attached when present, to the submission
// endpoint. A nil return means the endpoint acknowledged with a 2xx; the
// report may then be purged.
func (u *Uplink) Submit(ctx context.Context, report *model.PendingReport, media *model.MediaBlob) error {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fields := map[string]string{
		"event_type":  report.EventType,
		"description": report.Description,
		"severity":    strconv.Itoa(report.Severity),
		"lat":         strconv.FormatFloat(report.Lat, 'f', -1, 64),
		"lng":         strconv.FormatFloat(report.Lng, 'f', -1, 64),
		"timestamp":   report.CreatedAt.UTC().Format(time.RFC3339),
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return errors.Wrap(err, "write multipart field")
		}
	}

	if media != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, media.Filename))
		h.Set("Content-Type", media.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return errors.Wrap(err, "create multipart media part")
		}
		if _, err := part.Write(media.Payload); err != nil {
			return errors.Wrap(err, "write multipart media part")
		}
	}

	if err := w.Close(); err != nil {
		return errors.Wrap(err, "finalize multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return errors.Wrap(err, "build submission request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		// transport-level: unreachable, DNS, timeout. Always transient.
		return errors.Wrap(err, "submit report")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &SubmitError{
		StatusCode: resp.StatusCode,
		Message:    extractMessage(resp.Body),
	}
}

// extractMessage pulls the endpoint's optional `message` field out of an
// error response body for use as lastError.
func extractMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Message
}
