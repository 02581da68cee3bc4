package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Exchange is one recorded API round trip
type Exchange struct {
	Method     string          `json:"method"`
	URL        string          `json:"url"`
	StatusCode int             `json:"status_code"`
	Recorded   time.Time       `json:"recorded"`
	Body       json.RawMessage `json:"body,omitempty"`
	RawBody    string          `json:"raw_body,omitempty"`
}

// Recorder writes exchanges to <dir>/<session>/<category>-NNNN.json. It is used to
// collect fixtures and to debug odd API responses.
type Recorder struct {
	dir string
	log zerolog.Logger
	now func() time.Time
	seq atomic.Uint64
}

// NewRecorder returns a Recorder writing under dir in a directory named after the
// current time
func NewRecorder(dir string, log zerolog.Logger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		dir: filepath.Join(dir, now().Format("20060102-150405")),
		log: log,
		now: now,
	}
}

// Dir is the session directory files are written to
func (r *Recorder) Dir() string { return r.dir }

// Record stores one exchange. Failures are logged and otherwise ignored.
func (r *Recorder) Record(category string, ex Exchange) {
	data, err := json.MarshalIndent(ex, "", "  ")
	if err != nil {
		r.log.Warn().Err(err).Str("category", category).Msg("capture: failed to marshal exchange")
		return
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.log.Warn().Err(err).Str("dir", r.dir).Msg("capture: failed to create directory")
		return
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%04d.json", category, r.seq.Add(1)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("capture: failed to write file")
		return
	}
	r.log.Debug().Str("path", path).Msg("capture: wrote exchange")
}

// Transport records every response passing through it
type Transport struct {
	Base     http.RoundTripper
	Recorder *Recorder
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if readErr != nil {
		return nil, readErr
	}

	ex := Exchange{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Recorded:   t.Recorder.now().UTC(),
	}
	if json.Valid(body) {
		ex.Body = body
	} else {
		ex.RawBody = string(body)
	}
	t.Recorder.Record(Category(req), ex)
	return resp, nil
}

// Category names a request by the API it calls
func Category(req *http.Request) string {
	path := strings.TrimSuffix(req.URL.Path, "/")
	switch {
	case strings.HasSuffix(path, "/graphql"):
		return "graphql"
	case strings.HasSuffix(path, "/issues"):
		return "issues"
	default:
		return "api"
	}
}
