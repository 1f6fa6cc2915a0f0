package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/report"
	"github.com/RyanBlaney/beep-sonar/transcode"
)

// Offsets of the two beeps in every uploaded recording
var beepsAt = []float64{2, 5}

func showWAV(t *testing.T) []byte {
	return encodeWAV(t, recording(8, beepsAt...))
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(t, s, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "running") {
		t.Errorf("GET / = %d %s", rec.Code, rec.Body.String())
	}

	for _, path := range []string{"/health", "/health/", "/api/health"} {
		t.Run(path, func(t *testing.T) {
			var health HealthResponse
			rec := serve(t, s, httptest.NewRequest(http.MethodGet, path, nil), &health)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, expected 200", rec.Code)
			}
			if health.Status != "healthy" || health.Service != ServiceName || health.Version != Version {
				t.Errorf("health = %+v", health)
			}
			if !health.TemplateAvailable {
				t.Error("template_available = false, expected true")
			}
		})
	}
}

func TestHealthWithoutTemplate(t *testing.T) {
	s := newTestServer(t, func(c *config.Settings) {
		c.Server.DefaultTemplatePath = filepath.Join(t.TempDir(), "missing.wav")
	})

	var health HealthResponse
	serve(t, s, httptest.NewRequest(http.MethodGet, "/health", nil), &health)
	if health.TemplateAvailable {
		t.Error("template_available = true for a missing template")
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(t, s, httptest.NewRequest(http.MethodOptions, "/detect-template-matches", nil), nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, expected 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(t, s, httptest.NewRequest(http.MethodGet, "/detect-frequency-beeps", nil), nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on a POST route = %d, expected 405", rec.Code)
	}
}

func TestDetectFrequencyBeeps(t *testing.T) {
	s := newTestServer(t, nil)
	body := showWAV(t)

	for _, path := range []string{"/detect-frequency-beeps", "/api/detect-frequency-beeps"} {
		t.Run(path, func(t *testing.T) {
			var resp FindBeepsResponse
			rec := serve(t, s, uploadRequest(t, path, body, "audio/wav", nil), &resp)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if resp.Filename != "show.wav" {
				t.Errorf("filename = %q", resp.Filename)
			}
			if len(resp.DetectedBeepTimestamps) != len(beepsAt) {
				t.Fatalf("detected %v, expected beeps near %v", resp.DetectedBeepTimestamps, beepsAt)
			}
			for i, at := range beepsAt {
				if err := near(resp.DetectedBeepTimestamps[i], at, 0.3); err != nil {
					t.Errorf("detection %d: %v", i, err)
				}
			}
			if len(resp.DetectedBeepTimestampsMMSS) != len(beepsAt) || !strings.HasPrefix(resp.DetectedBeepTimestampsMMSS[0], "00:0") {
				t.Errorf("timestamps = %v", resp.DetectedBeepTimestampsMMSS)
			}
		})
	}
}

func TestDetectFrequencyBeepsOutOfBand(t *testing.T) {
	s := newTestServer(t, nil)

	var resp FindBeepsResponse
	// Over digital silence any edge leakage towers over the mean band energy
	body := encodeWAV(t, withNoise(recording(8, beepsAt...), 0.01))
	req := uploadRequest(t, "/detect-frequency-beeps", body, "audio/wav", map[string]string{
		"freq_low":  "3000",
		"freq_high": "3500",
	})
	rec := serve(t, s, req, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(resp.DetectedBeepTimestamps) != 0 {
		t.Errorf("detected %v in an empty band", resp.DetectedBeepTimestamps)
	}
}

func TestDetectTemplateMatches(t *testing.T) {
	s := newTestServer(t, nil)
	sr := float64(testRate)
	lead := float64(int(padSecs*sr)) / sr

	var resp TemplateMatchResponse
	rec := serve(t, s, uploadRequest(t, "/api/detect-template-matches", showWAV(t), "audio/wav", nil), &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Method != "ncc" || resp.Raw || resp.SR != testRate || resp.Threshold != 0.6 || resp.MinSeparationS != 0.5 {
		t.Errorf("response parameters = %+v", resp)
	}
	if resp.Template != "beep_template.wav" {
		t.Errorf("template = %q", resp.Template)
	}
	if resp.NumMatches != len(beepsAt) || len(resp.Matches) != len(beepsAt) || len(resp.Scores) != len(beepsAt) {
		t.Fatalf("matches = %v, expected %d", resp.Matches, len(beepsAt))
	}
	for i, at := range beepsAt {
		if err := near(resp.Matches[i], at-lead, 0.01); err != nil {
			t.Errorf("match %d: %v", i, err)
		}
		if resp.Scores[i] < 0.9 {
			t.Errorf("score %d = %.3f, expected a near-perfect match", i, resp.Scores[i])
		}
	}
}

func TestDetectTemplateMatchesClipped(t *testing.T) {
	s := newTestServer(t, nil)

	var resp TemplateMatchResponse
	req := uploadRequest(t, "/detect-template-matches?start_s=3", showWAV(t), "audio/wav", nil)
	rec := serve(t, s, req, &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp.NumMatches != 1 || resp.Matches[0] < 3 {
		t.Errorf("matches after 3 s = %v, expected only the second beep", resp.Matches)
	}
}

func TestDetectCrossCorrelationBeeps(t *testing.T) {
	s := newTestServer(t, nil)

	var resp TemplateMatchResponse
	rec := serve(t, s, uploadRequest(t, "/detect-cross-correlation-beeps", showWAV(t), "audio/wav", nil), &resp)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Method != "cross_correlation" || !resp.Raw || resp.Threshold != crossCorrelationThreshold {
		t.Errorf("response parameters = %+v", resp)
	}
	if resp.NumMatches != len(beepsAt) {
		t.Errorf("matches = %v, expected %d", resp.Matches, len(beepsAt))
	}
}

func TestGenerateReport(t *testing.T) {
	var reportDir string
	s := newTestServer(t, func(c *config.Settings) { reportDir = c.Server.ReportDir })

	var summary report.Summary
	req := uploadRequest(t, "/generate-report", showWAV(t), "audio/x-wav", map[string]string{
		"output_filename": "../run.txt",
	})
	rec := serve(t, s, req, &summary)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	expectedPath := filepath.Join(reportDir, "run.txt")
	if summary.OutputPath != expectedPath || summary.Count != len(beepsAt) {
		t.Errorf("summary = %+v", summary)
	}

	data, err := os.ReadFile(expectedPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "filename=show.wav\ntemplate=beep_template.wav\n") {
		t.Errorf("report header = %q", string(data))
	}
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t, nil)
	body := showWAV(t)

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		expected int
	}{
		{
			name: "no body",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/detect-frequency-beeps", nil)
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "no file part",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-template-matches", nil, "", map[string]string{"threshold": "0.5"})
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "not audio",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-frequency-beeps", body, "text/plain", nil)
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "undecodable audio",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-frequency-beeps", []byte("this is not a wav file"), "audio/wav", nil)
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "threshold not a number",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-template-matches", body, "audio/wav", map[string]string{"threshold": "high"})
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "threshold out of range",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-template-matches", body, "audio/wav", map[string]string{"threshold": "1.5"})
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "processing rate too high",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-template-matches", body, "audio/wav", map[string]string{"sr_target": "100000000"})
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "inverted band",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-frequency-beeps", body, "audio/wav", map[string]string{
					"freq_low":  "1300",
					"freq_high": "1100",
				})
			},
			expected: http.StatusBadRequest,
		},
		{
			name: "bad window",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "/detect-frequency-beeps?window_size=1000", body, "audio/wav", nil)
			},
			expected: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			rec := serve(t, s, tt.req(t), &resp)

			if rec.Code != tt.expected {
				t.Errorf("status = %d, expected %d: %s", rec.Code, tt.expected, rec.Body.String())
			}
			if resp.Detail == "" {
				t.Error("error response has no detail")
			}
		})
	}
}

func TestMissingTemplate(t *testing.T) {
	s := newTestServer(t, func(c *config.Settings) {
		c.Server.DefaultTemplatePath = filepath.Join(t.TempDir(), "missing.wav")
	})

	var resp errorResponse
	rec := serve(t, s, uploadRequest(t, "/detect-template-matches", showWAV(t), "audio/wav", nil), &resp)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", rec.Code)
	}
	if !strings.Contains(resp.Detail, "template") {
		t.Errorf("detail = %q", resp.Detail)
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Settings) { c.Server.MaxUploadBytes = 4096 })

	rec := serve(t, s, uploadRequest(t, "/detect-frequency-beeps", showWAV(t), "audio/wav", nil), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, expected 413", rec.Code)
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Match.Threshold = 2

	if _, err := New(settings, nil); !errors.Is(err, config.ErrInvalidParameter) {
		t.Errorf("New() = %v, expected ErrInvalidParameter", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "too large", err: fmt.Errorf("read: %w", &http.MaxBytesError{Limit: 10}), expected: http.StatusRequestEntityTooLarge},
		{name: "invalid parameter", err: fmt.Errorf("%w: bad", config.ErrInvalidParameter), expected: http.StatusBadRequest},
		{name: "template", err: fmt.Errorf("%w: gone", config.ErrTemplateUnavailable), expected: http.StatusBadRequest},
		{name: "empty", err: config.ErrEmptyInput, expected: http.StatusBadRequest},
		{name: "unsupported", err: transcode.ErrUnsupportedFormat, expected: http.StatusBadRequest},
		{name: "decode", err: fmt.Errorf("%w: wav", transcode.ErrDecodeFailed), expected: http.StatusBadRequest},
		{name: "processing", err: &config.ProcessingError{Stage: config.StageResample, Err: errors.New("boom")}, expected: http.StatusInternalServerError},
		{name: "unknown", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.expected {
				t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.expected)
			}
		})
	}
}

type failingWriter struct {
	header http.Header
}

func (f *failingWriter) Header() http.Header       { return f.header }
func (f *failingWriter) WriteHeader(int)           {}
func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	s := newTestServer(t, nil)

	var errOut bytes.Buffer
	s.logger = logging.NewWriterLogger(io.Discard, &errOut, false)

	s.writeJSON(&failingWriter{header: http.Header{}}, http.StatusOK, HealthResponse{Status: "healthy"})

	if !strings.Contains(errOut.String(), "Failed to write response") || !strings.Contains(errOut.String(), "connection reset") {
		t.Errorf("encode failure not logged: %q", errOut.String())
	}
}
