package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
)

const (
	testRate  = 11025
	beepFreq  = 1200.0
	beepSecs  = 0.05
	padSecs   = 0.05
	beepLevel = 0.5
)

// recording returns silence of the given length with a beep starting at each
// of beepsAt
func recording(seconds float64, beepsAt ...float64) []float64 {
	sr := float64(testRate)
	out := make([]float64, int(seconds*sr))
	n := int(beepSecs * sr)
	for _, at := range beepsAt {
		start := int(at * sr)
		for i := range n {
			if start+i < len(out) {
				out[start+i] = beepLevel * math.Sin(2*math.Pi*beepFreq*float64(i)/sr)
			}
		}
	}
	return out
}

// withNoise adds a seeded uniform noise floor of the given level
func withNoise(samples []float64, level float64) []float64 {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := range samples {
		samples[i] += level * (2*rng.Float64() - 1)
	}
	return samples
}

// templateSamples is a beep with silence on both sides
func templateSamples() []float64 {
	return recording(padSecs+beepSecs+padSecs, padSecs)
}

// encodeWAV renders samples as a 16-bit mono WAV file
func encodeWAV(t *testing.T, samples []float64) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(math.Round(v * 32767))
	}

	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

// newTestServer returns a server whose default template is a generated beep
// and whose reports go to a temporary directory
func newTestServer(t *testing.T, mutate func(*config.Settings)) *Server {
	t.Helper()

	dir := t.TempDir()
	templatePath := filepath.Join(dir, "beep_template.wav")
	if err := os.WriteFile(templatePath, encodeWAV(t, templateSamples()), 0644); err != nil {
		t.Fatal(err)
	}

	settings := config.DefaultSettings()
	settings.Server.DefaultTemplatePath = templatePath
	settings.Server.ReportDir = filepath.Join(dir, "reports")
	if mutate != nil {
		mutate(settings)
	}

	s, err := New(settings, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

// uploadRequest builds a multipart POST. A nil body leaves out the file part.
func uploadRequest(t *testing.T, path string, body []byte, contentType string, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}

	if body != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="show.wav"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(body)
	}

	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// serve runs req through the full handler chain and decodes the JSON body
// into v when v is not nil
func serve(t *testing.T, s *Server, req *http.Request, v any) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if v != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
			t.Fatalf("decode %s response %q: %v", req.URL.Path, rec.Body.String(), err)
		}
	}
	return rec
}

func near(got, expected, tol float64) error {
	if math.Abs(got-expected) > tol {
		return fmt.Errorf("got %.4f, expected %.4f ± %g", got, expected, tol)
	}
	return nil
}
