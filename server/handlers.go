package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/detector"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/report"
	"github.com/RyanBlaney/beep-sonar/transcode"
	"github.com/RyanBlaney/beep-sonar/waveform"
)

// crossCorrelationThreshold is the default height, as a fraction of the best
// correlation, of the cross-correlation endpoint
const crossCorrelationThreshold = 0.5

// HealthResponse is the JSON response for /health
type HealthResponse struct {
	Status            string `json:"status"`
	Service           string `json:"service"`
	Version           string `json:"version"`
	TemplateAvailable bool   `json:"template_available"`
}

// FindBeepsResponse is the JSON response of the band-energy detector
type FindBeepsResponse struct {
	Filename                   string    `json:"filename"`
	DetectedBeepTimestamps     []float64 `json:"detected_beep_timestamps"`
	DetectedBeepTimestampsMMSS []string  `json:"detected_beep_timestamps_mm_ss"`
}

// TemplateMatchResponse is the JSON response of the template matcher
type TemplateMatchResponse struct {
	Filename       string    `json:"filename"`
	Template       string    `json:"template"`
	SR             int       `json:"sr"`
	Threshold      float64   `json:"threshold"`
	MinSeparationS float64   `json:"min_separation_s"`
	Raw            bool      `json:"raw"`
	Method         string    `json:"method"`
	Matches        []float64 `json:"matches"`
	MatchesMMSS    []string  `json:"matches_mm_ss"`
	Scores         []float64 `json:"scores"`
	NumMatches     int       `json:"num_matches"`
}

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "Audio Processing API is running!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "healthy",
		Service:           ServiceName,
		Version:           Version,
		TemplateAvailable: s.templates.Available(s.settings.Server.DefaultTemplatePath),
	})
}

func (s *Server) handleFrequencyBeeps(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithContext(r.Context())

	in, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	cfg, err := spectralParams(r, s.settings.Spectral)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	det, err := detector.NewSpectralDetector(cfg, logger)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	result, err := det.Detect(in.waveform)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	s.writeJSON(w, http.StatusOK, FindBeepsResponse{
		Filename:                   in.filename,
		DetectedBeepTimestamps:     detector.Offsets(result.Detections),
		DetectedBeepTimestampsMMSS: detector.Timestamps(result.Detections),
	})
}

func (s *Server) handleTemplateMatches(w http.ResponseWriter, r *http.Request) {
	s.serveMatch(w, r, s.settings.Match)
}

// handleCrossCorrelation is the lightweight variant: raw waveforms with the
// mean removed and RMS scaled
func (s *Server) handleCrossCorrelation(w http.ResponseWriter, r *http.Request) {
	base := s.settings.Match
	base.Raw = true
	base.RawNormalization = "rms"
	base.Threshold = crossCorrelationThreshold

	s.serveMatch(w, r, base)
}

func (s *Server) serveMatch(w http.ResponseWriter, r *http.Request, base config.MatchConfig) {
	logger := s.logger.WithContext(r.Context())

	result, tmpl, in, err := s.runMatch(w, r, base)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	cfg := result.Config
	scores := make([]float64, len(result.Detections))
	for i, d := range result.Detections {
		scores[i] = d.Score
	}

	s.writeJSON(w, http.StatusOK, TemplateMatchResponse{
		Filename:       in.filename,
		Template:       tmpl.Name,
		SR:             cfg.SampleRate,
		Threshold:      cfg.Threshold,
		MinSeparationS: cfg.MinSeparationSeconds,
		Raw:            cfg.Raw,
		Method:         result.Method(),
		Matches:        detector.Offsets(result.Detections),
		MatchesMMSS:    detector.Timestamps(result.Detections),
		Scores:         scores,
		NumMatches:     len(result.Detections),
	})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithContext(r.Context())

	result, tmpl, in, err := s.runMatch(w, r, s.settings.Match)
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	rep := &report.Report{
		Filename:   in.filename,
		Template:   tmpl.Name,
		Config:     result.Config,
		Detections: result.Detections,
	}

	summary, err := rep.WriteFile(s.settings.Server.ReportDir, r.FormValue("output_filename"))
	if err != nil {
		s.writeError(w, logger, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

// runMatch reads the upload and the parameters, loads the default template
// and runs the matcher
func (s *Server) runMatch(w http.ResponseWriter, r *http.Request, base config.MatchConfig) (*detector.MatchResult, *transcode.Template, *upload, error) {
	logger := s.logger.WithContext(r.Context())

	in, err := s.readUpload(w, r)
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := matchParams(r, base)
	if err != nil {
		return nil, nil, nil, err
	}

	tmpl, err := s.templates.Load(s.settings.Server.DefaultTemplatePath)
	if err != nil {
		return nil, nil, nil, err
	}

	matcher, err := detector.NewTemplateMatcher(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	result, err := matcher.Match(in.waveform, &tmpl.Waveform)
	if err != nil {
		return nil, nil, nil, err
	}

	return result, tmpl, in, nil
}

// upload is a decoded audio file from a multipart request
type upload struct {
	filename string
	waveform waveform.Waveform
}

// readUpload parses the multipart form and decodes its "file" part
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.settings.Server.MaxUploadBytes)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: no file uploaded", config.ErrEmptyInput)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: no file uploaded", config.ErrEmptyInput)
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "audio/") {
		return nil, fmt.Errorf("%w: please upload an audio file", config.ErrInvalidParameter)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	audioData, err := s.decoder.DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	filename := header.Filename
	if filename == "" {
		filename = "unknown"
	}

	return &upload{filename: filename, waveform: audioData.Waveform()}, nil
}

// statusFor maps an error to its HTTP status: caller mistakes are 400,
// everything else is 500
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, config.ErrInvalidParameter),
		errors.Is(err, config.ErrTemplateUnavailable),
		errors.Is(err, config.ErrEmptyInput),
		errors.Is(err, transcode.ErrUnsupportedFormat),
		errors.Is(err, transcode.ErrDecodeFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, logger logging.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(err, "Request failed", logging.Fields{"status": status})
	} else {
		logger.Warn("Request rejected", logging.Fields{"status": status, "error": err.Error()})
	}

	s.writeJSON(w, status, errorResponse{Detail: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", logging.Fields{"status": status, "error": err.Error()})
	}
}
