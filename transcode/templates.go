package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RyanBlaney/beep-sonar/config"
	"github.com/RyanBlaney/beep-sonar/logging"
	"github.com/RyanBlaney/beep-sonar/waveform"
)

// Template is a decoded reference beep
type Template struct {
	Name     string            `json:"name"` // File name without directory
	Path     string            `json:"path"`
	Waveform waveform.Waveform `json:"-"` // Shared; callers must not modify the samples
	Format   Format            `json:"format"`
}

type cachedTemplate struct {
	template *Template
	modTime  time.Time
	size     int64
}

// TemplateStore loads templates through a Decoder and caches them by path.
// A cached entry is reloaded when the file's size or modification time changes.
type TemplateStore struct {
	decoder *Decoder
	logger  logging.Logger

	mu    sync.Mutex
	cache map[string]cachedTemplate
}

// NewTemplateStore creates a store. A nil decoder uses a default Decoder.
func NewTemplateStore(decoder *Decoder, logger logging.Logger) *TemplateStore {
	logger = logging.OrGlobal(logger)
	if decoder == nil {
		decoder = NewDecoder(nil, logger)
	}
	return &TemplateStore{
		decoder: decoder,
		logger:  logger,
		cache:   make(map[string]cachedTemplate),
	}
}

// Load returns the template stored at path. Every failure wraps
// config.ErrTemplateUnavailable.
func (s *TemplateStore) Load(path string) (*Template, error) {
	logger := s.logger.WithFields(logging.Fields{
		"component": "template_store",
		"function":  "Load",
		"path":      path,
	})

	if path == "" {
		return nil, fmt.Errorf("%w: no template path configured", config.ErrTemplateUnavailable)
	}

	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}

	info, err := os.Stat(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrTemplateUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", config.ErrTemplateUnavailable, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[key]; ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.template, nil
	}

	audioData, err := s.decoder.DecodeFile(key)
	if err != nil {
		logger.Error(err, "Failed to decode template")
		return nil, fmt.Errorf("%w: %v", config.ErrTemplateUnavailable, err)
	}

	tmpl := &Template{
		Name:     filepath.Base(key),
		Path:     key,
		Waveform: audioData.Waveform(),
		Format:   audioData.Format,
	}
	if tmpl.Waveform.IsSilent() {
		return nil, fmt.Errorf("%w: %s is silent", config.ErrTemplateUnavailable, tmpl.Name)
	}

	s.cache[key] = cachedTemplate{template: tmpl, modTime: info.ModTime(), size: info.Size()}

	logger.Info("Template loaded", logging.Fields{
		"name":        tmpl.Name,
		"sample_rate": tmpl.Waveform.SampleRate,
		"samples":     tmpl.Waveform.Len(),
	})

	return tmpl, nil
}

// Available reports whether path names a readable regular file
func (s *TemplateStore) Available(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Invalidate drops the cached entry for path
func (s *TemplateStore) Invalidate(path string) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}
