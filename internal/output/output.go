// Package output writes the merged geometry dataset and the HTML map page.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// IndexFile is the page written into the output directory.
const IndexFile = "index.html"

// ErrPlaceholderMissing is returned when the template does not contain the placeholder.
var ErrPlaceholderMissing = errors.New("placeholder not found in template")

// Config selects where the artifacts of a run go.
type Config struct {
	// JSONPath receives the geometry array.
	JSONPath string
	// TemplatePath is the HTML template; empty skips the page.
	TemplatePath string
	// Dir is removed and recreated on every run.
	Dir string
	// Placeholder is replaced verbatim by the geometry JSON.
	Placeholder string
}

// Result lists the files written.
type Result struct {
	JSONPath  string
	IndexPath string
	Features  int
}

// Writer writes run artifacts.
type Writer struct {
	config Config
	logger zerolog.Logger
}

// NewWriter creates a writer.
func NewWriter(cfg Config, logger zerolog.Logger) *Writer {
	return &Writer{
		config: cfg,
		logger: logger.With().Str("component", "output").Logger(),
	}
}

// Write stores geometry as a JSON array and renders the page from it.
func (w *Writer) Write(geometry []json.RawMessage) (Result, error) {
	if geometry == nil {
		geometry = []json.RawMessage{}
	}

	data, err := Encode(geometry)
	if err != nil {
		return Result{}, err
	}

	if err := writeFile(w.config.JSONPath, data); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", w.config.JSONPath, err)
	}
	w.logger.Info().
		Str("path", w.config.JSONPath).
		Int("entries", len(geometry)).
		Msgf("Wrote %s", filepath.Base(w.config.JSONPath))

	result := Result{JSONPath: w.config.JSONPath, Features: len(geometry)}

	if err := ResetDir(w.config.Dir); err != nil {
		return Result{}, err
	}

	if w.config.TemplatePath == "" {
		return result, nil
	}

	tmpl, err := os.ReadFile(w.config.TemplatePath)
	if err != nil {
		return Result{}, fmt.Errorf("read template: %w", err)
	}

	page, err := Render(string(tmpl), w.config.Placeholder, string(data))
	if err != nil {
		return Result{}, fmt.Errorf("render %s: %w", w.config.TemplatePath, err)
	}

	result.IndexPath = filepath.Join(w.config.Dir, IndexFile)
	if err := os.WriteFile(result.IndexPath, []byte(page), 0o644); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", result.IndexPath, err)
	}
	w.logger.Info().Str("path", result.IndexPath).Msg("Wrote map page")

	return result, nil
}

// Encode renders geometry as a compact JSON array, entries kept as received.
func Encode(geometry []json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(geometry)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	return data, nil
}

// Render replaces every occurrence of placeholder in tmpl with value.
func Render(tmpl, placeholder, value string) (string, error) {
	if placeholder == "" || !strings.Contains(tmpl, placeholder) {
		return "", fmt.Errorf("%w: %q", ErrPlaceholderMissing, placeholder)
	}
	return strings.ReplaceAll(tmpl, placeholder, value), nil
}

// ResetDir removes dir with its contents and creates it empty.
func ResetDir(dir string) error {
	if dir == "" || filepath.Clean(dir) == "." || filepath.Clean(dir) == string(filepath.Separator) {
		return fmt.Errorf("refusing to reset output directory %q", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
