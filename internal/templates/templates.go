// Package templates loads and saves query definition documents.
package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/ghtracker/internal/conditions"
	"github.com/ghtracker/pkg/models"
)

// Format is the encoding of a query definition document
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

var (
	// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON
	ErrUnsupportedFormat = errors.New("unsupported template format")
	// ErrNotFound is returned when no template matches a name
	ErrNotFound = errors.New("template not found")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report document keys rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DetectFormat picks the format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads, defaults and validates the query definition at path
func Load(path string) (*models.QueryDefinition, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	q, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return q, nil
}

// Parse decodes a document, applies defaults and validates it
func Parse(data []byte, format Format) (*models.QueryDefinition, error) {
	var q models.QueryDefinition
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &q); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case FormatJSON:
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONC: %w", err)
		}
		if err := json.Unmarshal(standardized, &q); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	q.ApplyDefaults()
	if err := Validate(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Validate checks the structure of q and its condition set
func Validate(q *models.QueryDefinition) error {
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "QueryDefinition."), fe.Tag()))
			}
			return fmt.Errorf("invalid template: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid template: %w", err)
	}
	return conditions.Validate(q.Conditions, q.ConditionLogic)
}

// Save writes q back to path in the format implied by its extension. Comments in
// JSONC documents are not preserved.
func Save(path string, q *models.QueryDefinition) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(q); err != nil {
			return fmt.Errorf("failed to encode template: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode template: %w", err)
		}
		data = buf.Bytes()
	case FormatJSON:
		data, err = json.MarshalIndent(q, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode template: %w", err)
		}
		data = append(data, '\n')
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save template %s: %w", path, err)
	}
	return nil
}

// Entry is a template found in a directory
type Entry struct {
	Path         string
	Name         string
	Description  string
	Repositories []string
	Usage        UsageRecord
	Err          error // set when the document could not be loaded
}

// List returns the templates in dir, most recently used first, then by name
func List(dir string, usage *Usage) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, f.Name())
		if _, err := DetectFormat(path); err != nil {
			continue
		}

		entry := Entry{Path: path, Name: baseName(path)}
		if usage != nil {
			entry.Usage = usage.Get(path)
		}
		q, err := Load(path)
		if err != nil {
			entry.Err = err
		} else {
			entry.Name = q.Name
			entry.Description = q.Description
			entry.Repositories = q.RepositoryNames()
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Usage.LastUsed, entries[j].Usage.LastUsed
		if !a.Equal(b) {
			return a.After(b)
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Resolve finds a template by path, file name without extension, or document name
func Resolve(dir, ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		return ref, nil
	}

	entries, err := List(dir, nil)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if baseName(e.Path) == ref {
			return e.Path, nil
		}
	}
	for _, e := range entries {
		if e.Err == nil && strings.EqualFold(e.Name, ref) {
			return e.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %q in %s", ErrNotFound, ref, dir)
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
