package templates

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// UsageRecord tracks how often and how recently a template was used
type UsageRecord struct {
	LastUsed time.Time `json:"last_used"`
	UseCount int       `json:"use_count"`
}

// Usage is the usage file keyed by absolute template path
type Usage struct {
	path    string
	mu      sync.Mutex
	records map[string]UsageRecord
}

// LoadUsage reads the usage file. A missing or unreadable file starts empty.
func LoadUsage(path string) *Usage {
	u := &Usage{path: path, records: make(map[string]UsageRecord)}
	data, err := os.ReadFile(path)
	if err != nil {
		return u
	}
	if err := json.Unmarshal(data, &u.records); err != nil || u.records == nil {
		u.records = make(map[string]UsageRecord)
	}
	return u
}

func usageKey(templatePath string) string {
	if abs, err := filepath.Abs(templatePath); err == nil {
		return abs
	}
	return templatePath
}

// Get returns the record for templatePath
func (u *Usage) Get(templatePath string) UsageRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.records[usageKey(templatePath)]
}

// Touch records one use of templatePath at now and saves the file
func (u *Usage) Touch(templatePath string, now time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := usageKey(templatePath)
	rec := u.records[key]
	rec.LastUsed = now.UTC()
	rec.UseCount++
	u.records[key] = rec

	return u.save()
}

func (u *Usage) save() error {
	if dir := filepath.Dir(u.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create usage directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(u.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}
	if err := atomic.WriteFile(u.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	return nil
}
