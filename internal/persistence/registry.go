// Package persistence keeps the local record of custom fields created in
// Pardot. The registry is a headerless CSV of "apiName,id" rows; it always
// lists exactly the fields that exist remotely, even after a partial run.
package persistence

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pardreamin/prospectsync/internal/logger"
	"github.com/pardreamin/prospectsync/internal/pathutil"
)

// ErrRegistryExists is returned when fields would be created while a
// registry from an earlier run is still present.
var ErrRegistryExists = errors.New("field registry already exists; delete the existing fields first")

// ErrNoRegistry is returned when the registry file does not exist.
var ErrNoRegistry = errors.New("field registry not found")

// FieldEntry is one created custom field.
type FieldEntry struct {
	APIName string
	ID      string
}

// FieldRegistry stores FieldEntries in a CSV file.
type FieldRegistry struct {
	path string
	mu   sync.Mutex
}

// NewFieldRegistry creates a registry backed by path.
func NewFieldRegistry(path string) (*FieldRegistry, error) {
	if err := pathutil.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("field registry: %w", err)
	}
	return &FieldRegistry{path: path}, nil
}

// Path returns the registry file path.
func (r *FieldRegistry) Path() string {
	return r.path
}

// Exists reports whether the registry file is present.
func (r *FieldRegistry) Exists() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := os.Stat(r.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking field registry: %w", err)
}

// Append records one created field. The row is flushed and synced before
// returning so a crash right after a remote create still leaves a record.
func (r *FieldRegistry) Append(entry FieldEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return fmt.Errorf("creating field registry directory: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening field registry: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{entry.APIName, entry.ID}); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing field registry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing field registry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing field registry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing field registry: %w", err)
	}

	logger.Debug("field recorded", "api_name", entry.APIName, "field_id", entry.ID, "path", r.path)
	return nil
}

// Read returns the recorded fields in creation order.
func (r *FieldRegistry) Read() ([]FieldEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRegistry
		}
		return nil, fmt.Errorf("opening field registry: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var entries []FieldEntry
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading field registry: %w", err)
		}
		if len(rec) != 2 || strings.TrimSpace(rec[0]) == "" || strings.TrimSpace(rec[1]) == "" {
			return nil, fmt.Errorf("field registry %s line %d: want \"apiName,id\", got %q", r.path, line, strings.Join(rec, ","))
		}
		entries = append(entries, FieldEntry{APIName: strings.TrimSpace(rec[0]), ID: strings.TrimSpace(rec[1])})
	}
	return entries, nil
}

// Replace rewrites the registry with entries using an atomic write (temp file
// plus rename). Used while deleting so the file tracks the fields still left.
func (r *FieldRegistry) Replace(entries []FieldEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, e := range entries {
		if err := w.Write([]string{e.APIName, e.ID}); err != nil {
			return fmt.Errorf("encoding field registry: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding field registry: %w", err)
	}

	tempPath := r.path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing temp field registry: %w", err)
	}
	if err := os.Rename(tempPath, r.path); err != nil {
		_ = os.Remove(tempPath)
		logger.Warn("failed to rename field registry",
			"temp_path", tempPath,
			"final_path", r.path,
			"error", err.Error(),
		)
		return fmt.Errorf("renaming field registry: %w", err)
	}
	return nil
}

// Remove deletes the registry file. A missing file is not an error.
func (r *FieldRegistry) Remove() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing field registry: %w", err)
	}
	logger.Debug("field registry removed", "path", r.path)
	return nil
}
