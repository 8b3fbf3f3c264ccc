// Package storage writes composed messages into a pickup directory.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Spool lays files out as <dir>/<YYYY-MM-DD>/<id>_<recipient-hash>.eml.
// Files are written under a temporary name and renamed, so a pickup agent
// never sees a partial message.
type Spool struct {
	dir string
	now func() time.Time
}

func NewSpool(dir string) (*Spool, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: spool directory is required")
	}
	return &Spool{dir: dir, now: time.Now}, nil
}

func (s *Spool) Dir() string { return s.dir }

// Write stores data and returns the final path.
func (s *Spool) Write(id, to string, data []byte) (string, error) {
	safeID, err := sanitizeComponent(id)
	if err != nil {
		return "", err
	}

	day := filepath.Join(s.dir, s.now().UTC().Format("2006-01-02"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("storage: create %s: %w", day, err)
	}

	name := filepath.Join(day, fmt.Sprintf("%s_%s.eml", safeID, hashRecipient(to)))
	tmp, err := os.CreateTemp(day, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	return name, nil
}

func sanitizeComponent(v string) (string, error) {
	if strings.ContainsAny(v, "/\\") || strings.Contains(v, "..") {
		return "", errors.New("invalid identifier")
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("empty identifier")
	}
	return v, nil
}

// hashRecipient keeps addresses out of file names.
func hashRecipient(addr string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(addr))))
	return hex.EncodeToString(sum[:8])
}
