// Package scratch manages the flat directory that holds generated artifacts. Every file gets a
// fresh random name; concurrent writers rely on that alone, there is no locking.
package scratch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jitender-insights/AI-FlowChart-Generator/apperr"
)

// DefaultRetention is how long artifacts survive when Options.Retention is zero.
const DefaultRetention = time.Hour

// Options configures a Store.
type Options struct {
	Dir       string
	Retention time.Duration
}

// Artifact is one file written by the Store.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"-"`
	Size int64  `json:"size"`
}

// Ext returns the artifact's extension without the dot.
func (a Artifact) Ext() string {
	return strings.TrimPrefix(filepath.Ext(a.Name), ".")
}

var nameRe = regexp.MustCompile(`^[0-9a-f]{32}(\.[a-z]{2,4})?$`)

// Store writes and reaps artifacts under one directory.
type Store struct {
	dir       string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// Open creates the directory if needed.
func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, apperr.New(apperr.KindIO, "scratch", "output directory is not configured; set OUTPUT_DIR")
	}
	dir, err := filepath.Abs(filepath.Clean(opts.Dir))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "scratch", err, "resolve output directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "scratch", err, "create output directory "+dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "scratch", err, "stat output directory "+dir)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.KindIO, "scratch", "output path is not a directory: "+dir)
	}

	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, retention: retention, logger: logger, now: time.Now}, nil
}

func (s *Store) Dir() string              { return s.dir }
func (s *Store) Retention() time.Duration { return s.retention }

// NewName returns a fresh file name: 32 hex characters plus ext (".png", or "" for none).
func NewName(ext string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ext
}

// Write stores data under a new name. The file is created exclusively so an existing artifact is
// never overwritten.
func (s *Store) Write(ext string, data []byte) (Artifact, error) {
	name := NewName(ext)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Artifact{}, apperr.Wrap(apperr.KindIO, "write artifact", err, name)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return Artifact{}, apperr.Wrap(apperr.KindIO, "write artifact", err, name)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Artifact{}, apperr.Wrap(apperr.KindIO, "write artifact", err, name)
	}
	return Artifact{Name: name, Path: path, Size: int64(len(data))}, nil
}

// WriteSource saves a graph description as a .dot file.
func (s *Store) WriteSource(source string) (Artifact, error) {
	return s.Write(".dot", []byte(source))
}

// Path resolves a name previously returned by Write. Anything that is not a bare generated
// name is rejected, which keeps lookups inside the directory.
func (s *Store) Path(name string) (string, error) {
	if !nameRe.MatchString(name) {
		return "", apperr.New(apperr.KindValidation, "artifact", fmt.Sprintf("invalid artifact name %q", name))
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("artifact %s: %w", name, fs.ErrNotExist)
		}
		return "", apperr.Wrap(apperr.KindIO, "artifact", err, name)
	}
	return path, nil
}

// Read returns the content of a stored artifact.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "read artifact", err, name)
	}
	return data, nil
}
