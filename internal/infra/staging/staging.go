// Package staging writes engine responses to short-lived files and makes
// sure they are removed once served.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/xid"
)

// Stager owns the staging directory.
type Stager struct {
	dir string
}

// New creates the staging directory if needed.
func New(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stager{dir: dir}, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string { return s.dir }

// File is one staged document.
type File struct {
	Path string
	Size int64

	once sync.Once
}

// Stage copies r into {prefix}_{xid}.pdf. A failed copy leaves nothing behind.
func (s *Stager) Stage(prefix string, r io.Reader) (*File, error) {
	name := fmt.Sprintf("%s_%s.pdf", sanitizePrefix(prefix), xid.New().String())
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return nil, fmt.Errorf("write staged file: %w", copyErr)
		}
		return nil, fmt.Errorf("close staged file: %w", closeErr)
	}
	return &File{Path: path, Size: n}, nil
}

// Remove deletes the staged file; repeated calls are no-ops.
func (f *File) Remove() error {
	var err error
	f.once.Do(func() {
		if rmErr := os.Remove(f.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
	})
	return err
}

// ReadAll returns the staged bytes.
func (f *File) ReadAll() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Open returns a reader whose Close also removes the staged file.
func (f *File) Open() (io.ReadCloser, error) {
	h, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	return &removingReader{File: h, staged: f}, nil
}

type removingReader struct {
	*os.File
	staged *File
}

func (r *removingReader) Close() error {
	closeErr := r.File.Close()
	if err := r.staged.Remove(); err != nil {
		return err
	}
	return closeErr
}

func sanitizePrefix(prefix string) string {
	prefix = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, prefix)
	if prefix == "" {
		return "document"
	}
	return prefix
}
