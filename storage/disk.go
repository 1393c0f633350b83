// Package storage abstracts the public file disk uploads are written to.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrFileNotFound is returned when a path does not exist on the disk.
	ErrFileNotFound = errors.New("storage: file not found")
	// ErrInvalidPath is returned for paths that escape the disk root.
	ErrInvalidPath = errors.New("storage: invalid path")
	// ErrTooLarge is returned by Put when the content exceeds the limit.
	ErrTooLarge = errors.New("storage: file too large")
)

// File is an opened disk file.
type File interface {
	io.ReadSeekCloser
	ModTime() time.Time
	Size() int64
}

// Disk is a flat namespace of slash separated relative paths.
type Disk interface {
	Exists(rel string) bool
	Open(rel string) (File, error)
	// Put writes r to rel, reading at most limit bytes when limit > 0.
	Put(rel string, r io.Reader, limit int64) (int64, error)
	Delete(rel string) error
	// URL returns the public URL the static handler serves rel under.
	URL(rel string) string
}

// LocalDisk stores files below Root and serves them under Prefix.
type LocalDisk struct {
	Root   string
	Prefix string
}

// NewLocalDisk returns a disk rooted at root. The directory is created lazily.
func NewLocalDisk(root, prefix string) *LocalDisk {
	if prefix == "" {
		prefix = "/storage"
	}
	return &LocalDisk{Root: root, Prefix: "/" + strings.Trim(prefix, "/")}
}

// Clean normalises rel to a slash path inside the disk. It returns "" when
// rel is empty or escapes the root.
func Clean(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return ""
	}
	cleaned := path.Clean("/" + rel)
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return ""
		}
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return ""
	}
	return cleaned
}

func (d *LocalDisk) abs(rel string) (string, error) {
	c := Clean(rel)
	if c == "" {
		return "", ErrInvalidPath
	}
	return filepath.Join(d.Root, filepath.FromSlash(c)), nil
}

// Exists reports whether rel is a regular file.
func (d *LocalDisk) Exists(rel string) bool {
	p, err := d.abs(rel)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

type localFile struct {
	*os.File
	info os.FileInfo
}

func (f localFile) ModTime() time.Time { return f.info.ModTime() }
func (f localFile) Size() int64        { return f.info.Size() }

// Open opens rel for reading.
func (d *LocalDisk) Open(rel string) (File, error) {
	p, err := d.abs(rel)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = fh.Close()
		return nil, ErrFileNotFound
	}
	return localFile{File: fh, info: info}, nil
}

// Put writes r to rel. A partially written file is removed on failure.
func (d *LocalDisk) Put(rel string, r io.Reader, limit int64) (int64, error) {
	p, err := d.abs(rel)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, fmt.Errorf("storage: create directory: %w", err)
	}
	out, err := os.Create(p)
	if err != nil {
		return 0, fmt.Errorf("storage: create file: %w", err)
	}
	src := r
	if limit > 0 {
		src = &io.LimitedReader{R: r, N: limit + 1}
	}
	written, err := io.Copy(out, src)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(p)
		return 0, fmt.Errorf("storage: write file: %w", err)
	}
	if limit > 0 && written > limit {
		_ = os.Remove(p)
		return 0, ErrTooLarge
	}
	return written, nil
}

// Delete removes rel. Missing files are not an error.
func (d *LocalDisk) Delete(rel string) error {
	p, err := d.abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// URL implements Disk.
func (d *LocalDisk) URL(rel string) string {
	return d.Prefix + "/" + Clean(rel)
}

// UploadPath builds the dated location of a new upload, e.g.
// uploads/2024/05/01/<unique>_report.pdf.
func UploadPath(now time.Time, unique, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	return path.Join("uploads", now.Format("2006"), now.Format("01"), now.Format("02"), unique+"_"+name)
}
