package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"localshare/core"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

type Option func(*Receiver)

// WithMaxFileSize caps the number of bytes accepted per file. Zero means unlimited.
func WithMaxFileSize(n int64) Option {
	return func(r *Receiver) {
		r.maxFileSize = n
	}
}

// Receiver stores uploaded files as flat entries of one directory.
type Receiver struct {
	fs          afero.Fs
	basePath    string
	maxFileSize int64
}

// NewReceiver creates a receiver that stores files under basePath on fs.
// The directory is created lazily before the first write.
func NewReceiver(fs afero.Fs, basePath string, opts ...Option) *Receiver {
	r := &Receiver{fs: fs, basePath: basePath}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) BasePath() string {
	return r.basePath
}

// EnsureDir creates the storage directory if it is missing.
func (r *Receiver) EnsureDir() error {
	if err := r.fs.MkdirAll(r.basePath, 0755); err != nil {
		return &core.StorageError{Op: "mkdir", Name: r.basePath, Err: err}
	}
	return nil
}

// ValidateName accepts only a bare file name, never a path.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return &core.ValidationError{Field: "filename", Reason: "must not be empty or a dot directory"}
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0), filepath.Base(name) != name:
		return &core.ValidationError{Field: "filename", Reason: "must not be a path"}
	}
	return nil
}

func (r *Receiver) Receive(ctx context.Context, src io.Reader, filename string) (core.FileDescriptor, error) {
	if err := ValidateName(filename); err != nil {
		return core.FileDescriptor{}, err
	}
	if err := r.EnsureDir(); err != nil {
		return core.FileDescriptor{}, err
	}

	filePath := filepath.Join(r.basePath, filename)
	log := logrus.WithFields(logrus.Fields{
		"filename":  filename,
		"file_path": filePath,
	})

	f, err := r.fs.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		log.WithError(err).Error("Failed to create file")
		return core.FileDescriptor{}, &core.StorageError{Op: "create", Name: filename, Err: err}
	}

	reader := src
	if r.maxFileSize > 0 {
		reader = io.LimitReader(src, r.maxFileSize+1)
	}
	written, err := io.Copy(f, reader)
	tooLarge := err == nil && r.maxFileSize > 0 && written > r.maxFileSize
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil || tooLarge {
		if rmErr := r.fs.Remove(filePath); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithError(rmErr).Warn("Failed to remove partial file")
		}
	}
	switch {
	case tooLarge:
		limit := humanize.Bytes(uint64(r.maxFileSize))
		log.WithField("limit", limit).Warn("Rejected oversized file")
		return core.FileDescriptor{}, fmt.Errorf("%w: %w",
			&core.ValidationError{Field: "files", Reason: "larger than " + limit}, ErrTooLarge)
	case err != nil:
		log.WithError(err).Error("Failed to write file")
		return core.FileDescriptor{}, &core.StorageError{Op: "write", Name: filename, Err: err}
	}

	log.WithField("size", humanize.Bytes(uint64(written))).Info("File stored")
	return core.FileDescriptor{
		Filename:    filename,
		StoragePath: filePath,
		Size:        written,
	}, nil
}

// Exists reports whether storagePath, as returned by Receive, is still a
// regular file.
func (r *Receiver) Exists(storagePath string) bool {
	info, err := r.fs.Stat(storagePath)
	return err == nil && !info.IsDir()
}

func (r *Receiver) Open(filename string) (core.File, os.FileInfo, error) {
	if err := ValidateName(filename); err != nil {
		return nil, nil, err
	}
	filePath := filepath.Join(r.basePath, filename)

	info, err := r.fs.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &core.NotFoundError{Name: filename}
		}
		return nil, nil, &core.StorageError{Op: "stat", Name: filename, Err: err}
	}
	if info.IsDir() {
		return nil, nil, &core.NotFoundError{Name: filename}
	}

	f, err := r.fs.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &core.NotFoundError{Name: filename}
		}
		return nil, nil, &core.StorageError{Op: "open", Name: filename, Err: err}
	}
	return f, info, nil
}

// Clear deletes every entry in the storage directory. A missing directory is
// already clean. Each removal is attempted independently and all failures are
// returned together.
func (r *Receiver) Clear(ctx context.Context) error {
	log := logrus.WithField("path", r.basePath)

	entries, err := afero.ReadDir(r.fs, r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("Storage directory not found, nothing to delete")
			return nil
		}
		log.WithError(err).Error("Failed to read storage directory")
		return &core.StorageError{Op: "readdir", Name: r.basePath, Err: err}
	}
	if len(entries) == 0 {
		log.Info("Storage directory is already empty")
		return nil
	}

	var errs []error
	deleted := 0
	for _, entry := range entries {
		entryPath := filepath.Join(r.basePath, entry.Name())
		if err := r.fs.RemoveAll(entryPath); err != nil {
			log.WithError(err).WithField("file", entry.Name()).Error("Failed to delete file")
			errs = append(errs, &core.StorageError{Op: "remove", Name: entry.Name(), Err: err})
			continue
		}
		deleted++
	}

	log.WithFields(logrus.Fields{
		"deleted": deleted,
		"failed":  len(errs),
	}).Info("Storage directory cleared")
	return errors.Join(errs...)
}
