// Package gateway composes the registry, the storage directory and the
// notifier into the operations exposed to clients. It is transport agnostic;
// the HTTP and push handlers are thin adapters over it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"localshare/core"

	"github.com/sirupsen/logrus"
)

// DefaultMaxFiles bounds the number of files accepted in a single upload.
const DefaultMaxFiles = 100

var (
	// ErrNoFiles is returned when an upload carries no file parts.
	ErrNoFiles = &core.ValidationError{Field: "files", Reason: "no files uploaded"}

	// ErrNothingStored is returned when files were sent but none was stored.
	ErrNothingStored = errors.New("no file could be stored")
)

type (
	// Part is one file of an upload batch.
	Part struct {
		Filename string
		Body     io.Reader
	}

	// PartReader yields upload parts until io.EOF. A part's Body is only
	// valid until the next call.
	PartReader interface {
		NextPart() (*Part, error)
	}

	FileError struct {
		Index    int    `json:"index"`
		Filename string `json:"filename"`
		Message  string `json:"error"`

		err error
	}

	UploadResult struct {
		Items  []core.Item `json:"items"`
		Errors []FileError `json:"errors,omitempty"`
	}

	Gateway struct {
		store    core.ItemStore
		files    core.FileReceiver
		maxFiles int
	}
)

func (e FileError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying failure.
func (e FileError) Unwrap() error {
	return e.err
}

// AllValidation reports whether every failure in the batch was client caused.
func (r UploadResult) AllValidation() bool {
	if len(r.Errors) == 0 {
		return false
	}
	for _, fe := range r.Errors {
		if !core.IsValidation(fe.err) {
			return false
		}
	}
	return true
}

func New(store core.ItemStore, files core.FileReceiver, maxFiles int) *Gateway {
	if maxFiles < 1 {
		maxFiles = DefaultMaxFiles
	}
	return &Gateway{store: store, files: files, maxFiles: maxFiles}
}

func (g *Gateway) Items(ctx context.Context) ([]core.Item, error) {
	return g.store.List(ctx)
}

func (g *Gateway) SubmitText(ctx context.Context, text string) (core.Item, error) {
	return g.store.AddText(ctx, text)
}

// Upload stores every part independently. A failing part is reported in
// UploadResult.Errors and does not affect the others. The returned error is
// ErrNoFiles for an empty batch and ErrNothingStored when no part succeeded.
func (g *Gateway) Upload(ctx context.Context, parts PartReader) (UploadResult, error) {
	result := UploadResult{Items: make([]core.Item, 0)}
	seen := 0

	for {
		part, err := parts.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if seen == 0 {
				return result, &core.ValidationError{Field: "files", Reason: fmt.Sprintf("malformed upload: %v", err)}
			}
			logrus.WithError(err).Warn("Upload stream ended early")
			result.Errors = append(result.Errors, newFileError(seen, "", &core.ValidationError{
				Field: "files", Reason: fmt.Sprintf("malformed upload: %v", err),
			}))
			break
		}

		index := seen
		seen++

		if seen > g.maxFiles {
			result.Errors = append(result.Errors, newFileError(index, part.Filename, &core.ValidationError{
				Field: "files", Reason: fmt.Sprintf("more than %d files in one upload", g.maxFiles),
			}))
			continue
		}

		descriptor, err := g.files.Receive(ctx, part.Body, part.Filename)
		if err != nil {
			result.Errors = append(result.Errors, newFileError(index, part.Filename, err))
			continue
		}

		item, err := g.store.AddFile(ctx, descriptor)
		if err != nil {
			result.Errors = append(result.Errors, newFileError(index, part.Filename, err))
			continue
		}
		result.Items = append(result.Items, item)
	}

	log := logrus.WithFields(logrus.Fields{
		"received": seen,
		"stored":   len(result.Items),
		"failed":   len(result.Errors),
	})

	switch {
	case seen == 0:
		return result, ErrNoFiles
	case len(result.Items) == 0:
		log.Warn("Upload failed for every file")
		return result, ErrNothingStored
	case len(result.Errors) > 0:
		log.Warn("Upload partially succeeded")
	default:
		log.Info("Upload complete")
	}
	return result, nil
}

func (g *Gateway) Download(name string) (core.File, os.FileInfo, error) {
	return g.files.Open(name)
}

func newFileError(index int, filename string, err error) FileError {
	return FileError{Index: index, Filename: filename, Message: err.Error(), err: err}
}
