package core

import (
	"context"
	"io"
	"os"
)

type ItemKind string

const (
	KindFile ItemKind = "file"
	KindText ItemKind = "text"
)

type (
	// Item is a shared file or text snippet. Kind selects which of the
	// variant fields are meaningful.
	Item struct {
		ID        string   `json:"id"`
		Kind      ItemKind `json:"type"`
		Filename  string   `json:"filename,omitempty"`
		Size      int64    `json:"size,omitempty"`
		Content   string   `json:"content,omitempty"`
		CreatedAt int64    `json:"createdAt"`

		// StoragePath is the host path of the file bytes. It never leaves the host.
		StoragePath string `json:"-"`
	}

	// FileDescriptor is what a FileReceiver hands over once the bytes are on disk.
	FileDescriptor struct {
		Filename    string
		StoragePath string
		Size        int64
	}

	// ItemStore owns the registry of shared items.
	ItemStore interface {
		AddFile(ctx context.Context, descriptor FileDescriptor) (Item, error)
		AddText(ctx context.Context, content string) (Item, error)
		List(ctx context.Context) ([]Item, error)
		Clear(ctx context.Context) error
	}

	// FileReceiver persists uploaded bytes into the storage directory.
	FileReceiver interface {
		Receive(ctx context.Context, r io.Reader, filename string) (FileDescriptor, error)
		Open(filename string) (File, os.FileInfo, error)
		Clear(ctx context.Context) error
	}

	// File is an open stored file.
	File interface {
		io.ReadSeekCloser
	}

	// Notifier fans registry changes out to connected clients.
	Notifier interface {
		BroadcastAdded(item Item)
		BroadcastCleared()
	}
)
