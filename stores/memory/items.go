package memory

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"localshare/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Storage is the directory holding file bytes.
type Storage interface {
	Clear(ctx context.Context) error
	Exists(storagePath string) bool
}

// ItemStore is the in-memory registry of shared items.
type ItemStore struct {
	mu       sync.RWMutex
	items    []core.Item
	notifier core.Notifier
	storage  Storage

	// clearMu is held for writing across a whole Clear, storage wipe
	// included. AddFile holds it for reading, so a file is either registered
	// before the clear starts or checked against storage after the wipe.
	clearMu sync.RWMutex

	now     func() time.Time
	entropy io.Reader
	lastMS  uint64
}

// NewItemStore creates an empty registry. notifier receives every change
// while the registry lock is held, so events are emitted in mutation order.
// storage may be nil when there are no files to clean up.
func NewItemStore(notifier core.Notifier, storage Storage) *ItemStore {
	return &ItemStore{
		items:    make([]core.Item, 0),
		notifier: notifier,
		storage:  storage,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// nextID must be called with s.mu held.
func (s *ItemStore) nextID(kind core.ItemKind, at time.Time) (string, error) {
	ms := ulid.Timestamp(at)
	if ms < s.lastMS {
		ms = s.lastMS
	}
	id, err := ulid.New(ms, s.entropy)
	if err != nil {
		return "", err
	}
	s.lastMS = ms
	return id.String() + "-" + string(kind), nil
}

func (s *ItemStore) append(item core.Item) (core.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	id, err := s.nextID(item.Kind, at)
	if err != nil {
		return core.Item{}, err
	}
	item.ID = id
	item.CreatedAt = at.UnixMilli()

	s.items = append(s.items, item)
	if s.notifier != nil {
		s.notifier.BroadcastAdded(item)
	}
	return item, nil
}

// AddFile registers a file already written to storage. It fails when a clear
// wiped the bytes after they were received.
func (s *ItemStore) AddFile(ctx context.Context, descriptor core.FileDescriptor) (core.Item, error) {
	s.clearMu.RLock()
	defer s.clearMu.RUnlock()

	if s.storage != nil && !s.storage.Exists(descriptor.StoragePath) {
		return core.Item{}, &core.StorageError{Op: "register", Name: descriptor.Filename, Err: os.ErrNotExist}
	}
	item, err := s.append(core.Item{
		Kind:        core.KindFile,
		Filename:    descriptor.Filename,
		Size:        descriptor.Size,
		StoragePath: descriptor.StoragePath,
	})
	if err != nil {
		return core.Item{}, err
	}

	logrus.WithFields(logrus.Fields{
		"item_id":  item.ID,
		"filename": item.Filename,
	}).Info("File added to registry")
	return item, nil
}

func (s *ItemStore) AddText(ctx context.Context, content string) (core.Item, error) {
	if strings.TrimSpace(content) == "" {
		return core.Item{}, &core.ValidationError{Field: "text", Reason: "must not be empty"}
	}

	item, err := s.append(core.Item{Kind: core.KindText, Content: content})
	if err != nil {
		return core.Item{}, err
	}

	logrus.WithFields(logrus.Fields{
		"item_id":     item.ID,
		"text_length": len(content),
	}).Info("Text added to registry")
	return item, nil
}

// List returns a copy of the registry in insertion order.
func (s *ItemStore) List(ctx context.Context) ([]core.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]core.Item, len(s.items))
	copy(items, s.items)
	return items, nil
}

func (s *ItemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear empties the registry and always emits one cleared event, even when
// nothing was shared, so late clients drop whatever they still show. Storage
// cleanup runs afterwards and is best effort: its errors are returned for
// logging but the registry is empty regardless. List is never blocked by the
// wipe; AddFile is.
func (s *ItemStore) Clear(ctx context.Context) error {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()

	s.mu.Lock()
	removed := len(s.items)
	s.items = make([]core.Item, 0)
	if s.notifier != nil {
		s.notifier.BroadcastCleared()
	}
	s.mu.Unlock()

	log := logrus.WithField("removed", removed)
	log.Info("Registry cleared")

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Clear(ctx); err != nil {
		log.WithError(err).Warn("Storage cleanup finished with errors")
		return err
	}
	return nil
}
