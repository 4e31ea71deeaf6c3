package stores

import (
	"localshare/config"
	"localshare/core"
	"localshare/stores/filesystem"
	"localshare/stores/memory"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type (
	// Registry is the in-memory item registry.
	Registry interface {
		core.ItemStore
		Len() int
	}

	// Receiver is the storage directory.
	Receiver interface {
		core.FileReceiver
		Exists(storagePath string) bool
		EnsureDir() error
		BasePath() string
	}

	Store struct {
		Items Registry
		Files Receiver
	}
)

// GetStore wires the registry to the storage backend named by cfg.StorageType.
func GetStore(cfg *config.Config, notifier core.Notifier) (*Store, error) {
	var fs afero.Fs

	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
		"basePath":    cfg.StoragePath,
	}

	switch cfg.StorageType {
	case "memory":
		fs = afero.NewMemMapFs()
	default:
		fs = afero.NewOsFs()
		storageField["storageType"] = "filesystem"
	}

	maxSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}
	if maxSize > 0 {
		storageField["maxFileSize"] = cfg.MaxFileSize
	}

	files := filesystem.NewReceiver(fs, cfg.StoragePath, filesystem.WithMaxFileSize(maxSize))
	if err := files.EnsureDir(); err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return &Store{
		Items: memory.NewItemStore(notifier, files),
		Files: files,
	}, nil
}
