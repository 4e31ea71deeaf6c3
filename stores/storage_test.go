package stores

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"localshare/broadcast"
	"localshare/config"
)

func TestGetStoreFilesystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	cfg := &config.Config{StorageType: "filesystem", StoragePath: dir, MaxUploadFiles: 1}

	store, err := GetStore(cfg, broadcast.NewHub())
	if err != nil {
		t.Fatalf("GetStore failed: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("Storage directory was not created: %v", err)
	}

	ctx := context.Background()
	desc, err := store.Files.Receive(ctx, strings.NewReader("data"), "a.txt")
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if _, err := store.Items.AddFile(ctx, desc); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Errorf("File not on disk: %v", err)
	}

	if err := store.Items.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if store.Items.Len() != 0 {
		t.Errorf("Registry not empty after clear")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Errorf("File should be deleted by clear, stat err = %v", err)
	}
}

func TestGetStoreMemory(t *testing.T) {
	cfg := &config.Config{StorageType: "memory", StoragePath: "/uploads", MaxUploadFiles: 1}

	store, err := GetStore(cfg, broadcast.NewHub())
	if err != nil {
		t.Fatalf("GetStore failed: %v", err)
	}
	if store.Files.BasePath() != "/uploads" {
		t.Errorf("BasePath mismatch: %s", store.Files.BasePath())
	}
}

func TestGetStoreSizeLimit(t *testing.T) {
	cfg := &config.Config{StorageType: "memory", StoragePath: "/uploads", MaxFileSize: "4B", MaxUploadFiles: 1}

	store, err := GetStore(cfg, broadcast.NewHub())
	if err != nil {
		t.Fatalf("GetStore failed: %v", err)
	}
	if _, err := store.Files.Receive(context.Background(), strings.NewReader("12345"), "big.bin"); err == nil {
		t.Error("Expected size limit to apply")
	}
}

func TestGetStoreBadSize(t *testing.T) {
	cfg := &config.Config{StorageType: "memory", StoragePath: "/uploads", MaxFileSize: "lots"}
	if _, err := GetStore(cfg, broadcast.NewHub()); err == nil {
		t.Error("Expected error for unparsable size")
	}
}
