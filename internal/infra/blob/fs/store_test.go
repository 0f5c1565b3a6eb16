package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"capturecore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStorePutGetHead(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "chunk-1.wav", bytes.NewReader([]byte("RIFF")), core.PutOptions{ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "chunk-1.wav" || info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	head, err := store.Head(ctx, "chunk-1.wav")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	got, rc, err := store.Get(ctx, "chunk-1.wav")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(data) != "RIFF" || got.ETag != head.ETag || got.ContentType != "audio/wav" {
		t.Fatalf("unexpected get artifacts %q %+v", data, got)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "chunk-1.wav")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
}

func TestStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "c.wav", bytes.NewReader([]byte("first")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Put(ctx, "c.wav", bytes.NewReader([]byte("second!")), core.PutOptions{})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if info.Size != 7 {
		t.Fatalf("expected size 7, got %d", info.Size)
	}
	_, rc, err := store.Get(ctx, "c.wav")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "second!" {
		t.Fatalf("expected overwritten payload, got %q", data)
	}
	entries, _ := os.ReadDir(store.Root())
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".wav" && filepath.Ext(e.Name()) != ".meta" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestStoreMissingAndInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, _, err := store.Get(ctx, "missing.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "missing.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{"", "../escape.wav", "/abs.wav"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	if _, err := store.PresignURL(ctx, "x", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestStorePutHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "c.wav", bytes.NewReader([]byte("data")), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := store.Head(context.Background(), "c.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected nothing stored, got %v", err)
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	wd, _ := os.Getwd()
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer func() { _ = os.Chdir(wd) }()
	store, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != "uploads" {
		t.Fatalf("unexpected root %q", store.Root())
	}
	if fi, err := os.Stat(filepath.Join(dir, "uploads")); err != nil || !fi.IsDir() {
		t.Fatalf("expected uploads dir: %v", err)
	}
}

func TestStoreGetWithoutSidecarIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "chunk-2.wav", bytes.NewReader([]byte("RIFF")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.Remove(filepath.Join(store.Root(), "chunk-2.wav.meta")); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}
	if _, _, err := store.Get(ctx, "chunk-2.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, "chunk-2.wav"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected head ErrNotFound, got %v", err)
	}
}
