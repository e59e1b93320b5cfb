package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(Config{LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	return b
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	payload := []byte("original bytes")
	key := "workspaces/w1/media/u1/images/original/photo_20260831_deadbeef.jpg"

	got, err := b.Write(ctx, key, bytes.NewReader(payload), int64(len(payload)), "image/jpeg")
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got != key {
		t.Errorf("returned key %q, want %q", got, key)
	}

	rc, err := b.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("read %q, want %q", data, payload)
	}
}

func TestLocalReadMissing(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Read(context.Background(), "nope/missing.bin")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLocalExistsAndDelete(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	key := "w/u/file.bin"

	if _, err := b.Write(ctx, key, strings.NewReader("x"), 1, "application/octet-stream"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ok, err := b.Exists(ctx, key); err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	if err := b.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := b.Exists(ctx, key); ok {
		t.Error("key still exists after delete")
	}

	// Deleting a missing key is not an error.
	if err := b.Delete(ctx, key); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestLocalDeletePrefix(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	keys := []string{
		"workspaces/w1/media/u1/images/original/a.jpg",
		"workspaces/w1/media/u1/thumbnail/b.jpg",
		"workspaces/w1/media/u2/images/original/c.jpg",
	}
	for _, k := range keys {
		if _, err := b.Write(ctx, k, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Write %s: %v", k, err)
		}
	}

	if err := b.DeletePrefix(ctx, "workspaces/w1/media/u1/"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}

	for _, k := range keys[:2] {
		if ok, _ := b.Exists(ctx, k); ok {
			t.Errorf("%s survived prefix delete", k)
		}
	}
	if ok, _ := b.Exists(ctx, keys[2]); !ok {
		t.Error("sibling upload was deleted")
	}
}

func TestLocalDeletePrefixEscapeGuard(t *testing.T) {
	b := newTestBackend(t)
	if err := b.DeletePrefix(context.Background(), "../../etc"); err == nil {
		t.Fatal("expected escape rejection")
	}
}

func TestLocalWriteCreatesNestedDirs(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(Config{LocalPath: dir})
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	key := "a/b/c/d/e.bin"
	if _, err := b.Write(context.Background(), key, strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(key))); err != nil {
		t.Fatalf("stat written file: %v", err)
	}
}

func TestNewBackendSelectsLocal(t *testing.T) {
	b, err := NewBackend(Config{Type: BackendLocal, LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if _, ok := b.(*LocalBackend); !ok {
		t.Fatalf("backend type %T, want *LocalBackend", b)
	}
}
