package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func newTestFS(t *testing.T) *FSBackend {
	t.Helper()
	b, err := NewFSBackend(FSConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFSBackend: %v", err)
	}
	return b
}

func put(t *testing.T, b *FSBackend, key, content string) {
	t.Helper()
	if err := b.PutObject(context.Background(), key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("PutObject(%s): %v", key, err)
	}
}

func TestFSPutGetRoundTrip(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()
	put(t, b, "songs/test-1.flac", "hello world")

	reader, size, err := b.GetObject(ctx, "songs/test-1.flac", 0, 0)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	defer reader.Close()

	if size != 11 {
		t.Errorf("size = %d, want 11", size)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("content = %q, want %q", data, "hello world")
	}
}

func TestFSGetObjectRange(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()
	put(t, b, "a.mp3", "0123456789")

	tests := []struct {
		name           string
		offset, length int64
		want           string
	}{
		{"middle window", 2, 4, "2345"},
		{"from offset to end", 6, 0, "6789"},
		{"full", 0, 0, "0123456789"},
		{"length past end", 8, 100, "89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, _, err := b.GetObject(ctx, "a.mp3", tt.offset, tt.length)
			if err != nil {
				t.Fatalf("GetObject: %v", err)
			}
			defer reader.Close()
			data, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("content = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestFSNotFound(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()

	if _, _, err := b.GetObject(ctx, "missing", 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetObject err = %v, want ErrNotFound", err)
	}
	if _, err := b.StatObject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("StatObject err = %v, want ErrNotFound", err)
	}
}

func TestFSStatAndExists(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()
	put(t, b, "x", "abc")

	size, err := b.StatObject(ctx, "x")
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if size != 3 {
		t.Errorf("size = %d, want 3", size)
	}

	exists, err := b.ObjectExists(ctx, "x")
	if err != nil || !exists {
		t.Errorf("ObjectExists(x) = %v, %v, want true", exists, err)
	}
	exists, err = b.ObjectExists(ctx, "y")
	if err != nil || exists {
		t.Errorf("ObjectExists(y) = %v, %v, want false", exists, err)
	}
}

func TestFSDeleteTolerant(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()
	put(t, b, "x", "abc")

	if err := b.DeleteObject(ctx, "x"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	// Deleting again is not an error.
	if err := b.DeleteObject(ctx, "x"); err != nil {
		t.Errorf("DeleteObject(missing): %v", err)
	}
}

func TestFSPutOverwrite(t *testing.T) {
	b := newTestFS(t)
	ctx := context.Background()
	put(t, b, "x", "old")
	put(t, b, "x", "new content")

	size, err := b.StatObject(ctx, "x")
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if size != int64(len("new content")) {
		t.Errorf("size = %d, want %d", size, len("new content"))
	}
}
