package reportstore

import (
	"bytes"
	"context"
	"os"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New("local", Options{LocalRootDir: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	want := []byte(`{"iat":[],"threads":[]}`)
	if err := store.Upload(ctx, "reports", "1.json", bytes.NewReader(want)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	out, err := os.CreateTemp(t.TempDir(), "out-*.json")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer out.Close()

	if err := store.Download(ctx, "reports", "1.json", out); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNewUnknownDeploymentKind(t *testing.T) {
	if _, err := New("bogus", Options{}); err == nil {
		t.Fatal("expected error for unknown deployment kind")
	}
}
