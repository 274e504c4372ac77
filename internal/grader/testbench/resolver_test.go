package testbench

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	appErr "hdlgrade/pkg/errors"
)

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("module tb; endmodule\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestResolveSelectsLexicographicFirst(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dir := filepath.Join(root, "101")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.v", "a.v", "c.v"} {
		writeFile(t, dir, name)
	}

	r, err := NewResolver(root, ".v")
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Resolve(context.Background(), "101")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if filepath.Base(got) != "a.v" {
		t.Fatalf("expected a.v, got %s", filepath.Base(got))
	}

	// Adding a later-sorting file does not change the selection.
	writeFile(t, dir, "d.v")
	got, err = r.Resolve(context.Background(), "101")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if filepath.Base(got) != "a.v" {
		t.Fatalf("expected a.v after adding d.v, got %s", filepath.Base(got))
	}

	// Removing the current selection falls through to the next.
	if err := os.Remove(filepath.Join(dir, "a.v")); err != nil {
		t.Fatal(err)
	}
	got, err = r.Resolve(context.Background(), "101")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if filepath.Base(got) != "b.v" {
		t.Fatalf("expected b.v after removing a.v, got %s", filepath.Base(got))
	}
}

func TestResolveIgnoresOtherExtensions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dir := filepath.Join(root, "202")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "README.md")
	writeFile(t, dir, "tb.v")

	r, err := NewResolver(root, ".v")
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Resolve(context.Background(), "202")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if filepath.Base(got) != "tb.v" {
		t.Fatalf("expected tb.v, got %s", filepath.Base(got))
	}
}

func TestResolveCreatesMissingDirAndSignalsNotReady(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	r, err := NewResolver(root, ".v")
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Resolve(context.Background(), "303")
	if !appErr.Is(err, appErr.TestbenchNotReady) {
		t.Fatalf("expected TestbenchNotReady, got %v", err)
	}
	info, statErr := os.Stat(filepath.Join(root, "303"))
	if statErr != nil || !info.IsDir() {
		t.Fatalf("expected assignment dir to be created: %v", statErr)
	}

	// Second attempt on the still-empty directory reports TestbenchMissing.
	_, err = r.Resolve(context.Background(), "303")
	if !appErr.Is(err, appErr.TestbenchMissing) {
		t.Fatalf("expected TestbenchMissing, got %v", err)
	}
}

func TestResolveEmptyDirSignalsMissing(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "404"), 0755); err != nil {
		t.Fatal(err)
	}
	r, err := NewResolver(root, ".v")
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve(context.Background(), "404")
	if !appErr.Is(err, appErr.TestbenchMissing) {
		t.Fatalf("expected TestbenchMissing, got %v", err)
	}
}
