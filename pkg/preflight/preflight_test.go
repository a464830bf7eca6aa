package preflight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckSourceAccessible(t *testing.T) {
	dir := t.TempDir()

	if err := CheckSourceAccessible(dir); err != nil {
		t.Errorf("expected existing directory to pass, got: %v", err)
	}

	if err := CheckSourceAccessible(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected missing directory to fail")
	}

	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := CheckSourceAccessible(file); err == nil {
		t.Error("expected regular file to fail the directory check")
	}
}

func TestCheckTargetWritable(t *testing.T) {
	dir := t.TempDir()
	if err := CheckTargetWritable(dir); err != nil {
		t.Errorf("expected temp dir to be writable, got: %v", err)
	}

	// The probe file must not linger.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected probe file to be removed, found %d entries", len(entries))
	}
}

func TestCheckNotNested(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	nested := filepath.Join(src, "inner")
	for _, d := range []string{src, dst, nested} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
	}

	if err := CheckNotNested(src, dst); err != nil {
		t.Errorf("expected sibling directories to pass, got: %v", err)
	}
	if err := CheckNotNested(src, nested); err == nil {
		t.Error("expected destination inside source to fail")
	}
	if err := CheckNotNested(nested, src); err == nil {
		t.Error("expected source inside destination to fail")
	}
	if err := CheckNotNested(src, src); err == nil {
		t.Error("expected identical paths to fail")
	}
}
