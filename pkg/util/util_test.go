package util

import (
	"path/filepath"
	"testing"
)

func TestNormalizedRelPathStripsRootConsistently(t *testing.T) {
	// Two different roots must yield identical keys for the same sub-tree layout,
	// regardless of whether the root is given with a trailing separator.
	rootA := filepath.Join("/", "data", "src")
	rootB := filepath.Join("/", "mirror", "dst") + string(filepath.Separator)

	keyA, err := NormalizedRelPath(rootA, filepath.Join("/", "data", "src", "sub", "b.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	keyB, err := NormalizedRelPath(rootB, filepath.Join("/", "mirror", "dst", "sub", "b.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if keyA != keyB {
		t.Errorf("keys differ across roots: %q vs %q", keyA, keyB)
	}
	if keyA != "sub/b.txt" {
		t.Errorf("expected key 'sub/b.txt', got %q", keyA)
	}
}

func TestDenormalizedAbsPathRoundTrip(t *testing.T) {
	root := filepath.Join("/", "data", "src")
	abs := filepath.Join(root, "a", "b.txt")

	key, err := NormalizedRelPath(root, abs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := DenormalizedAbsPath(root, key); got != abs {
		t.Errorf("round trip mismatch: got %q, want %q", got, abs)
	}
}

func TestIsSubPath(t *testing.T) {
	base := filepath.Join("/", "data", "dst")

	cases := []struct {
		path string
		want bool
	}{
		{filepath.Join("/", "data", "dst"), true},
		{filepath.Join("/", "data", "dst", "sub"), true},
		{filepath.Join("/", "data"), false},
		{filepath.Join("/", "data", "dst2"), false},
		{filepath.Join("/", "other"), false},
	}
	for _, c := range cases {
		if got := IsSubPath(base, c.path); got != c.want {
			t.Errorf("IsSubPath(%q, %q) = %v, want %v", base, c.path, got, c.want)
		}
	}
}

func TestWithUserWritePermission(t *testing.T) {
	if got := WithUserWritePermission(0444); got != 0644 {
		t.Errorf("expected 0644, got %o", got)
	}
	if got := WithUserWritePermission(0755); got != 0755 {
		t.Errorf("expected 0755 to be unchanged, got %o", got)
	}
}

func TestByteCountIEC(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
	}
	for _, c := range cases {
		if got := ByteCountIEC(c.in); got != c.want {
			t.Errorf("ByteCountIEC(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInvertMap(t *testing.T) {
	m := map[string]int{"a": 1, "b": 2}
	inv := InvertMap(m)
	if len(inv) != 2 || inv[1] != "a" || inv[2] != "b" {
		t.Errorf("unexpected inverted map: %v", inv)
	}
}
