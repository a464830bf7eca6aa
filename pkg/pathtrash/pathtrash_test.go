package pathtrash

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

func createFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for test file: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func findArchive(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read trash dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 archive, found %d entries", len(entries))
	}
	return filepath.Join(dir, entries[0].Name())
}

func readArchive(t *testing.T, path string, format Format) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("failed to open zstd stream: %v", err)
		}
		defer zr.Close()
		r = zr
	default:
		gr, err := pgzip.NewReader(f)
		if err != nil {
			t.Fatalf("failed to open gzip stream: %v", err)
		}
		defer gr.Close()
		r = gr
	}

	contents := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read tar entry: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("failed to read tar content: %v", err)
		}
		contents[hdr.Name] = string(data)
	}
	return contents
}

func TestTrasherRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatTarGz, FormatTarZst} {
		t.Run(format.String(), func(t *testing.T) {
			srcDir := t.TempDir()
			trashDir := filepath.Join(t.TempDir(), "trash")
			createFile(t, filepath.Join(srcDir, "a.txt"), "alpha")
			createFile(t, filepath.Join(srcDir, "b.txt"), "beta")

			tr := NewTrasher(trashDir, format)
			if err := tr.Begin(); err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			if err := tr.Archive("a.txt", filepath.Join(srcDir, "a.txt")); err != nil {
				t.Fatalf("Archive failed: %v", err)
			}
			if err := tr.Archive("sub/b.txt", filepath.Join(srcDir, "b.txt")); err != nil {
				t.Fatalf("Archive failed: %v", err)
			}
			if err := tr.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			contents := readArchive(t, findArchive(t, trashDir), format)
			if contents["a.txt"] != "alpha" {
				t.Errorf("unexpected content for a.txt: %q", contents["a.txt"])
			}
			if contents["sub/b.txt"] != "beta" {
				t.Errorf("unexpected content for sub/b.txt: %q", contents["sub/b.txt"])
			}
		})
	}
}

func TestTrasherRemovesEmptyArchive(t *testing.T) {
	trashDir := filepath.Join(t.TempDir(), "trash")
	tr := NewTrasher(trashDir, FormatTarGz)
	if err := tr.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(trashDir)
	if err != nil {
		t.Fatalf("failed to read trash dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty archive to be removed, found %d entries", len(entries))
	}
}

func TestTrasherReusableAcrossPasses(t *testing.T) {
	srcDir := t.TempDir()
	trashDir := filepath.Join(t.TempDir(), "trash")
	createFile(t, filepath.Join(srcDir, "x.txt"), "x")

	tr := NewTrasher(trashDir, FormatTarGz)
	for i := 0; i < 2; i++ {
		if err := tr.Begin(); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if err := tr.Archive("x.txt", filepath.Join(srcDir, "x.txt")); err != nil {
			t.Fatalf("Archive failed: %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	entries, err := os.ReadDir(trashDir)
	if err != nil {
		t.Fatalf("failed to read trash dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 archives, found %d", len(entries))
	}
}

func TestTrasherArchiveWithoutBegin(t *testing.T) {
	tr := NewTrasher(t.TempDir(), FormatTarGz)
	if err := tr.Archive("x", "/nonexistent"); err == nil {
		t.Error("expected Archive without Begin to fail")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"tar.gz", FormatTarGz, false},
		{"tar.zst", FormatTarZst, false},
		{"zip", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
