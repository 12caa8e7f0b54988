package safeio

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestSafeFSAllowsAbsoluteUnderRoot(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if _, err := fs.SafeReadFile(p); err != nil {
		t.Fatalf("SafeReadFile absolute: %v", err)
	}
}

func TestSafeFSRejectsTraversal(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if _, err := fs.SafeReadFile(filepath.Join("..", "etc", "passwd")); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestSafeOpenReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "log.jsonl"), []byte("line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	f, err := fs.SafeOpen("log.jsonl")
	if err != nil {
		t.Fatalf("SafeOpen: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "line\n" {
		t.Fatalf("got %q", data)
	}
	if _, err := fs.SafeOpen(filepath.Join("..", "escape.txt")); err == nil {
		t.Fatal("expected open outside root to be rejected")
	}
	if _, err := fs.SafeOpen("."); err == nil {
		t.Fatal("expected directory open to be rejected")
	}
}

func TestSafeStatReportsMetadata(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bin"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	info, err := fs.SafeStat("a.bin")
	if err != nil {
		t.Fatalf("SafeStat: %v", err)
	}
	if info.IsDir() || info.Size() != 3 {
		t.Fatalf("unexpected info: dir=%v size=%d", info.IsDir(), info.Size())
	}
	info, err = fs.SafeStat("sub")
	if err != nil {
		t.Fatalf("SafeStat dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory info")
	}
	if _, err := fs.SafeStat(filepath.Join("..", "outside")); err == nil {
		t.Fatal("expected stat outside root to be rejected")
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewSafeFS(dir)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := fs.WriteFileAtomic("log.jsonl", []byte("first\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := fs.WriteFileAtomic("log.jsonl", []byte("second\n"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic rewrite: %v", err)
	}
	data, err := fs.SafeReadFile("log.jsonl")
	if err != nil {
		t.Fatalf("SafeReadFile: %v", err)
	}
	if string(data) != "second\n" {
		t.Fatalf("got %q, want %q", data, "second\n")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestWriteFileAtomicRejectsEscape(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := fs.WriteFileAtomic(filepath.Join("..", "out.txt"), []byte("x"), 0o644); err == nil {
		t.Fatal("expected write outside root to be rejected")
	}
}

func TestAppendFileAccumulatesLines(t *testing.T) {
	fs, err := NewSafeFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	if err := fs.AppendFile("audit.jsonl", []byte("one\n"), 0o644); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}
	if err := fs.AppendFile("audit.jsonl", []byte("two\n"), 0o644); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}
	data, err := fs.SafeReadFile("audit.jsonl")
	if err != nil {
		t.Fatalf("SafeReadFile: %v", err)
	}
	if string(data) != "one\ntwo\n" {
		t.Fatalf("got %q", data)
	}
}
