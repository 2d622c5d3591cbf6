package filesystem

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stopscan/pkg/contract"
)

func noTmpLeft(t *testing.T, dir string) {
	t.Helper()
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("tmp file not cleaned: %s", e.Name())
		}
	}
}

// TestWriteAtomic 原子写入结果块
func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	blob := []byte{111, 0, 0, 0}
	if err := w.Write(context.Background(), "task-1-28.bin", bytes.NewReader(blob)); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "task-1-28.bin"))
	if err != nil || !bytes.Equal(b, blob) {
		t.Fatalf("unexpected file %v %v", err, b)
	}
	noTmpLeft(t, dir)
}

// 目标已存在时，原子写应替换为新内容。
func TestWriteAtomicReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	for _, v := range []string{"v1", "v2"} {
		if err := w.Write(context.Background(), "summary.jsonl", strings.NewReader(v)); err != nil {
			t.Fatalf("write %s: %v", v, err)
		}
	}
	b, _ := os.ReadFile(filepath.Join(dir, "summary.jsonl"))
	if string(b) != "v2" {
		t.Fatalf("expect replaced content v2, got %q", string(b))
	}
	noTmpLeft(t, dir)
}

// TestBlobDir 结果块落入子目录，汇总留在根目录
func TestBlobDir(t *testing.T) {
	dir := t.TempDir()
	w, err := New(&Options{OutputDir: dir, BlobDir: "blobs"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := w.Write(ctx, "task-1-8.bin", strings.NewReader("x")); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	if err := w.Write(ctx, "summary.jsonl", strings.NewReader("{}\n")); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "blobs", "task-1-8.bin")); err != nil {
		t.Fatalf("blob 未落入子目录: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "summary.jsonl")); err != nil {
		t.Fatalf("summary 未落入根目录: %v", err)
	}
}

// TestWritePathInvalid 非扁平模式路径越界
func TestWritePathInvalid(t *testing.T) {
	flat := false
	w, _ := New(&Options{OutputDir: t.TempDir(), Flat: &flat})
	err := w.Write(context.Background(), "../bad.bin", strings.NewReader("x"))
	if !errors.Is(err, contract.ErrPathInvalid) {
		t.Fatalf("expect path invalid, got %v", err)
	}
}

// TestFlatStripsDirs 扁平模式仅保留基名
func TestFlatStripsDirs(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	p, err := w.Path("../../a/b/task-3-5.bin")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if p != filepath.Join(dir, "task-3-5.bin") {
		t.Fatalf("unexpected path %s", p)
	}
}

// TestWriteNonAtomicNested 非原子、保留层级
func TestWriteNonAtomicNested(t *testing.T) {
	dir := t.TempDir()
	flat, atomic := false, false
	w, _ := New(&Options{OutputDir: dir, Flat: &flat, Atomic: &atomic})
	if err := w.Write(context.Background(), "run1/task-1-2.bin", strings.NewReader("v")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run1", "task-1-2.bin")); err != nil {
		t.Fatalf("file not created")
	}
}

// TestWriteCtxCancel 上下文取消
func TestWriteCtxCancel(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Write(ctx, "a.bin", strings.NewReader("data")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ctx error, got %v", err)
	}
}

// TestNewInvalid 参数缺失
func TestNewInvalid(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, contract.ErrMalformedInput) {
		t.Fatalf("expect error for nil opts")
	}
	if _, err := New(&Options{}); err == nil {
		t.Fatalf("expect error for empty output dir")
	}
}

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

// TestWriteAtomicCopyError 拷贝失败时不残留临时文件
func TestWriteAtomicCopyError(t *testing.T) {
	dir := t.TempDir()
	w, _ := New(&Options{OutputDir: dir})
	if err := w.Write(context.Background(), "a.bin", errReader{}); err == nil {
		t.Fatalf("expect copy error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files left %v", entries)
	}
}

// TestReaderWithCtxCancel reader 在读取前取消
func TestReaderWithCtxCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := readerWithCtx(ctx, strings.NewReader("data"))
	cancel()
	if _, err := r.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expect ctx error")
	}
}
