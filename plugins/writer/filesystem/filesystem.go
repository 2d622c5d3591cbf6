package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stopscan/pkg/contract"
)

// Options: 文件系统 Writer 选项。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// BlobDir: 结果块（*.bin）相对 OutputDir 的子目录；为空则与汇总同级。
	BlobDir string `json:"blob_dir,omitempty"`
	// Atomic: 同目录临时文件 + rename；默认 true，显式 false 关闭。
	Atomic *bool `json:"atomic,omitempty"`
	// Flat: 仅保留工件基名；默认 true。
	Flat *bool `json:"flat,omitempty"`
	// PermFile/PermDir: 为 0 时采用 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 为 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// Writer 将工件写入本地目录。同一工件单写者；不同工件可并发写。
type Writer struct {
	root    string
	blobDir string
	atomic  bool
	flat    bool
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

// New 创建文件系统 Writer。
func New(opts *Options) (*Writer, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("%w: output_dir is required", contract.ErrMalformedInput)
	}
	w := &Writer{root: opts.OutputDir, atomic: true, flat: true, permF: 0o644, permD: 0o755, bufSize: 64 * 1024}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.Flat != nil {
		w.flat = *opts.Flat
	}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if bd := strings.TrimSpace(opts.BlobDir); bd != "" {
		rel, err := safeRel(bd)
		if err != nil {
			return nil, fmt.Errorf("blob_dir %q: %w", bd, err)
		}
		w.blobDir = rel
	}
	return w, nil
}

var _ contract.Writer = (*Writer)(nil)

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.Path(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeOverwrite(ctx, dest, r)
}

// Path 返回工件的落盘路径：*.bin 落在 BlobDir 下，其余落在根目录。
func (w *Writer) Path(id contract.ArtifactID) (string, error) {
	var rel string
	if w.flat {
		rel = filepath.Base(filepath.Clean(string(id)))
		if rel == "." || rel == ".." || rel == string(filepath.Separator) {
			return "", fmt.Errorf("%w: %q", contract.ErrPathInvalid, id)
		}
	} else {
		var err error
		if rel, err = safeRel(string(id)); err != nil {
			return "", fmt.Errorf("%w: %q", err, id)
		}
	}
	if w.blobDir != "" && strings.HasSuffix(rel, ".bin") {
		rel = filepath.Join(w.blobDir, rel)
	}
	return filepath.Join(w.root, rel), nil
}

// safeRel: 拒绝绝对路径、父级逃逸与卷名。
func safeRel(p string) (string, error) {
	rel := filepath.Clean(p)
	switch {
	case rel == "." || rel == "":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	return rel, nil
}

func (w *Writer) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *Writer) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := osReplace(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// 尽力同步父目录元数据
	_ = syncDir(dir)
	return nil
}

// readerWithCtx: 每次 Read 前检查 ctx。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
