package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stopscan/pkg/contract"
)

// Options 为文件系统 Source 的可选配置。
type Options struct {
	// AllowExts: 目录递归时仅接受这些扩展名（不区分大小写）；默认 [".ctl"]。
	// 单文件 root 不受限制。
	AllowExts []string `json:"allow_exts"`
	// ExcludeDirNames: 扫描目录时跳过这些目录名（基名完全匹配，不区分大小写）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
}

// FileSystem 从控制块文件、目录或 STDIN 产出任务。
// - 每个文件为一个任务，内容原样作为控制块（不在此处校验长度）；
// - STDIN 按 32 字节切分为多个任务，ID 为 stdin-<序号>，残余尾部作为最后一个任务交由下游拒绝；
// - 目录递归顺序稳定：先子目录后文件，均按字典序。
type FileSystem struct {
	allowExt   map[string]struct{}
	excludeDir map[string]struct{}
}

// 单个控制块文件的读取上限；超出部分不读，长度错误由解码阶段报告。
const maxControlRead = contract.IntervalSize + 1

// New 创建 FileSystem Source。
func New(opts *Options) *FileSystem {
	exts := []string{".ctl"}
	if opts != nil && len(opts.AllowExts) > 0 {
		exts = opts.AllowExts
	}
	allow := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allow[e] = struct{}{}
	}
	ex := make(map[string]struct{})
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name != "" {
				ex[strings.ToLower(name)] = struct{}{}
			}
		}
	}
	return &FileSystem{allowExt: allow, excludeDir: ex}
}

// Iterate 遍历 roots，按稳定顺序对每个控制块调用 yield。
// roots 为空或仅包含 "-" 时读取 STDIN。
func (s *FileSystem) Iterate(ctx context.Context, roots []string, yield func(id contract.TaskID, control []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return s.iterateStdin(ctx, yield)
	}
	if len(roots) > 1 {
		for _, r := range roots {
			if r == "-" {
				return errors.New("stdin '-' cannot be mixed with other roots")
			}
		}
	}
	for _, root := range roots {
		if err := s.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSystem) iterateStdin(ctx context.Context, yield func(contract.TaskID, []byte) error) error {
	br := bufio.NewReader(os.Stdin)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := make([]byte, contract.IntervalSize)
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			if yerr := yield(contract.TaskID(fmt.Sprintf("stdin-%d", i)), buf[:n]); yerr != nil {
				return yerr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.TaskID, []byte) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// 符号链接仅跟随到常规文件；指向目录时忽略
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return s.yieldFile(root, yield)
	}
	if info.IsDir() {
		return s.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return s.yieldFile(root, yield)
}

func (s *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.TaskID, []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := s.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := s.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			continue
		}
		if _, ok := s.allowExt[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		p := filepath.Join(dir, e.Name())
		t, err := os.Stat(p)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			continue
		}
		if err := s.yieldFile(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSystem) yieldFile(p string, yield func(contract.TaskID, []byte) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	b, err := io.ReadAll(io.LimitReader(f, maxControlRead))
	_ = f.Close()
	if err != nil {
		return err
	}
	return yield(contract.NormalizeTaskID(p), b)
}
