package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"snapvault/pkg/core"
	"snapvault/pkg/ignore"
	"snapvault/pkg/storage"
	"snapvault/pkg/types"
)

// MaxDepth 与 treebuilder 保持一致，防止恶意构造的深层 tree 打爆栈
const MaxDepth = 256

var ErrTooDeep = errors.New("tree nesting exceeds max depth")

// Exporter 负责把 tree 对象展开、还原到工作目录
type Exporter struct {
	db      *storage.ObjectDB
	matcher *ignore.Matcher
}

// NewExporter matcher 为 nil 时只保护元数据目录
func NewExporter(db *storage.ObjectDB, matcher *ignore.Matcher) *Exporter {
	return &Exporter{db: db, matcher: matcher}
}

// ExportFile 把 blob 的内容写入 writer
func (e *Exporter) ExportFile(ctx context.Context, hash types.Hash, writer io.Writer) error {
	data, err := e.db.Get(ctx, hash, core.TypeBlob)
	if err != nil {
		return err
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", hash.Short(), err)
	}
	return nil
}

// GetTree 把 tree 展开成 "路径 -> blob Hash" 的扁平映射
// basePath 会原样拼在每个路径前面，子目录用 "/" 连接
// treeID 为空时直接返回空映射，不读存储
func (e *Exporter) GetTree(ctx context.Context, treeID types.Hash, basePath string) (map[string]types.Hash, error) {
	result := make(map[string]types.Hash)
	if treeID.IsZero() {
		return result, nil
	}
	if err := e.walkTree(ctx, treeID, basePath, 0, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Exporter) walkTree(ctx context.Context, treeID types.Hash, base string, depth int, out map[string]types.Hash) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: at %q", ErrTooDeep, base)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := e.db.Get(ctx, treeID, core.TypeTree)
	if err != nil {
		return err
	}
	tree, err := core.ParseTree(data)
	if err != nil {
		return fmt.Errorf("tree %s: %w", treeID.Short(), err)
	}

	for _, entry := range tree.Entries {
		path := base + entry.Name
		switch entry.Type {
		case core.EntryBlob:
			out[path] = entry.Hash
		case core.EntryTree:
			if err := e.walkTree(ctx, entry.Hash, path+"/", depth+1, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// RestoreCallback 每还原一个文件调用一次，path 是相对路径
type RestoreCallback func(path string, hash types.Hash)

// ReadTree 用 tree 的内容替换 root 下的工作区
// 先清空非忽略的内容，再逐个写出文件；中途失败会留下半新半旧的状态
func (e *Exporter) ReadTree(ctx context.Context, treeID types.Hash, root string) error {
	return e.ReadTreeFunc(ctx, treeID, root, nil)
}

// ReadTreeFunc 同 ReadTree，额外在每个文件写完后回调 onRestore
func (e *Exporter) ReadTreeFunc(ctx context.Context, treeID types.Hash, root string, onRestore RestoreCallback) error {
	// 先展开，坏掉的 tree 不应该先把工作区清空
	files, err := e.GetTree(ctx, treeID, "")
	if err != nil {
		return err
	}

	if err := e.clear(ctx, root); err != nil {
		return err
	}

	// 按路径排序写出，让结果和回调顺序稳定
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.matcher.Matches(p) {
			slog.Warn("tree entry points into an ignored path, skipping", "path", p)
			continue
		}

		hash := files[p]
		data, err := e.db.Get(ctx, hash, core.TypeBlob)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", p, err)
		}

		fullPath := filepath.Join(root, filepath.FromSlash(p))
		if err := ensureDir(root, filepath.Dir(filepath.FromSlash(p))); err != nil {
			return fmt.Errorf("failed to create dir for %s: %w", p, err)
		}
		if err := writeFileAtomic(fullPath, data); err != nil {
			return err
		}

		if onRestore != nil {
			onRestore(p, hash)
		}
	}

	slog.Debug("tree restored", "tree", treeID.Short(), "files", len(paths))
	return nil
}

// clear 删除 root 下所有非忽略的普通文件和目录，root 本身保留
// 符号链接既不跟随也不删除
func (e *Exporter) clear(ctx context.Context, root string) error {
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() && (e.matcher.Matches(rel) || e.matcher.Matches(filepath.ToSlash(rel)+"/")) {
			return fs.SkipDir
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}

	// 逆序：子节点先于父目录
	for i := len(paths) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := paths[i]
		rel, _ := filepath.Rel(root, path)
		if e.matcher.Matches(rel) {
			continue
		}

		info, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}

		switch {
		case info.Mode().IsRegular():
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", rel, err)
			}
		case info.IsDir():
			// 目录里还有被忽略的内容时删不掉，保留即可
			if err := os.Remove(path); err != nil && !isTolerable(err) {
				return fmt.Errorf("failed to remove dir %s: %w", rel, err)
			}
		default:
			slog.Debug("leaving non-regular entry in place", "path", rel, "mode", info.Mode().String())
		}
	}
	return nil
}

func isTolerable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTEMPTY) ||
		errors.Is(err, syscall.EEXIST)
}

// ensureDir 从 root 开始逐级创建 rel，不跟随任何符号链接
// 清空阶段会保留符号链接，链接占着目录位置时先删掉链接本身，再建真目录
func ensureDir(root, rel string) error {
	if rel == "." || rel == "" {
		return nil
	}
	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)

		info, err := os.Lstat(cur)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if err := os.Mkdir(cur, 0755); err != nil {
				return err
			}
		case err != nil:
			return err
		case info.IsDir():
		case info.Mode()&fs.ModeSymlink != 0:
			slog.Debug("replacing symlink with directory", "path", cur)
			if err := os.Remove(cur); err != nil {
				return err
			}
			if err := os.Mkdir(cur, 0755); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s exists and is not a directory", cur)
		}
	}
	return nil
}

// writeFileAtomic 写临时文件再 rename
// 目标是符号链接时替换链接本身，不会写穿到链接指向的位置
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sv-restore-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
