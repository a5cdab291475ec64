package treebuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"snapvault/pkg/core"
	"snapvault/pkg/ignore"
	"snapvault/pkg/storage"
	"snapvault/pkg/types"
)

// MaxDepth 是目录递归的上限，超过即认为是环或者恶意结构
const MaxDepth = 256

var ErrTooDeep = errors.New("directory nesting exceeds max depth")

// Options 控制 tree 的序列化方式
type Options struct {
	// Canonical 为 true 时条目按名字排序，得到与扫描顺序无关的 Hash
	// 默认 false：保持文件系统返回的顺序
	Canonical bool
}

// Builder 负责把工作目录扫描成 tree 对象
type Builder struct {
	db      *storage.ObjectDB
	matcher *ignore.Matcher
	opts    Options
}

// NewBuilder matcher 为 nil 时只忽略元数据目录
func NewBuilder(db *storage.ObjectDB, matcher *ignore.Matcher, opts Options) *Builder {
	return &Builder{db: db, matcher: matcher, opts: opts}
}

// WriteTree 递归快照 root，返回根 tree 的 Hash
// 每次都是全量快照：文件内容重新读取、重新写入 (存储层去重)
func (b *Builder) WriteTree(ctx context.Context, root string) (types.Hash, error) {
	return b.writeDir(ctx, root, "", 0)
}

// writeDir 处理单个目录 (核心算法)
// dir: 物理路径；rel: 相对于 root 的 slash 路径，根目录为 ""
func (b *Builder) writeDir(ctx context.Context, dir, rel string, depth int) (types.Hash, error) {
	if depth > MaxDepth {
		return "", fmt.Errorf("%w: %s", ErrTooDeep, dir)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	children, err := readDirUnsorted(dir)
	if err != nil {
		return "", err
	}

	var entries []core.TreeEntry
	for _, child := range children {
		name := child.Name()
		childPath := filepath.Join(dir, name)
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		if b.ignored(childRel, child.IsDir()) {
			continue
		}

		switch mode := child.Type(); {
		case mode.IsRegular():
			id, err := b.writeBlob(ctx, childPath)
			if err != nil {
				return "", err
			}
			entries = append(entries, core.TreeEntry{Type: core.EntryBlob, Hash: id, Name: name})

		case mode.IsDir():
			id, err := b.writeDir(ctx, childPath, childRel, depth+1)
			if err != nil {
				return "", err
			}
			entries = append(entries, core.TreeEntry{Type: core.EntryTree, Hash: id, Name: name})

		default:
			// 符号链接、设备文件、管道: 不跟随，不记录
			slog.Debug("skipping non-regular entry", "path", childRel, "mode", mode.String())
		}
	}

	if b.opts.Canonical {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}

	tree, err := core.NewTree(entries)
	if err != nil {
		return "", fmt.Errorf("failed to create tree for %s: %w", dir, err)
	}
	id, err := b.db.PutObject(ctx, tree)
	if err != nil {
		return "", fmt.Errorf("failed to store tree: %w", err)
	}

	slog.Debug("tree written", "path", rel, "entries", len(entries), "hash", id.Short())
	return id, nil
}

func (b *Builder) writeBlob(ctx context.Context, path string) (types.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	blob, err := core.NewBlob(data)
	if err != nil {
		return "", err
	}
	return b.db.PutObject(ctx, blob)
}

// ignored 目录额外带 "/" 再匹配一次，让 "build/" 这类只匹配目录的规则生效
func (b *Builder) ignored(rel string, isDir bool) bool {
	if b.matcher.Matches(rel) {
		return true
	}
	return isDir && b.matcher.Matches(rel+"/")
}

// readDirUnsorted 按文件系统返回的顺序列出目录
// os.ReadDir 会排序，这里不能用
func readDirUnsorted(dir string) ([]os.DirEntry, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open dir %s: %w", dir, err)
	}
	defer f.Close()

	children, err := f.ReadDir(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list dir %s: %w", dir, err)
	}
	return children, nil
}
