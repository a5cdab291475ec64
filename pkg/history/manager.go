package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"snapvault/pkg/core"
	"snapvault/pkg/exporter"
	"snapvault/pkg/meta"
	"snapvault/pkg/refs"
	"snapvault/pkg/storage"
	"snapvault/pkg/treebuilder"
	"snapvault/pkg/types"
)

// Manager 负责提交历史：创建 commit、读取 commit、沿父链遍历
type Manager struct {
	db       *storage.ObjectDB
	builder  *treebuilder.Builder
	exporter *exporter.Exporter
	heads    refs.HeadStore

	// index 可选；非 nil 时每次提交都会投影到元数据库
	index *meta.Repository
}

func NewManager(db *storage.ObjectDB, builder *treebuilder.Builder, exp *exporter.Exporter, heads refs.HeadStore, index *meta.Repository) *Manager {
	return &Manager{
		db:       db,
		builder:  builder,
		exporter: exp,
		heads:    heads,
		index:    index,
	}
}

// Commit 快照 root，生成以当前 HEAD 为父节点的 commit，并把 HEAD 移过去
// HEAD 只在 commit 对象落盘之后才更新
func (m *Manager) Commit(ctx context.Context, root, message string) (types.Hash, error) {
	treeID, err := m.builder.WriteTree(ctx, root)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot %s: %w", root, err)
	}

	parent, err := m.heads.GetHead(ctx)
	if errors.Is(err, refs.ErrNoHead) {
		parent = ""
	} else if err != nil {
		return "", err
	}

	commit, err := core.NewCommit(treeID, parent, message)
	if err != nil {
		return "", err
	}
	id, err := m.db.PutObject(ctx, commit)
	if err != nil {
		return "", err
	}

	if m.index != nil {
		// 索引只是加速，失败不影响提交本身
		if err := m.index.IndexCommit(ctx, commit); err != nil {
			slog.Warn("failed to index commit", "commit", id.Short(), "error", err)
		}
	}

	if err := m.heads.SetHead(ctx, id); err != nil {
		return "", err
	}

	slog.Debug("commit created", "commit", id.Short(), "tree", treeID.Short(), "parent", parent.Short())
	return id, nil
}

// GetCommit 读取并解析 commit 对象
func (m *Manager) GetCommit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	data, err := m.db.Get(ctx, id, core.TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := core.ParseCommit(data)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", id.Short(), err)
	}
	return c, nil
}

// Head 返回当前 HEAD，空仓库返回 refs.ErrNoHead
func (m *Manager) Head(ctx context.Context) (types.Hash, error) {
	return m.heads.GetHead(ctx)
}

// Log 从 from (为空则从 HEAD) 开始沿父链遍历，对每个 commit 调用 fn
// fn 返回 error 时停止遍历并原样返回
func (m *Manager) Log(ctx context.Context, from types.Hash, fn func(id types.Hash, c *core.Commit) error) error {
	id := from
	if id.IsZero() {
		head, err := m.heads.GetHead(ctx)
		if errors.Is(err, refs.ErrNoHead) {
			return nil
		}
		if err != nil {
			return err
		}
		id = head
	}

	for !id.IsZero() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := m.GetCommit(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(id, c); err != nil {
			return err
		}
		id = c.Parent
	}
	return nil
}

// Checkout 把工作区还原到指定 commit 的快照，然后移动 HEAD
func (m *Manager) Checkout(ctx context.Context, root string, id types.Hash) error {
	c, err := m.GetCommit(ctx, id)
	if err != nil {
		return err
	}
	if err := m.exporter.ReadTree(ctx, c.Tree, root); err != nil {
		return fmt.Errorf("failed to restore tree %s: %w", c.Tree.Short(), err)
	}
	return m.heads.SetHead(ctx, id)
}
