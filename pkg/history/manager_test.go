package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"snapvault/pkg/core"
	"snapvault/pkg/exporter"
	"snapvault/pkg/ignore"
	"snapvault/pkg/meta"
	"snapvault/pkg/refs"
	"snapvault/pkg/storage"
	"snapvault/pkg/storage/disk"
	"snapvault/pkg/treebuilder"
	"snapvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type repo struct {
	root  string
	db    *storage.ObjectDB
	heads refs.HeadStore
	mgr   *Manager
}

// newRepo 组装一个基于磁盘的仓库；store 为 nil 时使用 .sv/objects
func newRepo(t *testing.T, store storage.Store, index *meta.Repository) *repo {
	t.Helper()
	root := t.TempDir()
	metaDir := filepath.Join(root, ignore.MetaDir)

	if store == nil {
		s, err := disk.NewAdapter(filepath.Join(metaDir, "objects"))
		require.NoError(t, err)
		store = s
	}
	db := storage.NewObjectDB(store)
	heads := refs.NewFileStore(metaDir)
	mgr := NewManager(db,
		treebuilder.NewBuilder(db, nil, treebuilder.Options{}),
		exporter.NewExporter(db, nil),
		heads, index)

	return &repo{root: root, db: db, heads: heads, mgr: mgr}
}

func (r *repo) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(r.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (r *repo) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestCommit_Chain(t *testing.T) {
	r := newRepo(t, nil, nil)
	ctx := context.Background()

	r.write(t, "a.txt", "hi")
	c1, err := r.mgr.Commit(ctx, r.root, "first")
	require.NoError(t, err)

	head, err := r.heads.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, c1, head)

	first, err := r.mgr.GetCommit(ctx, c1)
	require.NoError(t, err)
	assert.False(t, first.HasParent(), "空仓库的第一次提交没有父节点")
	assert.Equal(t, "message first", first.Message)
	assert.Equal(t, "first", first.Text())

	// 载荷格式
	raw, err := r.db.Get(ctx, c1, core.TypeCommit)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("tree %s\n\nmessage first\n", first.Tree), string(raw))

	r.write(t, "a.txt", "changed")
	c2, err := r.mgr.Commit(ctx, r.root, "second")
	require.NoError(t, err)

	second, err := r.mgr.GetCommit(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, c1, second.Parent)
	assert.NotEqual(t, first.Tree, second.Tree)

	head, err = r.heads.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, c2, head)
}

func TestCommit_UnchangedTreeStillNewCommit(t *testing.T) {
	r := newRepo(t, nil, nil)
	ctx := context.Background()
	r.write(t, "a.txt", "hi")

	c1, err := r.mgr.Commit(ctx, r.root, "same")
	require.NoError(t, err)
	c2, err := r.mgr.Commit(ctx, r.root, "same")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "父节点不同，id 也不同")
	first, _ := r.mgr.GetCommit(ctx, c1)
	second, _ := r.mgr.GetCommit(ctx, c2)
	assert.Equal(t, first.Tree, second.Tree)
}

func TestCommit_SnapshotFailureLeavesHead(t *testing.T) {
	r := newRepo(t, nil, nil)
	ctx := context.Background()
	r.write(t, "a.txt", "hi")
	c1, err := r.mgr.Commit(ctx, r.root, "ok")
	require.NoError(t, err)

	_, err = r.mgr.Commit(ctx, filepath.Join(r.root, "missing"), "broken")
	require.Error(t, err)

	head, err := r.heads.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, c1, head, "失败的提交不能移动 HEAD")
}

func TestGetCommit_Errors(t *testing.T) {
	r := newRepo(t, nil, nil)
	ctx := context.Background()

	t.Run("UnknownField", func(t *testing.T) {
		id, err := r.db.Put(ctx, core.TypeCommit, []byte("tree X\nbogus xyz\n\nmessage m\n"))
		require.NoError(t, err)
		_, err = r.mgr.GetCommit(ctx, id)
		assert.ErrorIs(t, err, core.ErrUnknownField)
	})

	t.Run("NotACommit", func(t *testing.T) {
		id, err := r.db.Put(ctx, core.TypeBlob, []byte("tree X\n\nmessage m\n"))
		require.NoError(t, err)
		_, err = r.mgr.GetCommit(ctx, id)
		assert.ErrorIs(t, err, storage.ErrTypeMismatch)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := r.mgr.GetCommit(ctx, core.HashBytes([]byte("nope")))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("HandWritten", func(t *testing.T) {
		id, err := r.db.Put(ctx, core.TypeCommit, []byte("tree T1\nparent P0\n\nmessage hello\n"))
		require.NoError(t, err)
		c, err := r.mgr.GetCommit(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, types.Hash("T1"), c.Tree)
		assert.Equal(t, types.Hash("P0"), c.Parent)
		assert.Equal(t, "message hello", c.Message)
	})
}

func TestLog_WalksParents(t *testing.T) {
	r := newRepo(t, nil, nil)
	ctx := context.Background()

	// 空仓库：什么都不输出
	err := r.mgr.Log(ctx, "", func(types.Hash, *core.Commit) error {
		t.Fatal("should not be called")
		return nil
	})
	require.NoError(t, err)

	var ids []types.Hash
	for i := 0; i < 3; i++ {
		r.write(t, "n.txt", fmt.Sprint(i))
		id, err := r.mgr.Commit(ctx, r.root, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var seen []types.Hash
	var msgs []string
	err = r.mgr.Log(ctx, "", func(id types.Hash, c *core.Commit) error {
		seen = append(seen, id)
		msgs = append(msgs, c.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Hash{ids[2], ids[1], ids[0]}, seen)
	assert.Equal(t, []string{"c2", "c1", "c0"}, msgs)

	// 从中间开始，回调可以提前终止
	stop := errors.New("stop")
	seen = nil
	err = r.mgr.Log(ctx, ids[1], func(id types.Hash, c *core.Commit) error {
		seen = append(seen, id)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []types.Hash{ids[1]}, seen)
}

func TestCheckout_RestoresSnapshot(t *testing.T) {
	r := newRepo(t, nil, nil)
	ctx := context.Background()

	r.write(t, "a.txt", "v1")
	r.write(t, "sub/b.txt", "keep")
	c1, err := r.mgr.Commit(ctx, r.root, "v1")
	require.NoError(t, err)

	r.write(t, "a.txt", "v2")
	r.write(t, "extra.txt", "new file")
	require.NoError(t, os.RemoveAll(filepath.Join(r.root, "sub")))
	c2, err := r.mgr.Commit(ctx, r.root, "v2")
	require.NoError(t, err)

	require.NoError(t, r.mgr.Checkout(ctx, r.root, c1))
	assert.Equal(t, "v1", r.read(t, "a.txt"))
	assert.Equal(t, "keep", r.read(t, "sub/b.txt"))
	assert.NoFileExists(t, filepath.Join(r.root, "extra.txt"))

	head, err := r.heads.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, c1, head)

	// 对象库和 HEAD 文件都还在
	_, err = r.mgr.GetCommit(ctx, c2)
	require.NoError(t, err)

	require.NoError(t, r.mgr.Checkout(ctx, r.root, c2))
	assert.Equal(t, "v2", r.read(t, "a.txt"))
	assert.NoDirExists(t, filepath.Join(r.root, "sub"))
}

func TestCommit_IndexesIntoMetaDB(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	metaDB := meta.NewWithConn(conn)
	require.NoError(t, metaDB.AutoMigrate(&meta.Ref{}, &meta.CommitModel{}))
	index := meta.NewRepository(metaDB)

	r := newRepo(t, nil, index)
	r.heads = refs.NewDBStore(index)
	r.mgr.heads = r.heads
	ctx := context.Background()

	r.write(t, "a.txt", "hi")
	c1, err := r.mgr.Commit(ctx, r.root, "indexed")
	require.NoError(t, err)
	c2, err := r.mgr.Commit(ctx, r.root, "again")
	require.NoError(t, err)

	model, err := index.GetCommit(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, "again", model.Message)
	parents, err := model.ParentHashes()
	require.NoError(t, err)
	assert.Equal(t, []types.Hash{c1}, parents)

	head, err := r.heads.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, c2, head)
}
