package disk

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"snapvault/pkg/core"
	"snapvault/pkg/storage"
	"snapvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 模拟一个简单的 Object 实现，用于测试
type mockObject struct {
	id   types.Hash
	data []byte
}

func (m mockObject) ID() types.Hash        { return m.id }
func (m mockObject) Bytes() []byte         { return m.data }
func (m mockObject) Payload() []byte       { return m.data }
func (m mockObject) Type() core.ObjectType { return core.TypeBlob }

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()

	obj := mockObject{
		id:   "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		data: []byte("hello world"),
	}

	// 2. 测试 Put
	err = store.Put(ctx, obj)
	assert.NoError(t, err)

	// 路径应该是 tmpDir/2c/f24dba...
	expectedPath := filepath.Join(tmpDir, "2c", "f24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	_, err = os.Stat(expectedPath)
	assert.NoError(t, err, "文件应该存在于 Sharding 目录中")

	// 3. 测试 Has
	exists, err := store.Has(ctx, obj.id)
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Has(ctx, "ffffffff")
	assert.NoError(t, err)
	assert.False(t, exists)

	// 4. 测试 Get
	reader, err := store.Get(ctx, obj.id)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello world"), content)

	// 5. 不存在的对象
	_, err = store.Get(ctx, "ffff000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_PutIsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	obj := mockObject{id: "abcd000000000000000000000000000000000000000000000000000000000000", data: []byte("v1")}
	require.NoError(t, store.Put(ctx, obj))

	// 同一个 Hash 第二次写入被跳过，内容保持不变
	obj.data = []byte("v2")
	require.NoError(t, store.Put(ctx, obj))

	reader, err := store.Get(ctx, obj.id)
	require.NoError(t, err)
	defer reader.Close()
	content, _ := io.ReadAll(reader)
	assert.Equal(t, []byte("v1"), content)

	// 不应该留下临时文件
	entries, err := os.ReadDir(filepath.Join(tmpDir, "ab"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDiskAdapter_Compression(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	compressed, err := NewAdapter(tmpDir, WithCompression(true))
	require.NoError(t, err)

	data := bytes.Repeat([]byte("snapshot "), 1000)
	obj := mockObject{id: "cafe000000000000000000000000000000000000000000000000000000000000", data: data}
	require.NoError(t, compressed.Put(ctx, obj))

	// 磁盘上是 zstd 数据
	raw, err := os.ReadFile(compressed.layout(obj.id))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, storage.ZstdMagic))
	assert.Less(t, len(raw), len(data))

	// 未开启压缩的适配器也能透明读取
	plain, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	reader, err := plain.Get(ctx, obj.id)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestDiskAdapter_ExpandHash(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	// 准备数据: 构造两个 Hash 前缀相似的对象
	objA := mockObject{id: "1111aaaa00000000000000000000000000000000000000000000000000000000", data: []byte("A")}
	objB := mockObject{id: "1111bbbb00000000000000000000000000000000000000000000000000000000", data: []byte("B")}
	objC := mockObject{id: "2222cccc00000000000000000000000000000000000000000000000000000000", data: []byte("C")}

	require.NoError(t, store.Put(ctx, objA))
	require.NoError(t, store.Put(ctx, objB))
	require.NoError(t, store.Put(ctx, objC))

	tests := []struct {
		name      string
		input     string
		wantHash  types.Hash
		wantErr   bool
		errString string
	}{
		{"Exact match", string(objC.id), objC.id, false, ""},
		{"Unique prefix (4 chars)", "2222", objC.id, false, ""},
		{"Unique prefix (long)", "2222cccc", objC.id, false, ""},
		{"Upper case", "2222CCCC", objC.id, false, ""},
		{"Ambiguous prefix", "1111", "", true, "ambiguous"},
		{"Not found", "ffff", "", true, "not found"},
		{"Too short", "123", "", true, "too short"},
		{"Non-hex escapes shard dir", "..ab", "", true, "hexadecimal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ExpandHash(ctx, types.HashPrefix(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errString != "" {
					assert.Contains(t, err.Error(), tt.errString)
				}
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantHash, got)
			}
		})
	}
}
