package storage

import (
	"context"
	"fmt"
	"io"

	"snapvault/pkg/core"
	"snapvault/pkg/types"
)

// ObjectDB 在 Store 之上提供按 kind 读写的接口
// 写入: 封装 + 计算 Hash；读取: 完整性校验 + 类型校验
type ObjectDB struct {
	store Store
}

func NewObjectDB(store Store) *ObjectDB {
	return &ObjectDB{store: store}
}

// Store 返回底层存储
func (db *ObjectDB) Store() Store { return db.store }

// Put 存储任意字节，返回其 Hash
func (db *ObjectDB) Put(ctx context.Context, kind core.ObjectType, data []byte) (types.Hash, error) {
	obj, err := core.NewRaw(kind, data)
	if err != nil {
		return "", err
	}
	return db.PutObject(ctx, obj)
}

// PutObject 存储一个已经封装好的对象
func (db *ObjectDB) PutObject(ctx context.Context, obj core.Object) (types.Hash, error) {
	if err := db.store.Put(ctx, obj); err != nil {
		return "", fmt.Errorf("failed to store %s %s: %w", obj.Type(), obj.ID().Short(), err)
	}
	return obj.ID(), nil
}

// Get 读取对象内容，并断言它的类型是 expected
func (db *ObjectDB) Get(ctx context.Context, hash types.Hash, expected core.ObjectType) ([]byte, error) {
	kind, data, err := db.Read(ctx, hash)
	if err != nil {
		return nil, err
	}
	if kind != expected {
		return nil, fmt.Errorf("%w: %s is a %s, expected %s", ErrTypeMismatch, hash.Short(), kind, expected)
	}
	return data, nil
}

// Read 读取对象，不限定类型
func (db *ObjectDB) Read(ctx context.Context, hash types.Hash) (core.ObjectType, []byte, error) {
	reader, err := db.store.Get(ctx, hash)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get object %s: %w", hash, err)
	}
	raw, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read object %s: %w", hash, err)
	}

	// 数据和地址必须对得上
	if got := core.HashBytes(raw); got != hash {
		return "", nil, fmt.Errorf("%w: %s hashes to %s", ErrCorruptObject, hash, got)
	}

	kind, data, err := core.DecodeObject(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrCorruptObject, hash, err)
	}
	return kind, data, nil
}

// Resolve 完整 Hash 直接返回，短哈希交给底层存储扩展
func (db *ObjectDB) Resolve(ctx context.Context, input string) (types.Hash, error) {
	p, err := NormalizePrefix(types.HashPrefix(input))
	if err != nil {
		return "", err
	}
	if h := types.Hash(p); h.IsValid() {
		return h, nil
	}
	return db.store.ExpandHash(ctx, types.HashPrefix(p))
}
