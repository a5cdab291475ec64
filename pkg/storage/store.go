package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"snapvault/pkg/core"
	"snapvault/pkg/types"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAmbiguousHash  = errors.New("ambiguous hash prefix")
	ErrPrefixTooShort = errors.New("hash prefix too short")
	ErrInvalidPrefix  = errors.New("hash prefix must be hexadecimal")
	ErrTypeMismatch   = errors.New("object type mismatch")
	ErrCorruptObject  = errors.New("corrupt object")
)

// MinPrefixLen 短哈希的最小长度
const MinPrefixLen = 4

// ZstdMagic 是 zstd frame 的开头，CBOR 封装不可能以它开头
// 后端据此区分压缩和未压缩的对象，同一个仓库里两者可以混存
var ZstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// NormalizePrefix 把短哈希转成小写并校验长度和字符集
// 前缀会被拼进文件路径或对象 Key，非十六进制字符一律拒绝
func NormalizePrefix(short types.HashPrefix) (string, error) {
	p := strings.ToLower(string(short))
	if len(p) < MinPrefixLen {
		return "", fmt.Errorf("%w: %q", ErrPrefixTooShort, p)
	}
	for _, c := range p {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
		}
	}
	return p, nil
}

// Store defines the interface for a storage backend.
// Implementations can be local disk, cloud storage, or a cache in front of either.
type Store interface {
	// Put 将一个对象持久化，Hash 已经在 core.Object 里了
	// 已存在的对象直接跳过 (CAS 天然幂等)
	Put(ctx context.Context, obj core.Object) error

	// Get 根据 Hash 读取封装后的原始数据
	Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// ExpandHash 将短哈希扩展为完整 Hash
	ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error)
}
