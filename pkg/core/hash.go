package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"snapvault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// envelope 是对象在存储层的统一格式
// kind 参与哈希计算，同时用于读取时的类型校验
type envelope struct {
	Type ObjectType `cbor:"t"`
	Data []byte     `cbor:"d"`
}

// 定义符合 DAG-CBOR 规范的编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序 (Canonical)
	// 保证相同的对象生成唯一的 Hash
	Sort: cbor.SortCanonical,

	// 2. 禁止不定长编码 (Indefinite Length)
	IndefLength: cbor.IndefLengthForbidden,

	// 3. nil 和空切片编码成同一个值，否则空文件会出现两个 Hash
	NilContainers: cbor.NilContainerAsEmpty,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 定义符合 DAG-CBOR 规范的解码选项
var decOptions = cbor.DecOptions{
	// --- 安全性配置 (防 DoS 攻击) ---
	MaxArrayElements: 10000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  16,

	// --- 规范性配置 ---
	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
}

var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的 Hash 和封装后的数据
// Hash = SHA-256(CBOR{t: kind, d: payload})
func CalculateHash(kind ObjectType, payload []byte) (types.Hash, []byte, error) {
	if !kind.Valid() {
		return "", nil, fmt.Errorf("unknown object type: %q", kind)
	}
	data, err := em.Marshal(envelope{Type: kind, Data: payload})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return HashBytes(data), data, nil
}

// HashBytes 计算封装数据的 Hash (用于读取时的完整性校验)
func HashBytes(data []byte) types.Hash {
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// DecodeObject 拆开封装，返回对象类型和原始内容
func DecodeObject(data []byte) (ObjectType, []byte, error) {
	var env envelope
	if err := dm.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("failed to decode object: %w", err)
	}
	if !env.Type.Valid() {
		return "", nil, fmt.Errorf("unknown object type: %q", env.Type)
	}
	if env.Data == nil {
		env.Data = []byte{}
	}
	return env.Type, env.Data, nil
}
