package core

import "snapvault/pkg/types"

// ObjectType 定义了仓库中的对象类型
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"   // 文件原始内容
	TypeTree   ObjectType = "tree"   // 目录快照
	TypeCommit ObjectType = "commit" // 历史节点
)

// Valid 只接受已知的三种对象类型
func (t ObjectType) Valid() bool {
	switch t {
	case TypeBlob, TypeTree, TypeCommit:
		return true
	}
	return false
}

// Object 是所有对象的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值，由 (kind, payload) 唯一确定
	ID() types.Hash

	// Bytes 返回封装后的数据 (用于存储)
	Bytes() []byte

	// Payload 返回对象的原始内容 (文件字节 / tree 文本 / commit 文本)
	Payload() []byte
}

// sealed 缓存对象的 Hash 和封装结果，嵌入到具体对象中
type sealed struct {
	kind    ObjectType
	hash    types.Hash
	raw     []byte
	payload []byte
}

func seal(kind ObjectType, payload []byte) (sealed, error) {
	h, raw, err := CalculateHash(kind, payload)
	if err != nil {
		return sealed{}, err
	}
	return sealed{kind: kind, hash: h, raw: raw, payload: payload}, nil
}

func (s sealed) Type() ObjectType { return s.kind }
func (s sealed) ID() types.Hash   { return s.hash }
func (s sealed) Bytes() []byte    { return s.raw }
func (s sealed) Payload() []byte  { return s.payload }

// Raw 是没有结构的通用对象，用于按 kind 直接写入任意字节
type Raw struct {
	sealed
}

// NewRaw 封装任意 payload
func NewRaw(kind ObjectType, payload []byte) (*Raw, error) {
	s, err := seal(kind, payload)
	if err != nil {
		return nil, err
	}
	return &Raw{sealed: s}, nil
}
