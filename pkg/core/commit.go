package core

import (
	"errors"
	"fmt"
	"strings"

	"snapvault/pkg/types"
)

var (
	ErrMalformedCommit = errors.New("malformed commit object")
	ErrUnknownField    = errors.New("unknown field in commit")
)

// messagePrefix 是消息体第一行的固定标记
const messagePrefix = "message "

// Commit 是线性历史中的一个节点
// Parent 为空表示这是初始提交
type Commit struct {
	sealed

	Tree   types.Hash
	Parent types.Hash

	// Message 是空行之后的全部内容，原样保留 (包含 "message " 标记)
	Message string
}

// NewCommit 按固定格式序列化:
//
//	tree <id>
//	parent <id>      (可选)
//	<空行>
//	message <text>
func NewCommit(tree, parent types.Hash, text string) (*Commit, error) {
	if tree.IsZero() {
		return nil, fmt.Errorf("%w: missing tree", ErrMalformedCommit)
	}

	var sb strings.Builder
	sb.WriteString("tree " + tree.String() + "\n")
	if !parent.IsZero() {
		sb.WriteString("parent " + parent.String() + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(messagePrefix + text + "\n")

	s, err := seal(TypeCommit, []byte(sb.String()))
	if err != nil {
		return nil, err
	}
	return &Commit{
		sealed:  s,
		Tree:    tree,
		Parent:  parent,
		Message: messagePrefix + text,
	}, nil
}

// ParseCommit 解析 commit 对象
// 头部只允许 tree (必须且唯一) 和 parent (最多一个)，其他 key 一律视为损坏
func ParseCommit(payload []byte) (*Commit, error) {
	c := &Commit{}
	lines := strings.Split(strings.TrimSuffix(string(payload), "\n"), "\n")

	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}

		key, value, ok := strings.Cut(line, " ")
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: bad header line %q", ErrMalformedCommit, line)
		}

		switch key {
		case "tree":
			if !c.Tree.IsZero() {
				return nil, fmt.Errorf("%w: duplicate tree", ErrMalformedCommit)
			}
			c.Tree = types.Hash(value)
		case "parent":
			if !c.Parent.IsZero() {
				return nil, fmt.Errorf("%w: more than one parent", ErrMalformedCommit)
			}
			c.Parent = types.Hash(value)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}

	if c.Tree.IsZero() {
		return nil, fmt.Errorf("%w: missing tree", ErrMalformedCommit)
	}
	if i < len(lines) {
		c.Message = strings.Join(lines[i:], "\n")
	}

	s, err := seal(TypeCommit, payload)
	if err != nil {
		return nil, err
	}
	c.sealed = s
	return c, nil
}

func (c *Commit) HasParent() bool { return !c.Parent.IsZero() }

// Text 去掉 "message " 标记，用于展示
func (c *Commit) Text() string {
	return strings.TrimPrefix(c.Message, messagePrefix)
}
