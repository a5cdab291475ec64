package core

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"snapvault/pkg/types"
)

var ErrMalformedTree = errors.New("malformed tree object")

type EntryType string

const (
	EntryBlob EntryType = "blob"
	EntryTree EntryType = "tree"
)

// TreeEntry 对应 tree 对象中的一行: "{type} {hash} {name}\n"
type TreeEntry struct {
	Type EntryType
	Hash types.Hash
	Name string
}

// Tree 是一个目录快照，条目顺序即写入顺序 (不做排序)
type Tree struct {
	sealed
	Entries []TreeEntry
}

// NewTree 校验并序列化条目，计算 Hash
func NewTree(entries []TreeEntry) (*Tree, error) {
	var sb strings.Builder
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		sb.WriteString(string(e.Type))
		sb.WriteByte(' ')
		sb.WriteString(string(e.Hash))
		sb.WriteByte(' ')
		sb.WriteString(e.Name)
		sb.WriteByte('\n')
	}

	s, err := seal(TypeTree, []byte(sb.String()))
	if err != nil {
		return nil, err
	}
	return &Tree{sealed: s, Entries: entries}, nil
}

// ParseTree 解析 tree 对象的文本内容
// 对名字的检查是防御性的: 恶意构造的 tree 不能把文件写到工作区外面
func ParseTree(payload []byte) (*Tree, error) {
	var entries []TreeEntry

	text := strings.TrimSuffix(string(payload), "\n")
	if text != "" {
		for _, line := range strings.Split(text, "\n") {
			parts := strings.SplitN(line, " ", 3)
			if len(parts) != 3 {
				return nil, fmt.Errorf("%w: bad entry line %q", ErrMalformedTree, line)
			}
			e := TreeEntry{
				Type: EntryType(parts[0]),
				Hash: types.Hash(parts[1]),
				Name: parts[2],
			}
			if err := validateEntry(e); err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}

	s, err := seal(TypeTree, payload)
	if err != nil {
		return nil, err
	}
	return &Tree{sealed: s, Entries: entries}, nil
}

func validateEntry(e TreeEntry) error {
	if e.Type != EntryBlob && e.Type != EntryTree {
		return fmt.Errorf("%w: unknown tree entry %q", ErrMalformedTree, e.Type)
	}
	if e.Hash.IsZero() || strings.ContainsAny(string(e.Hash), " \n") {
		return fmt.Errorf("%w: bad hash for entry %q", ErrMalformedTree, e.Name)
	}
	return ValidateName(e.Name)
}

// ValidateName 检查单个路径段是否可以出现在 tree 里
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: invalid entry name %q", ErrMalformedTree, name)
	case strings.ContainsRune(name, '/'), strings.ContainsRune(name, os.PathSeparator):
		return fmt.Errorf("%w: entry name %q contains a path separator", ErrMalformedTree, name)
	case strings.ContainsRune(name, '\n'):
		return fmt.Errorf("%w: entry name %q contains a newline", ErrMalformedTree, name)
	}
	return nil
}
