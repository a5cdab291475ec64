package refs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"snapvault/pkg/meta"
	"snapvault/pkg/types"
)

var ErrNoHead = errors.New("HEAD not found (clean repo)")

// HeadName 是 HEAD 在文件系统和数据库里的名字
const HeadName = "HEAD"

// HeadStore 管理唯一的可变引用 HEAD
type HeadStore interface {
	// GetHead 读取当前的 Commit Hash
	// 如果是新仓库（没提交过），返回 ErrNoHead
	GetHead(ctx context.Context) (types.Hash, error)
	// SetHead 无条件地把 HEAD 指向新的 Commit
	SetHead(ctx context.Context, id types.Hash) error
}

// FileStore 把 HEAD 存为元数据目录下的一个文本文件
type FileStore struct {
	metaPath string
}

// NewFileStore metaPath 是 .sv 目录
func NewFileStore(metaPath string) *FileStore {
	return &FileStore{metaPath: metaPath}
}

func (s *FileStore) headPath() string {
	return filepath.Join(s.metaPath, HeadName)
}

func (s *FileStore) GetHead(ctx context.Context) (types.Hash, error) {
	data, err := os.ReadFile(s.headPath())
	if os.IsNotExist(err) {
		return "", ErrNoHead
	}
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}

	// 清理换行符 (vim 编辑时可能会自动加 \n)
	head := strings.TrimSpace(string(data))
	if head == "" {
		return "", ErrNoHead
	}
	return types.Hash(head), nil
}

// SetHead 先写临时文件再 rename，读者不会看到写了一半的 HEAD
func (s *FileStore) SetHead(ctx context.Context, id types.Hash) error {
	if err := os.MkdirAll(s.metaPath, 0755); err != nil {
		return fmt.Errorf("failed to create meta dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.metaPath, "temp-HEAD-*")
	if err != nil {
		return fmt.Errorf("failed to create temp HEAD: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(id.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write HEAD: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.headPath()); err != nil {
		return fmt.Errorf("failed to update HEAD: %w", err)
	}
	return nil
}

// DBStore 把 HEAD 存为元数据库里的一行 Ref
// 单写者语义：SetHead 读出当前版本再做 CAS，冲突时直接报错
type DBStore struct {
	repo *meta.Repository
}

func NewDBStore(repo *meta.Repository) *DBStore {
	return &DBStore{repo: repo}
}

func (s *DBStore) GetHead(ctx context.Context) (types.Hash, error) {
	ref, err := s.repo.GetRef(ctx, HeadName)
	if errors.Is(err, meta.ErrRefNotFound) {
		return "", ErrNoHead
	}
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}
	return types.Hash(ref.CommitHash), nil
}

func (s *DBStore) SetHead(ctx context.Context, id types.Hash) error {
	var version int64
	ref, err := s.repo.GetRef(ctx, HeadName)
	switch {
	case errors.Is(err, meta.ErrRefNotFound):
		version = 0
	case err != nil:
		return fmt.Errorf("failed to read HEAD: %w", err)
	default:
		version = ref.Version
	}

	if err := s.repo.UpdateRef(ctx, HeadName, id, version); err != nil {
		return fmt.Errorf("failed to update HEAD: %w", err)
	}
	return nil
}
