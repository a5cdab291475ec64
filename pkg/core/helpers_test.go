package core

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"snapvault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockHash 生成一个合法的 32 字节 Hex 字符串 (64字符长度)
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, tree, parent types.Hash, msg string, msgAndArgs ...any) *Commit {
	t.Helper()
	c, err := NewCommit(tree, parent, msg)
	require.NoError(t, err, msgAndArgs...)
	return c
}

func mustNewBlob(t *testing.T, data string) *Blob {
	t.Helper()
	b, err := NewBlob([]byte(data))
	require.NoError(t, err)
	return b
}
