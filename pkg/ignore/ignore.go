package ignore

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	// MetaDir 是仓库元数据目录
	MetaDir = ".sv"
	// LegacyMetaDir 同样视为元数据，避免把 Git 仓库的内部文件快照进来
	LegacyMetaDir = ".git"
	// FileName 是用户自定义忽略规则文件
	FileName = ".svignore"
)

// IsIgnored 判断路径是否属于系统自己的元数据
// 任意一段等于 .sv 或 .git 即为忽略，纯函数，不做 I/O
func IsIgnored(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == MetaDir || seg == LegacyMetaDir {
			return true
		}
	}
	return false
}

// Matcher 封装了忽略逻辑
// 元数据目录永远忽略；如果仓库根目录有 .svignore，再叠加用户规则
type Matcher struct {
	ignorer *gitignore.GitIgnore

	// protected 是落在工作区内的其他簿记路径 (对象库、元数据库)，斜杠分隔
	protected []string
}

// NewMatcher 初始化忽略匹配器
// rootPath: 仓库根目录（用于查找 .svignore 文件）
func NewMatcher(rootPath string) (*Matcher, error) {
	ignoreFilePath := filepath.Join(rootPath, FileName)

	if _, err := os.Stat(ignoreFilePath); err != nil {
		if os.IsNotExist(err) {
			// 没有 .svignore: 只剩元数据规则
			return &Matcher{}, nil
		}
		return nil, err
	}

	ignorer, err := gitignore.CompileIgnoreFile(ignoreFilePath)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定的路径是否应该被忽略
// path: 相对于仓库根目录的路径 (例如 "data/model.bin")
func (m *Matcher) Matches(path string) bool {
	if IsIgnored(path) {
		return true
	}
	if m == nil {
		return false
	}
	if m.isProtected(path) {
		return true
	}
	if m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}

// Protect 把相对 root 的路径加入保护列表，它自身和它下面的内容都视为忽略
// 空路径和 "." 会被跳过，调用方负责拒绝把整个工作区当成簿记目录
func (m *Matcher) Protect(paths ...string) {
	for _, p := range paths {
		p = strings.Trim(filepath.ToSlash(filepath.Clean(p)), "/")
		if p == "" || p == "." {
			continue
		}
		m.protected = append(m.protected, p)
	}
}

func (m *Matcher) isProtected(path string) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	for _, p := range m.protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
