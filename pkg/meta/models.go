package meta

import (
	"time"

	"gorm.io/datatypes"
)

// Ref 存储引用指针，目前只有 "HEAD"
type Ref struct {
	// Name 是主键，例如 "HEAD"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	// CommitHash 指向当前的 Commit ID
	CommitHash string `gorm:"type:char(64);not null"`

	// Version 用于乐观锁并发控制 (CAS)
	// 每次更新时 +1，防止并发覆盖
	Version int64 `gorm:"default:1"`

	UpdatedAt time.Time
}

// CommitModel 是 core.Commit 在关系型数据库中的投影 (索引)
// 用于快速列出历史 (sv log)，不需要逐个解析 commit 对象
// 注意：为了避免跟 core.Commit 混淆，我们叫它 CommitModel
type CommitModel struct {
	// Hash 是主键 (对象 ID)
	Hash string `gorm:"primaryKey;type:char(64)"`

	// 树结构指针
	TreeHash string `gorm:"type:char(64);not null"`

	// Parents: JSON 数组 ["hash1"]
	// 目前最多一个父节点，用数组存是为了以后的 merge commit 不用改表
	Parents datatypes.JSON

	// Message 是去掉 "message " 标记后的提交说明
	Message string `gorm:"type:text"`

	// CreatedAt 是入库时间，同时作为 ListCommits 的排序键
	CreatedAt time.Time `gorm:"index"`
}

// TableName 强制指定表名
func (CommitModel) TableName() string {
	return "commits"
}
