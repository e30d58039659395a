// Package repository 定义本地存储层的数据访问接口
// 权限解析的"本地存储"一层和命令编码所需的用户资料都从这里读取
package repository

import (
	"kama_call_ring/internal/model"

	"gorm.io/gorm"
)

// ==================== Repository 接口定义 ====================

// ChatRepository 会话完整信息
type ChatRepository interface {
	// FindFullChat 读取会话信息及成员列表，会话不存在返回 CodeNotFound
	FindFullChat(chatID int64) (*model.FullChat, error)
	// SaveFullChat 覆盖写入会话信息与成员列表
	SaveFullChat(full *model.FullChat) error
	// SetActiveCall 更新会话是否存在进行中的群通话
	SetActiveCall(chatID int64, active bool) error
}

// ChannelAdminRepository 频道型群的管理员索引
type ChannelAdminRepository interface {
	// LoadAdminIDs 同步读取管理员 ID，无记录时返回空切片
	LoadAdminIDs(chatID int64) ([]int64, error)
	// ReplaceAdmins 整体替换管理员列表
	ReplaceAdmins(chatID int64, userIDs []int64) error
}

// UserRepository 用户资料
type UserRepository interface {
	// FindByIDs 批量查找，缺失的用户直接跳过
	FindByIDs(userIDs []int64) ([]model.UserInfo, error)
	// Save 按用户 ID 插入或更新
	Save(user *model.UserInfo) error
}

// ==================== Repositories 聚合 ====================

// Repositories 聚合所有 Repository 实例
type Repositories struct {
	db           *gorm.DB
	Chat         ChatRepository
	ChannelAdmin ChannelAdminRepository
	User         UserRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Chat:         NewChatRepository(db),
		ChannelAdmin: NewChannelAdminRepository(db),
		User:         NewUserRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// fn 返回错误时整个事务回滚
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
