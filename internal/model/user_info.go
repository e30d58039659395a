// Package model 定义本地存储层的实体模型
// 本文件定义用户资料缓存，编码命令消息时用于选择 @handle 或名字提及
package model

import "gorm.io/gorm"

// UserInfo 用户资料
// 对应数据库 user_info 表
type UserInfo struct {
	gorm.Model

	// UserID 消息平台上的用户 ID
	UserID int64 `gorm:"column:user_id;uniqueIndex;not null;comment:用户ID"`

	// FirstName 名，无用户名时用作提及文本
	FirstName string `gorm:"column:first_name;type:varchar(64);not null;comment:名"`

	// LastName 姓
	LastName string `gorm:"column:last_name;type:varchar(64);comment:姓"`

	// UserName 公开用户名（不含 @），为空表示只能通过名字提及
	UserName string `gorm:"column:user_name;type:varchar(64);comment:公开用户名"`
}

// TableName 指定表名
func (UserInfo) TableName() string {
	return "user_info"
}
