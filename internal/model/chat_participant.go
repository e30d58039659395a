package model

import "gorm.io/gorm"

// ParticipantRole 群成员角色
type ParticipantRole int8

const (
	RoleMember  ParticipantRole = 1
	RoleAdmin   ParticipantRole = 2
	RoleCreator ParticipantRole = 3
)

// CanManageCalls 群主和管理员可以发起、管理群通话
func (r ParticipantRole) CanManageCalls() bool {
	return r == RoleAdmin || r == RoleCreator
}

// ChatParticipant 普通群的成员列表
type ChatParticipant struct {
	gorm.Model
	ChatID int64           `gorm:"column:chat_id;index;not null;comment:会话ID"`
	UserID int64           `gorm:"column:user_id;index;not null;comment:用户ID"`
	Role   ParticipantRole `gorm:"column:role;default:1;comment:1普通成员 2管理员 3群主"`
}

// TableName 指定表名
func (ChatParticipant) TableName() string {
	return "chat_participant"
}

// ChannelAdmin 频道型群的管理员索引
type ChannelAdmin struct {
	gorm.Model
	ChatID int64 `gorm:"column:chat_id;index;not null;comment:会话ID"`
	UserID int64 `gorm:"column:user_id;not null;comment:管理员用户ID"`
}

// TableName 指定表名
func (ChannelAdmin) TableName() string {
	return "channel_admin"
}

// ParseRole 解析后台返回的角色字符串
func ParseRole(s string) ParticipantRole {
	switch s {
	case "creator":
		return RoleCreator
	case "admin":
		return RoleAdmin
	default:
		return RoleMember
	}
}

// String 对外展示
func (r ParticipantRole) String() string {
	switch r {
	case RoleCreator:
		return "creator"
	case RoleAdmin:
		return "admin"
	default:
		return "member"
	}
}
