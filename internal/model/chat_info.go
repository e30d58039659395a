package model

import (
	"time"

	"gorm.io/gorm"
)

// ChatKind 群类型
// basic 群成员随会话信息一起下发；channel 需要单独查询管理员
type ChatKind int8

const (
	ChatKindBasic   ChatKind = 1
	ChatKindChannel ChatKind = 2
)

// String 便于日志输出
func (k ChatKind) String() string {
	switch k {
	case ChatKindBasic:
		return "basic"
	case ChatKindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// ParseChatKind 解析外部传入的群类型字符串，未知值按 basic 处理
func ParseChatKind(s string) ChatKind {
	if s == "channel" {
		return ChatKindChannel
	}
	return ChatKindBasic
}

// ChatRef 标识一个群会话
type ChatRef struct {
	ID   int64
	Kind ChatKind
}

// ChatInfo 群会话的完整信息缓存（本地存储层）
type ChatInfo struct {
	gorm.Model
	ChatID        int64     `gorm:"column:chat_id;uniqueIndex;not null;comment:会话ID"`
	Kind          ChatKind  `gorm:"column:kind;not null;default:1;comment:1普通群 2频道型群"`
	Title         string    `gorm:"column:title;type:varchar(128);comment:群名称"`
	HasActiveCall bool      `gorm:"column:has_active_call;not null;default:false;comment:是否有进行中的群通话"`
	SyncedAt      time.Time `gorm:"column:synced_at;comment:最近一次从后台同步的时间"`
}

// TableName 指定表名
func (ChatInfo) TableName() string {
	return "chat_info"
}

// FullChat 会话完整信息：基本信息加成员列表
type FullChat struct {
	Info         ChatInfo
	Participants []ChatParticipant
}

// AdminIDs 成员中的群主与管理员
func (f *FullChat) AdminIDs() []int64 {
	ids := make([]int64, 0, len(f.Participants))
	for _, p := range f.Participants {
		if p.Role.CanManageCalls() {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// ParticipantIDs 全部成员
func (f *FullChat) ParticipantIDs() []int64 {
	ids := make([]int64, 0, len(f.Participants))
	for _, p := range f.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// MarshalText 对外 JSON 使用字符串形式
func (k ChatKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 接受 "basic"/"channel"
func (k *ChatKind) UnmarshalText(b []byte) error {
	*k = ParseChatKind(string(b))
	return nil
}
