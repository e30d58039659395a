// Package command 编解码以聊天消息形式传递的群通话控制命令
// 命令就是一句普通文本，接收端按固定短语做子串匹配
package command

import "kama_call_ring/internal/model"

// Command 群通话控制命令
type Command int

const (
	None Command = iota
	InviteAll
	InviteUser
	Exclude
	Unexclude
	RefuseInvite
)

// 命令短语，必须与各端保持一致
const (
	PhraseInviteAll    = "invited all to the video chat"
	PhraseInviteUser   = "invited you to the video chat"
	PhraseExclude      = "will not invite you to the video chat"
	PhraseUnexclude    = "re-invited you to the video chat"
	PhraseRefuseInvite = "refused to join the video chat"
)

// matchOrder 解码时的匹配顺序，先匹配到的命令生效
// Unexclude 的短语包含 InviteUser 的短语，因此必须排在前面
var matchOrder = []Command{InviteAll, Unexclude, InviteUser, Exclude, RefuseInvite}

// Phrase 命令对应的固定短语
func (c Command) Phrase() string {
	switch c {
	case InviteAll:
		return PhraseInviteAll
	case InviteUser:
		return PhraseInviteUser
	case Exclude:
		return PhraseExclude
	case Unexclude:
		return PhraseUnexclude
	case RefuseInvite:
		return PhraseRefuseInvite
	default:
		return ""
	}
}

// String 便于日志与指标标签
func (c Command) String() string {
	switch c {
	case InviteAll:
		return "invite_all"
	case InviteUser:
		return "invite_user"
	case Exclude:
		return "exclude"
	case Unexclude:
		return "unexclude"
	case RefuseInvite:
		return "refuse_invite"
	default:
		return "none"
	}
}

// NeedsTarget InviteUser/Exclude/Unexclude 需要指定目标用户
func (c Command) NeedsTarget() bool {
	return c == InviteUser || c == Exclude || c == Unexclude
}

// EntityMentionName 按用户 ID 提及，用于没有公开用户名的目标
const EntityMentionName = "mention_name"

// Entity 消息中的实体标注，Offset/Length 以 UTF-16 码元计
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	UserID int64  `json:"user_id,omitempty"`
}

// Message 入站聊天消息
type Message struct {
	ID         int64          `json:"message_id"`
	ChatID     int64          `json:"chat_id"`
	ChatKind   model.ChatKind `json:"chat_kind"`
	PeerUserID int64          `json:"peer_user_id"` // 私聊对端，群消息为 0
	SenderID   int64          `json:"sender_id"`
	Text       string         `json:"text"`
	Entities   []Entity       `json:"entities,omitempty"`
	Push       bool           `json:"push,omitempty"` // 经推送通道送达的副本
}

// Chat 消息所属的会话
func (m *Message) Chat() model.ChatRef {
	return model.ChatRef{ID: m.ChatID, Kind: m.ChatKind}
}

// Target 命令的目标用户
type Target struct {
	UserID    int64
	FirstName string
	UserName  string
}

// TargetFromUser 从本地用户资料构造目标
func TargetFromUser(u model.UserInfo) Target {
	return Target{UserID: u.UserID, FirstName: u.FirstName, UserName: u.UserName}
}

// Identity 本地账号在编解码时需要的身份信息
type Identity struct {
	UserID      int64
	UserName    string
	FirstName   string
	DisplayName string
}

// Self 本地用户作为目标
func (i Identity) Self() Target {
	return Target{UserID: i.UserID, FirstName: i.FirstName, UserName: i.UserName}
}
