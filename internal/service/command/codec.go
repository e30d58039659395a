package command

import (
	"strings"
	"unicode/utf16"

	"kama_call_ring/pkg/errorx"
)

// Decoded 解码结果
type Decoded struct {
	Command  Command
	SenderID int64
	// AddressedUserID 第一个按 ID 提及的用户，没有时为 0
	AddressedUserID int64
}

// Outbound 待发送的命令消息
type Outbound struct {
	Text     string
	Entities []Entity
}

// Decode 按固定顺序做子串匹配，无法识别的文本返回 false
func Decode(text string, entities []Entity, senderID int64) (Decoded, bool) {
	cmd := match(text)
	if cmd == None {
		return Decoded{}, false
	}
	d := Decoded{Command: cmd, SenderID: senderID}
	if len(entities) > 0 && entities[0].Type == EntityMentionName {
		d.AddressedUserID = entities[0].UserID
	}
	return d, true
}

// IsCommandMessage 判断文本是否为命令消息
func IsCommandMessage(text string) bool {
	return match(text) != None
}

func match(text string) Command {
	if text == "" {
		return None
	}
	for _, c := range matchOrder {
		if strings.Contains(text, c.Phrase()) {
			return c
		}
	}
	return None
}

// IsToMe 消息是否发给本地用户：私聊对端是自己、文本 @ 了自己的用户名、或有实体提及自己
func IsToMe(msg *Message, self Identity) bool {
	if msg.PeerUserID != 0 && msg.PeerUserID == self.UserID {
		return true
	}
	if self.UserName != "" && mentionsHandle(msg.Text, self.UserName) {
		return true
	}
	for _, e := range msg.Entities {
		if e.Type == EntityMentionName && e.UserID == self.UserID {
			return true
		}
	}
	return false
}

// mentionsHandle 文本中是否出现完整的 @handle，大小写不敏感
func mentionsHandle(text, handle string) bool {
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		j := i + 1
		for j < len(text) && isHandleByte(text[j]) {
			j++
		}
		if strings.EqualFold(text[i+1:j], handle) {
			return true
		}
		i = j - 1
	}
	return false
}

func isHandleByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Encode 组装单条命令消息
// InviteAll 为 "<我的名字> <短语>"；RefuseInvite 传入自己作为 target 时以名字提及自己，
// 便于接收端从第一个实体取出拒绝者；需要目标的命令有用户名时用 @handle，否则用名字加提及实体
func Encode(cmd Command, selfName string, target *Target) (Outbound, error) {
	switch cmd {
	case InviteAll:
		return Outbound{Text: selfName + " " + cmd.Phrase()}, nil
	case RefuseInvite:
		if target == nil || target.FirstName == "" {
			return Outbound{Text: selfName + " " + cmd.Phrase()}, nil
		}
		return Outbound{
			Text:     target.FirstName + " " + cmd.Phrase(),
			Entities: []Entity{mentionEntity(0, *target)},
		}, nil
	case InviteUser, Exclude, Unexclude:
		if target == nil {
			return Outbound{}, errorx.Newf(errorx.CodeInvalidParam, "command %s needs a target", cmd)
		}
		out := EncodeBatch(cmd, selfName, []Target{*target})
		if len(out) == 0 {
			return Outbound{}, errorx.Newf(errorx.CodeInvalidParam, "user %d has neither user name nor first name", target.UserID)
		}
		return out[0], nil
	default:
		return Outbound{}, errorx.Newf(errorx.CodeInvalidParam, "unknown command %d", int(cmd))
	}
}

// EncodeBatch 把同一条命令发给多个目标，按寻址方式最多拆成两条：
// 一条包含全部 @handle，一条包含全部名字及对应的提及实体
func EncodeBatch(cmd Command, selfName string, targets []Target) []Outbound {
	var handles []string
	var named []Target
	for _, t := range targets {
		switch {
		case t.UserName != "":
			handles = append(handles, "@"+t.UserName)
		case t.FirstName != "":
			named = append(named, t)
		}
	}

	suffix := " " + selfName + " " + cmd.Phrase()
	var out []Outbound
	if len(handles) > 0 {
		out = append(out, Outbound{Text: strings.Join(handles, " ") + suffix})
	}
	if len(named) > 0 {
		var sb strings.Builder
		entities := make([]Entity, 0, len(named))
		offset := 0
		for i, t := range named {
			if i > 0 {
				sb.WriteByte(' ')
				offset++
			}
			entities = append(entities, mentionEntity(offset, t))
			sb.WriteString(t.FirstName)
			offset += utf16Len(t.FirstName)
		}
		out = append(out, Outbound{Text: sb.String() + suffix, Entities: entities})
	}
	return out
}

func mentionEntity(offset int, t Target) Entity {
	return Entity{Type: EntityMentionName, Offset: offset, Length: utf16Len(t.FirstName), UserID: t.UserID}
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
