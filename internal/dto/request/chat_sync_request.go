package request

import (
	"time"

	"kama_call_ring/internal/model"
)

// ParticipantItem 会话成员及其资料
type ParticipantItem struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Role      string `json:"role" binding:"omitempty,oneof=member admin creator"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	UserName  string `json:"user_name"`
}

// SyncChatRequest UI 推送的会话信息
type SyncChatRequest struct {
	ChatRequest
	Title         string            `json:"title"`
	HasActiveCall bool              `json:"has_active_call"`
	AdminIDs      []int64           `json:"admin_ids"`
	Participants  []ParticipantItem `json:"participants" binding:"dive"`
}

// ToModel 拆分为会话信息与用户资料
func (r SyncChatRequest) ToModel() (*model.FullChat, []model.UserInfo) {
	chat := r.Ref()
	full := &model.FullChat{
		Info: model.ChatInfo{
			ChatID:        chat.ID,
			Kind:          chat.Kind,
			Title:         r.Title,
			HasActiveCall: r.HasActiveCall,
			SyncedAt:      time.Now(),
		},
		Participants: make([]model.ChatParticipant, 0, len(r.Participants)),
	}
	var users []model.UserInfo
	for _, p := range r.Participants {
		full.Participants = append(full.Participants, model.ChatParticipant{
			ChatID: chat.ID,
			UserID: p.UserID,
			Role:   model.ParseRole(p.Role),
		})
		if p.FirstName != "" || p.UserName != "" {
			users = append(users, model.UserInfo{UserID: p.UserID, FirstName: p.FirstName, LastName: p.LastName, UserName: p.UserName})
		}
	}
	return full, users
}

// ActiveCallRequest 更新会话是否有进行中的群通话
type ActiveCallRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
	Active *bool `json:"active" binding:"required"`
}
