package request

import "kama_call_ring/internal/model"

// ChatRequest 会话标识
type ChatRequest struct {
	ChatID   int64  `json:"chat_id" binding:"required"`
	ChatKind string `json:"chat_kind" binding:"omitempty,chat_kind"`
}

// Ref 转成会话引用
func (r ChatRequest) Ref() model.ChatRef {
	return model.ChatRef{ID: r.ChatID, Kind: model.ParseChatKind(r.ChatKind)}
}

// StartCallRequest 发起通话，管理员与参与者为空时使用本地会话信息
type StartCallRequest struct {
	ChatRequest
	AdminIDs       []int64 `json:"admin_ids"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

// CallUserRequest 呼叫单个用户
type CallUserRequest struct {
	ChatRequest
	UserID int64 `json:"user_id" binding:"required"`
}

// CallAllRequest 呼叫全部参与者
type CallAllRequest struct {
	ChatRequest
	ParticipantIDs []int64 `json:"participant_ids"`
}

// ExcludeRequest 排除用户
type ExcludeRequest struct {
	ChatRequest
	UserIDs []int64 `json:"user_ids" binding:"required,min=1"`
}

// UnexcludeRequest 取消排除
type UnexcludeRequest struct {
	ChatRequest
	UserID int64 `json:"user_id" binding:"required"`
}

// ChatQuery 查询参数中的会话 ID
type ChatQuery struct {
	ChatID int64 `form:"chat_id" binding:"required"`
}
