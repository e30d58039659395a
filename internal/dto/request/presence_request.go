package request

// TransitionRequest 参与者上下线
type TransitionRequest struct {
	ChatRequest
	UserID int64 `json:"user_id" binding:"required"`
	Online *bool `json:"online" binding:"required"`
}

// SessionRequest 开始/结束时间段
type SessionRequest struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

// LiveRequest 加入已有通话或重置记录，Live 为当前在线的参与者
type LiveRequest struct {
	ChatID int64   `json:"chat_id" binding:"required"`
	Live   []int64 `json:"live"`
}
