package respond

// CallingEntryRespond 一次呼叫
type CallingEntryRespond struct {
	UserID   int64 `json:"user_id"`
	CalledAt int64 `json:"called_at"` // 毫秒时间戳
}

// CallAllRespond 新进入呼叫集合的用户
type CallAllRespond struct {
	Added []int64 `json:"added"`
}

// ExclusionRespond 排除集合
type ExclusionRespond struct {
	ChatID  int64   `json:"chat_id"`
	UserIDs []int64 `json:"user_ids"`
}

// CallingRespond 呼叫集合
type CallingRespond struct {
	ChatID  int64                 `json:"chat_id"`
	Entries []CallingEntryRespond `json:"entries"`
}

// ClassifyMessageRespond 命令消息识别结果，不是命令时只有 is_command
type ClassifyMessageRespond struct {
	IsCommand       bool   `json:"is_command"`
	Command         string `json:"command,omitempty"`
	AddressedUserID int64  `json:"addressed_user_id,omitempty"`
}
