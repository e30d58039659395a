package respond

// JoinRespond 加入已有通话的结果：started / ongoing / stale
type JoinRespond struct {
	Result string `json:"result"`
}

// StaleRespond 是否存在残留的已结束记录
type StaleRespond struct {
	Stale bool `json:"stale"`
}

// HoleRespond 通话时间段，毫秒时间戳，0 表示未设置
type HoleRespond struct {
	StartTime int64 `json:"start_time"`
	EndTime   int64 `json:"end_time"`
	Open      bool  `json:"open"`
}

// RingStatusRespond 响铃状态
type RingStatusRespond struct {
	State      string `json:"state"`
	ChatID     int64  `json:"chat_id,omitempty"`
	LastHangup int64  `json:"last_hangup,omitempty"`
}

// TokenRespond 签发的 Access Token
type TokenRespond struct {
	AccessToken string `json:"access_token"`
}
