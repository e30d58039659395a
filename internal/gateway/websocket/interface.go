// Package websocket UI 客户端的长连接网关
// 向 UI 推送响铃等事件，并接收 UI 上报的平台状态
package websocket

import "kama_call_ring/internal/service/ringing"

// 推送给 UI 的事件
const (
	EventRingStart          = "ring_start"
	EventRingEnd            = "ring_end"
	EventRefuse             = "refuse"
	EventPresenceSuppressed = "presence_online_suppressed"
)

// UI 上报的消息
const (
	ReportPlatformState = "platform_state"
	ReportSessionEnded  = "session_ended"
)

// Event 推送事件
type Event struct {
	Type   string                `json:"type"`
	ChatID int64                 `json:"chat_id,omitempty"`
	UserID int64                 `json:"user_id,omitempty"`
	Ring   *ringing.StartRequest `json:"ring,omitempty"`
}

// PlatformState 设备与应用状态
type PlatformState struct {
	TelephonyIdle        bool `json:"telephony_idle"`
	NotificationsEnabled bool `json:"notifications_enabled"`
	Foreground           bool `json:"foreground"`
	AppRunning           bool `json:"app_running"`
}

// Report UI 上报
type Report struct {
	Type   string         `json:"type"`
	ChatID int64          `json:"chat_id,omitempty"`
	State  *PlatformState `json:"state,omitempty"`
}

// SessionListener 通话会话结束的监听者
type SessionListener interface {
	OnSessionEnded()
}
