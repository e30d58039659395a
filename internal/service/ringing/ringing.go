// Package ringing 决定是否在本地发起群通话响铃，同一时间最多响一次
package ringing

import (
	"context"
	"strconv"
	"sync"
	"time"

	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/model"

	"go.uber.org/zap"
)

// State 响铃状态
type State int

const (
	Idle State = iota
	Evaluating
	Ringing
	Suppressed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Evaluating:
		return "evaluating"
	case Ringing:
		return "ringing"
	case Suppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// DirectionIncoming 呼入
const DirectionIncoming = "incoming"

// Platform 宿主平台状态
type Platform interface {
	TelephonyIdle() bool
	NotificationsEnabled() bool
	Foreground() bool
}

// StartRequest 请求通话会话开始响铃
type StartRequest struct {
	Direction             string `json:"direction"`
	ChatID                int64  `json:"chat_id"`
	ChatKind              string `json:"chat_kind"`
	SenderID              int64  `json:"sender_id"`
	AccountID             int64  `json:"account_id"`
	GroupRing             bool   `json:"group_ring"`
	NotificationsDisabled bool   `json:"notifications_disabled"`
}

// CallSession 通话会话
type CallSession interface {
	// Active 本地已经存在响铃或通话
	Active() bool
	Start(ctx context.Context, req StartRequest) error
	EndRinging(ctx context.Context, chatID int64) error
}

// PresenceSuppressor 后台响铃期间不广播本地用户的在线状态
type PresenceSuppressor interface {
	SuppressOnline(ctx context.Context, chatID int64) error
}

// CallState 本地已知的会话是否有进行中的群通话
type CallState interface {
	KnownActiveCall(ctx context.Context, chatID int64) (known, active bool)
}

// Decision 一次 MaybeRing 的结果
type Decision struct {
	Rang   bool   `json:"rang"`
	Reason string `json:"reason,omitempty"`
}

// Options 运行参数
type Options struct {
	AccountID      int64
	HangupCooldown time.Duration
}

// Coordinator 响铃协调器
type Coordinator struct {
	cache     myredis.CacheService
	platform  Platform
	session   CallSession
	presence  PresenceSuppressor
	callState CallState
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time

	mu          sync.Mutex
	state       State
	ringingChat int64
}

// NewCoordinator 构造函数，callState 可为 nil
func NewCoordinator(
	cache myredis.CacheService,
	platform Platform,
	session CallSession,
	presence PresenceSuppressor,
	callState CallState,
	m *metrics.Metrics,
	opts Options,
) *Coordinator {
	return &Coordinator{
		cache:     cache,
		platform:  platform,
		session:   session,
		presence:  presence,
		callState: callState,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// MaybeRing 依次检查抑制条件，都不满足时请求通话会话开始响铃
// 整个判断与启动在锁内完成，重复的命令不会响两次
func (c *Coordinator) MaybeRing(ctx context.Context, chat model.ChatRef, senderID int64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Ringing || c.state == Evaluating || c.session.Active() {
		return c.suppress(chat.ID, metrics.ReasonSessionActive)
	}
	c.state = Evaluating

	if c.callState != nil {
		if known, active := c.callState.KnownActiveCall(ctx, chat.ID); known && !active {
			return c.suppress(chat.ID, metrics.ReasonNoActiveCall)
		}
	}
	if !c.platform.TelephonyIdle() {
		return c.suppress(chat.ID, metrics.ReasonTelephonyBusy)
	}
	if c.inHangupCooldown(ctx) {
		return c.suppress(chat.ID, metrics.ReasonHangupCooldown)
	}
	notificationsEnabled := c.platform.NotificationsEnabled()
	foreground := c.platform.Foreground()
	// 前台时即使没有通知权限也照常响铃
	if !notificationsEnabled && !foreground {
		return c.suppress(chat.ID, metrics.ReasonNotifyWithheld)
	}

	req := StartRequest{
		Direction:             DirectionIncoming,
		ChatID:                chat.ID,
		ChatKind:              chat.Kind.String(),
		SenderID:              senderID,
		AccountID:             c.opts.AccountID,
		GroupRing:             true,
		NotificationsDisabled: !notificationsEnabled,
	}
	if err := c.session.Start(ctx, req); err != nil {
		zap.L().Error("启动响铃失败", zap.Int64("chat_id", chat.ID), zap.Error(err))
		c.state = Idle
		return Decision{Reason: metrics.ReasonStartFailed}
	}
	c.state = Ringing
	c.ringingChat = chat.ID
	c.metrics.RingStarted()
	zap.L().Info("群通话响铃", zap.Int64("chat_id", chat.ID), zap.Int64("sender_id", senderID), zap.Bool("foreground", foreground))

	if !foreground {
		if err := c.presence.SuppressOnline(ctx, chat.ID); err != nil {
			zap.L().Warn("抑制在线状态广播失败", zap.Int64("chat_id", chat.ID), zap.Error(err))
		}
	}
	return Decision{Rang: true}
}

// suppress 调用方需持有锁
func (c *Coordinator) suppress(chatID int64, reason string) Decision {
	if c.state == Evaluating {
		c.state = Suppressed
	}
	c.metrics.RingSuppressed(reason)
	zap.L().Debug("响铃被抑制", zap.Int64("chat_id", chatID), zap.String("reason", reason))
	return Decision{Reason: reason}
}

func (c *Coordinator) inHangupCooldown(ctx context.Context) bool {
	last, ok := c.LastHangup(ctx)
	if !ok {
		return false
	}
	return c.now().Sub(last) < c.opts.HangupCooldown
}

// LastHangup 最近一次主动挂断的时间
func (c *Coordinator) LastHangup(ctx context.Context) (time.Time, bool) {
	v, err := c.cache.Get(ctx, myredis.LastHangupKey(c.opts.AccountID))
	if err != nil {
		zap.L().Error("读取挂断时间失败", zap.Error(err))
		return time.Time{}, false
	}
	if v == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		zap.L().Warn("挂断时间格式错误", zap.String("value", v))
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// MarkHangup 用户主动挂断：记录时间并结束当前响铃
func (c *Coordinator) MarkHangup(ctx context.Context) error {
	if err := c.cache.Set(ctx, myredis.LastHangupKey(c.opts.AccountID), strconv.FormatInt(c.now().UnixMilli(), 10), 0); err != nil {
		return err
	}
	c.mu.Lock()
	chatID, ringing := c.ringingChat, c.state == Ringing
	c.state = Idle
	c.ringingChat = 0
	c.mu.Unlock()
	if ringing {
		return c.session.EndRinging(ctx, chatID)
	}
	return nil
}

// EndRinging 结束指定会话的响铃，没有在响时返回 false
func (c *Coordinator) EndRinging(ctx context.Context, chatID int64) (bool, error) {
	c.mu.Lock()
	if c.state != Ringing || c.ringingChat != chatID {
		c.mu.Unlock()
		return false, nil
	}
	c.state = Idle
	c.ringingChat = 0
	c.mu.Unlock()
	return true, c.session.EndRinging(ctx, chatID)
}

// OnSessionEnded 通话会话结束（接听后挂断、拒绝或超时）
func (c *Coordinator) OnSessionEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.ringingChat = 0
}

// State 当前状态与正在响铃的会话
func (c *Coordinator) State() (State, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.ringingChat
}
