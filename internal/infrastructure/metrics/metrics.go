// Package metrics 协议处理过程的 Prometheus 指标
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "call_ring"

// 抑制响铃的原因，与 ringing 包的判断顺序一致
const (
	ReasonSessionActive  = "session_active"
	ReasonNoActiveCall   = "no_active_call"
	ReasonTelephonyBusy  = "telephony_busy"
	ReasonHangupCooldown = "hangup_cooldown"
	ReasonNotifyWithheld = "notifications_withheld"
	ReasonStartFailed    = "start_failed"
)

// 命令消息生命周期事件
const (
	EventSent       = "sent"
	EventSendFailed = "send_failed"
	EventDeleted    = "deleted"
	EventAckTimeout = "ack_timeout"
)

// Metrics 所有指标的集合
// 方法对 nil 接收者安全，未启用指标的组件可以直接传 nil
type Metrics struct {
	registry *prometheus.Registry

	commandsDecoded *prometheus.CounterVec
	ringsStarted    prometheus.Counter
	ringsSuppressed *prometheus.CounterVec
	permissions     *prometheus.CounterVec
	commandMessages *prometheus.CounterVec
}

// New 在给定 Registry 上注册全部指标
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		commandsDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_decoded_total",
			Help:      "Number of command messages decoded, by command",
		}, []string{"command"}),
		ringsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rings_started_total",
			Help:      "Number of local group rings started",
		}),
		ringsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rings_suppressed_total",
			Help:      "Number of ring requests suppressed, by reason",
		}, []string{"reason"}),
		permissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_resolutions_total",
			Help:      "Number of permission resolutions, by tier and result",
		}, []string{"tier", "result"}),
		commandMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_messages_total",
			Help:      "Outbound command message lifecycle events",
		}, []string{"event"}),
	}
}

func (m *Metrics) CommandDecoded(command string) {
	if m == nil {
		return
	}
	m.commandsDecoded.WithLabelValues(command).Inc()
}

func (m *Metrics) RingStarted() {
	if m == nil {
		return
	}
	m.ringsStarted.Inc()
}

func (m *Metrics) RingSuppressed(reason string) {
	if m == nil {
		return
	}
	m.ringsSuppressed.WithLabelValues(reason).Inc()
}

// PermissionResolved tier 为命中的层级，全部落空时为 "none"
func (m *Metrics) PermissionResolved(tier string, authorized bool) {
	if m == nil {
		return
	}
	result := "denied"
	if authorized {
		result = "granted"
	}
	m.permissions.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) CommandMessage(event string) {
	if m == nil {
		return
	}
	m.commandMessages.WithLabelValues(event).Inc()
}

// ObservePending 尚未收到确认的命令消息数
func (m *Metrics) ObservePending(pending func() int) {
	m.gaugeFunc("command_messages_pending", "Outbound command messages waiting for a server ack", pending)
}

// ObserveLoopbackVisible channel 模式下尚未删除的命令消息数
func (m *Metrics) ObserveLoopbackVisible(visible func() int) {
	m.gaugeFunc("loopback_messages_visible", "Command messages still visible on the in-process loopback", visible)
}

func (m *Metrics) gaugeFunc(name, help string, fn func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
