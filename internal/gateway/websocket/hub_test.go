package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/ringing"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endedCounter struct{ n atomic.Int32 }

func (e *endedCounter) OnSessionEnded() { e.n.Add(1) }

func startHub(t *testing.T) (*Hub, *gws.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", hub.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func readEvent(t *testing.T, conn *gws.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestStartWithoutClientFails(t *testing.T) {
	hub := NewHub()
	err := hub.Start(context.Background(), ringing.StartRequest{ChatID: 42})
	assert.Error(t, err)
	assert.False(t, hub.Active())
}

func TestRingLifecycleEvents(t *testing.T) {
	hub, conn := startHub(t)
	ctx := context.Background()

	require.NoError(t, hub.Start(ctx, ringing.StartRequest{Direction: ringing.DirectionIncoming, ChatID: 42, SenderID: 7, GroupRing: true}))
	assert.True(t, hub.Active())
	e := readEvent(t, conn)
	assert.Equal(t, EventRingStart, e.Type)
	require.NotNil(t, e.Ring)
	assert.True(t, e.Ring.GroupRing)
	assert.Equal(t, int64(7), e.UserID)

	require.NoError(t, hub.SuppressOnline(ctx, 42))
	assert.Equal(t, EventPresenceSuppressed, readEvent(t, conn).Type)

	hub.Refused(ctx, model.ChatRef{ID: 42}, 9)
	e = readEvent(t, conn)
	assert.Equal(t, EventRefuse, e.Type)
	assert.Equal(t, int64(9), e.UserID)

	// 其他会话的结束不影响当前会话
	require.NoError(t, hub.EndRinging(ctx, 43))
	assert.True(t, hub.Active())
	assert.Equal(t, EventRingEnd, readEvent(t, conn).Type)

	require.NoError(t, hub.EndRinging(ctx, 42))
	assert.False(t, hub.Active())
}

func TestReportsUpdateState(t *testing.T) {
	hub, conn := startHub(t)
	ended := &endedCounter{}
	hub.SetSessionListener(ended)

	assert.True(t, hub.TelephonyIdle())
	assert.False(t, hub.Foreground())

	require.NoError(t, conn.WriteJSON(Report{Type: ReportPlatformState, State: &PlatformState{
		TelephonyIdle: false, NotificationsEnabled: true, Foreground: true, AppRunning: true,
	}}))
	require.Eventually(t, func() bool { return hub.Foreground() && hub.AppRunning() && !hub.TelephonyIdle() },
		time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Start(context.Background(), ringing.StartRequest{ChatID: 42}))
	require.NoError(t, conn.WriteJSON(Report{Type: ReportSessionEnded, ChatID: 42}))
	require.Eventually(t, func() bool { return ended.n.Load() == 1 && !hub.Active() }, time.Second, 5*time.Millisecond)

	// 最后一个连接断开后视为应用不在运行
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 && !hub.AppRunning() && !hub.Foreground() },
		time.Second, 5*time.Millisecond)
}

func TestLastDisconnectEndsRingingSession(t *testing.T) {
	hub, conn := startHub(t)
	ended := &endedCounter{}
	hub.SetSessionListener(ended)

	require.NoError(t, hub.Start(context.Background(), ringing.StartRequest{ChatID: 42}))
	assert.Equal(t, EventRingStart, readEvent(t, conn).Type)
	require.True(t, hub.Active())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 && !hub.Active() && ended.n.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestDisconnectWithoutRingLeavesListenerAlone(t *testing.T) {
	hub, conn := startHub(t)
	ended := &endedCounter{}
	hub.SetSessionListener(ended)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, ended.n.Load())
}
