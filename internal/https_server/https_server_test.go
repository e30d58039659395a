package https_server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kama_call_ring/internal/config"
	dao "kama_call_ring/internal/dao/mysql"
	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/gateway/websocket"
	"kama_call_ring/internal/handler"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/infrastructure/mq"
	"kama_call_ring/internal/service"
	"kama_call_ring/pkg/errorx"
	"kama_call_ring/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientKey = "ui-test-key"

type envelope struct {
	Code int             `json:"code"`
	Msg  any             `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	srv    *httptest.Server
	svc    *service.Services
	broker *mq.ChannelBroker
	hub    *websocket.Hub
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwt.Init("test-secret-with-at-least-32-chars", 60)
	require.NoError(t, handler.InitTrans("zh"))

	conf := &config.Config{}
	conf.AccountConfig = config.AccountConfig{AccountID: 1, UserID: 100, UserName: "ulysses", FirstName: "Ulysses"}
	conf.MysqlConfig = config.MysqlConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "ring.db")}
	conf.ApplyDefaults()
	conf.InviteAllDelaySeconds = 3600

	repos, err := dao.Init(&conf.MysqlConfig)
	require.NoError(t, err)
	cache, err := myredis.NewMemory(1, 16)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	hub := websocket.NewHub()
	broker := mq.NewChannelBroker(conf.UserID)

	svc := service.NewServices(service.Deps{
		Config:  conf,
		Repos:   repos,
		Cache:   cache,
		UI:      hub,
		Broker:  broker,
		Metrics: m,
	})
	ctx, cancel := context.WithCancel(context.Background())
	broker.Start(ctx, svc.Handlers())

	engine := Init(handler.NewHandlers(svc, clientKey, hub.ServeWS, m.Handler()), "test")
	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		hub.Close()
		_ = broker.Close()
		svc.Close()
		cache.Close()
	})

	ts := &testServer{srv: srv, svc: svc, broker: broker, hub: hub}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	ts.ok(t, http.MethodPost, "/api/v1/auth/token", map[string]any{"client_id": "ui-1", "client_key": clientKey}, &tok)
	require.NotEmpty(t, tok.AccessToken)
	ts.token = tok.AccessToken
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

// ok 断言业务成功并解析 data
func (ts *testServer) ok(t *testing.T, method, path string, body, out any) {
	t.Helper()
	status, env := ts.do(t, method, path, body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, errorx.CodeSuccess, env.Code, "msg: %v", env.Msg)
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func (ts *testServer) dialUI(t *testing.T) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(ts.wsURL()+"?token="+ts.token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return ts.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func readEvent(t *testing.T, conn *gws.Conn) websocket.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e websocket.Event
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func (ts *testServer) syncChat(t *testing.T) {
	t.Helper()
	ts.ok(t, http.MethodPost, "/api/v1/chat/sync", map[string]any{
		"chat_id":         42,
		"chat_kind":       "basic",
		"title":           "Weekly",
		"has_active_call": true,
		"participants": []map[string]any{
			{"user_id": 100, "role": "creator", "first_name": "Ulysses", "user_name": "ulysses"},
			{"user_id": 1, "role": "admin", "first_name": "Alice", "user_name": "alice"},
			{"user_id": 2, "role": "member", "first_name": "Bob", "user_name": "bob"},
			{"user_id": 3, "role": "member", "first_name": "Dan"},
		},
	}, nil)
}

func TestIssueToken(t *testing.T) {
	ts := newTestServer(t)

	ts.token = ""
	_, env := ts.do(t, http.MethodPost, "/api/v1/auth/token", map[string]any{"client_id": "ui-1", "client_key": "wrong"})
	assert.Equal(t, errorx.CodeUnauthorized, env.Code)

	status, env := ts.do(t, http.MethodGet, "/api/v1/roster/exclusion?chat_id=42", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, errorx.CodeUnauthorized, env.Code)
}

func TestParamValidation(t *testing.T) {
	ts := newTestServer(t)
	_, env := ts.do(t, http.MethodPost, "/api/v1/command/exclude", map[string]any{"chat_id": 42, "user_ids": []int64{}})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)

	_, env = ts.do(t, http.MethodPost, "/api/v1/call/user", map[string]any{"chat_id": 42, "chat_kind": "secret", "user_id": 2})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)
}

func TestCallCommandsRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ts.syncChat(t)

	var entry struct {
		UserID   int64 `json:"user_id"`
		CalledAt int64 `json:"called_at"`
	}
	ts.ok(t, http.MethodPost, "/api/v1/call/user", map[string]any{"chat_id": 42, "chat_kind": "basic", "user_id": 2}, &entry)
	assert.Equal(t, int64(2), entry.UserID)
	assert.NotZero(t, entry.CalledAt)

	ts.ok(t, http.MethodPost, "/api/v1/command/exclude", map[string]any{"chat_id": 42, "chat_kind": "basic", "user_ids": []int64{3}}, nil)

	var excluded struct {
		UserIDs []int64 `json:"user_ids"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/roster/exclusion?chat_id=42", nil, &excluded)
	assert.Equal(t, []int64{3}, excluded.UserIDs)

	var calling struct {
		Entries []struct {
			UserID int64 `json:"user_id"`
		} `json:"entries"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/roster/calling?chat_id=42", nil, &calling)
	require.Len(t, calling.Entries, 1)
	assert.Equal(t, int64(2), calling.Entries[0].UserID)

	// 回环通道确认后命令消息被删除
	require.Eventually(t, func() bool {
		return ts.svc.Sender.Pending() == 0 && ts.broker.Visible() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInboundInviteAllRingsUI(t *testing.T) {
	ts := newTestServer(t)
	ts.syncChat(t)
	conn := ts.dialUI(t)

	ts.ok(t, http.MethodPost, "/api/v1/message/inbound", map[string]any{
		"message_id": 7,
		"chat_id":    42,
		"chat_kind":  "basic",
		"sender_id":  1,
		"text":       "Alice invited all to the video chat",
	}, nil)

	e := readEvent(t, conn)
	require.Equal(t, websocket.EventRingStart, e.Type)
	require.NotNil(t, e.Ring)
	assert.Equal(t, int64(42), e.Ring.ChatID)
	assert.True(t, e.Ring.GroupRing)

	var status struct {
		State      string `json:"state"`
		ChatID     int64  `json:"chat_id"`
		LastHangup int64  `json:"last_hangup"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/ring/status", nil, &status)
	assert.Equal(t, "ringing", status.State)
	assert.Equal(t, int64(42), status.ChatID)

	ts.ok(t, http.MethodPost, "/api/v1/ring/hangup", nil, nil)
	ts.ok(t, http.MethodGet, "/api/v1/ring/status", nil, &status)
	assert.NotEqual(t, "ringing", status.State)
	assert.NotZero(t, status.LastHangup)
}

func TestPresenceRecords(t *testing.T) {
	ts := newTestServer(t)
	ts.syncChat(t)

	ts.ok(t, http.MethodPost, "/api/v1/call/user", map[string]any{"chat_id": 42, "chat_kind": "basic", "user_id": 2}, nil)
	ts.ok(t, http.MethodPost, "/api/v1/session/start", map[string]any{"chat_id": 42}, nil)
	ts.ok(t, http.MethodPost, "/api/v1/presence/transition", map[string]any{"chat_id": 42, "chat_kind": "basic", "user_id": 2, "online": true}, nil)

	var records []struct {
		UserID  int64   `json:"user_id"`
		Onlines []int64 `json:"onlines"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/timerecord?chat_id=42", nil, &records)
	var bob []int64
	for _, r := range records {
		if r.UserID == 2 {
			bob = r.Onlines
		}
	}
	assert.Len(t, bob, 1)

	// 上线后离开呼叫集合
	var calling struct {
		Entries []struct {
			UserID int64 `json:"user_id"`
		} `json:"entries"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/roster/calling?chat_id=42", nil, &calling)
	assert.Empty(t, calling.Entries)
}

func TestMetricsExposed(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "call_ring_command_messages_pending 0")
	assert.Contains(t, string(body), "call_ring_loopback_messages_visible 0")
}

func TestClassifyMessage(t *testing.T) {
	ts := newTestServer(t)

	var res struct {
		IsCommand       bool   `json:"is_command"`
		Command         string `json:"command"`
		AddressedUserID int64  `json:"addressed_user_id"`
	}
	ts.ok(t, http.MethodPost, "/api/v1/message/classify", map[string]any{
		"text":     "Ulysses refused to join the video chat",
		"entities": []map[string]any{{"type": "mention_name", "offset": 0, "length": 7, "user_id": 100}},
	}, &res)
	assert.True(t, res.IsCommand)
	assert.Equal(t, "refuse_invite", res.Command)
	assert.Equal(t, int64(100), res.AddressedUserID)

	res.IsCommand, res.Command = false, ""
	ts.ok(t, http.MethodPost, "/api/v1/message/classify", map[string]any{"text": "see you at noon"}, &res)
	assert.False(t, res.IsCommand)
	assert.Empty(t, res.Command)

	_, env := ts.do(t, http.MethodPost, "/api/v1/message/classify", map[string]any{})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)
}

func TestStartCallThenCloseSession(t *testing.T) {
	ts := newTestServer(t)

	_, env := ts.do(t, http.MethodPost, "/api/v1/call/start", map[string]any{"chat_id": 42, "chat_kind": "basic"})
	assert.Equal(t, errorx.CodeNotPermitted, env.Code)

	ts.syncChat(t)
	ts.ok(t, http.MethodPost, "/api/v1/call/start", map[string]any{"chat_id": 42, "chat_kind": "basic"}, nil)

	var excluded struct {
		UserIDs []int64 `json:"user_ids"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/roster/exclusion?chat_id=42", nil, &excluded)
	assert.ElementsMatch(t, []int64{1, 100}, excluded.UserIDs)

	var calling struct {
		Entries []struct {
			UserID int64 `json:"user_id"`
		} `json:"entries"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/roster/calling?chat_id=42", nil, &calling)
	assert.Len(t, calling.Entries, 2)

	ts.ok(t, http.MethodPost, "/api/v1/session/start", map[string]any{"chat_id": 42}, nil)
	ts.ok(t, http.MethodPost, "/api/v1/session/close", map[string]any{"chat_id": 42}, nil)

	// 通话结束后呼叫集合随之清空
	ts.ok(t, http.MethodGet, "/api/v1/roster/calling?chat_id=42", nil, &calling)
	assert.Empty(t, calling.Entries)

	var hole struct {
		StartTime int64 `json:"start_time"`
		EndTime   int64 `json:"end_time"`
		Open      bool  `json:"open"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/session/hole?chat_id=42", nil, &hole)
	assert.False(t, hole.Open)
	assert.NotZero(t, hole.EndTime)
}

func TestWebsocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := gws.DefaultDialer.Dial(ts.wsURL(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gws.DefaultDialer.Dial(ts.wsURL()+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, ts.hub.Clients())
}

func TestUIDisconnectEndsRing(t *testing.T) {
	ts := newTestServer(t)
	ts.syncChat(t)
	conn := ts.dialUI(t)

	ts.ok(t, http.MethodPost, "/api/v1/message/inbound", map[string]any{
		"message_id": 7,
		"chat_id":    42,
		"chat_kind":  "basic",
		"sender_id":  1,
		"text":       "Alice invited all to the video chat",
	}, nil)
	require.Equal(t, websocket.EventRingStart, readEvent(t, conn).Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ts.hub.Clients() == 0 && !ts.hub.Active() }, 2*time.Second, 10*time.Millisecond)

	var status struct {
		State  string `json:"state"`
		ChatID int64  `json:"chat_id"`
	}
	ts.ok(t, http.MethodGet, "/api/v1/ring/status", nil, &status)
	assert.Equal(t, "idle", status.State)
	assert.Zero(t, status.ChatID)

	// 重新连接后可以再次响铃
	conn = ts.dialUI(t)
	ts.ok(t, http.MethodPost, "/api/v1/message/inbound", map[string]any{
		"message_id": 8,
		"chat_id":    42,
		"chat_kind":  "basic",
		"sender_id":  1,
		"text":       "Alice invited all to the video chat",
	}, nil)
	assert.Equal(t, websocket.EventRingStart, readEvent(t, conn).Type)
}
