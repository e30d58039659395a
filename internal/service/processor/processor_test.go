package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/ringing"
	"kama_call_ring/internal/service/roster"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aliceID = 1
	selfID  = 100
)

var self = command.Identity{UserID: selfID, UserName: "ulysses", FirstName: "Ulysses", DisplayName: "Ulysses"}

type adminAuthorizer struct {
	admins map[int64]bool
	calls  int
}

func (a *adminAuthorizer) IsAuthorized(_ context.Context, senderID int64, _ model.ChatRef, done func(bool)) {
	a.calls++
	done(a.admins[senderID])
}

type platform struct{}

func (platform) TelephonyIdle() bool        { return true }
func (platform) NotificationsEnabled() bool { return true }
func (platform) Foreground() bool           { return true }

type session struct {
	mu     sync.Mutex
	starts []ringing.StartRequest
	ended  []int64
}

func (s *session) Active() bool { return false }
func (s *session) Start(_ context.Context, req ringing.StartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, req)
	return nil
}
func (s *session) EndRinging(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = append(s.ended, chatID)
	return nil
}
func (s *session) SuppressOnline(context.Context, int64) error { return nil }

type notifier struct{ refused []int64 }

func (n *notifier) Refused(_ context.Context, _ model.ChatRef, userID int64) {
	n.refused = append(n.refused, userID)
}

type appState bool

func (a appState) AppRunning() bool { return bool(a) }

type panicAuthorizer struct{}

func (panicAuthorizer) IsAuthorized(context.Context, int64, model.ChatRef, func(bool)) {
	panic("boom")
}

type fixture struct {
	p        *Processor
	store    *roster.Store
	auth     *adminAuthorizer
	session  *session
	notifier *notifier
}

func newFixture(t *testing.T, running bool) *fixture {
	t.Helper()
	cache, err := myredis.NewMemory(1, 4)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	m := metrics.New(prometheus.NewRegistry())

	store := roster.NewStore(cache, nil, roster.Options{AccountID: 1, SelfID: selfID, InviteAllDelay: time.Hour})
	t.Cleanup(store.Close)
	sess := &session{}
	coord := ringing.NewCoordinator(cache, platform{}, sess, sess, nil, m,
		ringing.Options{AccountID: 1, HangupCooldown: time.Minute})
	f := &fixture{
		store:    store,
		auth:     &adminAuthorizer{admins: map[int64]bool{aliceID: true}},
		session:  sess,
		notifier: &notifier{},
	}
	f.p = NewProcessor(self, store, f.auth, coord, f.notifier, appState(running), m)
	return f
}

func groupMessage(text string, sender int64, entities ...command.Entity) *command.Message {
	return &command.Message{ID: 1, ChatID: 42, ChatKind: model.ChatKindBasic, SenderID: sender, Text: text, Entities: entities}
}

func TestInviteAllRingsOnceEvenIfProcessedTwice(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	msg := groupMessage("Alice invited all to the video chat", aliceID)

	res := f.p.HandleMessage(ctx, msg)
	assert.Equal(t, command.InviteAll, res.Command)
	assert.True(t, res.NeedRing)

	res = f.p.HandleMessage(ctx, msg)
	assert.True(t, res.NeedRing)

	assert.Equal(t, 2, f.auth.calls)
	require.Len(t, f.session.starts, 1)
	assert.Equal(t, int64(42), f.session.starts[0].ChatID)
	assert.True(t, f.session.starts[0].GroupRing)
}

func TestUnauthorizedSenderDoesNotRing(t *testing.T) {
	f := newFixture(t, true)
	res := f.p.HandleMessage(context.Background(), groupMessage("Mallory invited all to the video chat", 66))
	assert.True(t, res.NeedRing)
	assert.Empty(t, f.session.starts)
}

func TestExcludeAddressedToMeSuppressesLaterInviteAll(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res := f.p.HandleMessage(ctx, groupMessage("@ulysses Alice will not invite you to the video chat", aliceID))
	assert.Equal(t, command.Exclude, res.Command)
	assert.True(t, res.ToMe)
	ok, err := f.store.IsExcluded(ctx, 42, selfID)
	require.NoError(t, err)
	assert.True(t, ok)

	res = f.p.HandleMessage(ctx, groupMessage("Alice invited all to the video chat", aliceID))
	assert.False(t, res.NeedRing)
	assert.Zero(t, f.auth.calls)
	assert.Empty(t, f.session.starts)

	// 重新邀请后恢复响铃
	res = f.p.HandleMessage(ctx, groupMessage("Ulysses Alice re-invited you to the video chat", aliceID,
		command.Entity{Type: command.EntityMentionName, Offset: 0, Length: 7, UserID: selfID}))
	assert.Equal(t, command.Unexclude, res.Command)
	assert.True(t, res.ToMe)
	ok, err = f.store.IsExcluded(ctx, 42, selfID)
	require.NoError(t, err)
	assert.False(t, ok)

	res = f.p.HandleMessage(ctx, groupMessage("Alice invited all to the video chat", aliceID))
	assert.True(t, res.NeedRing)
	assert.Len(t, f.session.starts, 1)
}

func TestExcludeAddressedToOthersIsIgnored(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	res := f.p.HandleMessage(ctx, groupMessage("@bob Alice will not invite you to the video chat", aliceID))
	assert.False(t, res.ToMe)
	ok, err := f.store.IsExcluded(ctx, 42, selfID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExcludeEndsOngoingRing(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.p.HandleMessage(ctx, groupMessage("@ulysses Alice invited you to the video chat", aliceID))
	require.Len(t, f.session.starts, 1)

	f.p.HandleMessage(ctx, groupMessage("@ulysses Alice will not invite you to the video chat", aliceID))
	assert.Equal(t, []int64{42}, f.session.ended)
}

func TestInviteUserNotToMeDoesNotRing(t *testing.T) {
	f := newFixture(t, true)
	res := f.p.HandleMessage(context.Background(), groupMessage("@bob Alice invited you to the video chat", aliceID))
	assert.Equal(t, command.InviteUser, res.Command)
	assert.False(t, res.NeedRing)
	assert.Empty(t, f.session.starts)
}

func TestRefuseNotifiesWithRefuser(t *testing.T) {
	f := newFixture(t, true)
	f.p.HandleMessage(context.Background(), groupMessage("Bob refused to join the video chat", 2,
		command.Entity{Type: command.EntityMentionName, Offset: 0, Length: 3, UserID: 2}))
	assert.Equal(t, []int64{2}, f.notifier.refused)
}

func TestSkips(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	assert.Equal(t, "not_command", f.p.HandleMessage(ctx, groupMessage("hello", aliceID)).Skipped)
	assert.Equal(t, "own_message", f.p.HandleMessage(ctx, groupMessage("Ulysses invited all to the video chat", selfID)).Skipped)

	push := groupMessage("Alice invited all to the video chat", aliceID)
	push.Push = true
	assert.Equal(t, "push_while_running", f.p.HandleMessage(ctx, push).Skipped)
	assert.Empty(t, f.session.starts)

	f = newFixture(t, false)
	res := f.p.HandleMessage(ctx, push)
	assert.Empty(t, res.Skipped)
	assert.Len(t, f.session.starts, 1)
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t, true)
	f.p.auth = panicAuthorizer{}

	var res Result
	require.NotPanics(t, func() {
		res = f.p.HandleMessage(context.Background(), groupMessage("Alice invited all to the video chat", aliceID))
	})
	assert.Contains(t, res.Skipped, "panic")
}
