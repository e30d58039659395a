package permission

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kama_call_ring/internal/dao/mysql"
	"kama_call_ring/internal/dao/mysql/repository"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const selfID = 100

type fakeRemote struct {
	admins  []int64
	full    *model.FullChat
	err     error
	release chan struct{}

	adminCalls atomic.Int32
	fullCalls  atomic.Int32
}

func (f *fakeRemote) wait(ctx context.Context) error {
	if f.release == nil {
		return nil
	}
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) ChannelAdmins(ctx context.Context, _ int64, limit int) ([]int64, error) {
	f.adminCalls.Add(1)
	if limit != 100 {
		return nil, errors.New("unexpected limit")
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.admins, f.err
}

func (f *fakeRemote) FullChat(ctx context.Context, _ int64) (*model.FullChat, error) {
	f.fullCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.full, f.err
}

func openRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "perm.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, mysql.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewRepositories(db)
}

func newTestResolver(t *testing.T, remote RemoteClient) (*Resolver, *repository.Repositories) {
	t.Helper()
	repos := openRepos(t)
	return NewResolver(repos, remote, nil, metrics.New(prometheus.NewRegistry()), selfID, time.Second), repos
}

// taskQueue 先攒下落库任务，由测试决定何时执行
type taskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *taskQueue) SubmitTask(action func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, action)
}

func (q *taskQueue) runAll() int {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

// authorize 等待回调并检查只回调一次
func authorize(t *testing.T, r *Resolver, sender int64, chat model.ChatRef) bool {
	t.Helper()
	var calls atomic.Int32
	ch := make(chan bool, 2)
	r.IsAuthorized(context.Background(), sender, chat, func(ok bool) {
		calls.Add(1)
		ch <- ok
	})
	select {
	case ok := <-ch:
		time.Sleep(10 * time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
		return ok
	case <-time.After(2 * time.Second):
		t.Fatal("IsAuthorized never completed")
		return false
	}
}

func TestChannelStorageTierSkipsRemote(t *testing.T) {
	remote := &fakeRemote{admins: []int64{99}}
	r, repos := newTestResolver(t, remote)
	chat := model.ChatRef{ID: 42, Kind: model.ChatKindChannel}
	require.NoError(t, repos.ChannelAdmin.ReplaceAdmins(42, []int64{1, 2}))

	assert.True(t, authorize(t, r, 1, chat))
	assert.False(t, authorize(t, r, 99, chat))
	assert.Equal(t, int32(0), remote.adminCalls.Load())
}

func TestChannelRemoteTierPopulatesCaches(t *testing.T) {
	remote := &fakeRemote{admins: []int64{5}}
	r, repos := newTestResolver(t, remote)
	chat := model.ChatRef{ID: 7, Kind: model.ChatKindChannel}

	assert.True(t, authorize(t, r, 5, chat))
	assert.Equal(t, int32(1), remote.adminCalls.Load())

	assert.False(t, authorize(t, r, 6, chat))
	assert.Equal(t, int32(1), remote.adminCalls.Load())

	ids, err := repos.ChannelAdmin.LoadAdminIDs(7)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
}

func TestRemoteErrorFailsClosed(t *testing.T) {
	remote := &fakeRemote{err: errors.New("boom")}
	r, _ := newTestResolver(t, remote)

	assert.False(t, authorize(t, r, 1, model.ChatRef{ID: 1, Kind: model.ChatKindChannel}))
	assert.False(t, authorize(t, r, 1, model.ChatRef{ID: 2, Kind: model.ChatKindBasic}))
	// 不重试
	assert.Equal(t, int32(1), remote.adminCalls.Load())
	assert.Equal(t, int32(1), remote.fullCalls.Load())
}

func TestNoRemoteConfiguredDenies(t *testing.T) {
	r, _ := newTestResolver(t, nil)
	assert.False(t, authorize(t, r, 1, model.ChatRef{ID: 1, Kind: model.ChatKindBasic}))
}

func TestBasicGroupUsesRoles(t *testing.T) {
	remote := &fakeRemote{}
	r, repos := newTestResolver(t, remote)
	chat := model.ChatRef{ID: 42, Kind: model.ChatKindBasic}
	require.NoError(t, repos.Chat.SaveFullChat(&model.FullChat{
		Info: model.ChatInfo{ChatID: 42, Kind: model.ChatKindBasic, HasActiveCall: true},
		Participants: []model.ChatParticipant{
			{UserID: 1, Role: model.RoleCreator},
			{UserID: 2, Role: model.RoleAdmin},
			{UserID: 3, Role: model.RoleMember},
			{UserID: selfID, Role: model.RoleMember},
		},
	}))

	assert.True(t, authorize(t, r, 1, chat))
	assert.True(t, authorize(t, r, 2, chat))
	assert.False(t, authorize(t, r, 3, chat))
	assert.Equal(t, int32(0), remote.fullCalls.Load())

	ok, err := r.CanManageCalls(context.Background(), chat)
	require.NoError(t, err)
	assert.False(t, ok)

	known, active := r.KnownActiveCall(context.Background(), 42)
	assert.True(t, known)
	assert.True(t, active)

	require.NoError(t, r.SetActiveCall(42, false))
	known, active = r.KnownActiveCall(context.Background(), 42)
	assert.True(t, known)
	assert.False(t, active)

	known, _ = r.KnownActiveCall(context.Background(), 43)
	assert.False(t, known)
}

func TestBasicGroupRemoteFullChat(t *testing.T) {
	remote := &fakeRemote{full: &model.FullChat{
		Info:         model.ChatInfo{ChatID: 8, Kind: model.ChatKindBasic},
		Participants: []model.ChatParticipant{{UserID: selfID, Role: model.RoleAdmin}},
	}}
	r, repos := newTestResolver(t, remote)
	chat := model.ChatRef{ID: 8, Kind: model.ChatKindBasic}

	assert.True(t, authorize(t, r, selfID, chat))
	ok, err := r.CanManageCalls(context.Background(), chat)
	require.NoError(t, err)
	assert.True(t, ok)

	full, err := repos.Chat.FindFullChat(8)
	require.NoError(t, err)
	assert.Equal(t, []int64{selfID}, full.AdminIDs())
}

func TestOneRemoteFetchInFlightPerChat(t *testing.T) {
	remote := &fakeRemote{admins: []int64{1}, release: make(chan struct{})}
	r, _ := newTestResolver(t, remote)
	chat := model.ChatRef{ID: 3, Kind: model.ChatKindChannel}

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		i := i
		wg.Add(1)
		r.IsAuthorized(context.Background(), 1, chat, func(ok bool) {
			results[i] = ok
			wg.Done()
		})
	}
	require.Eventually(t, func() bool { return remote.adminCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(remote.release)
	wg.Wait()

	assert.Equal(t, int32(1), remote.adminCalls.Load())
	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestForgetReloadsFromStorage(t *testing.T) {
	r, repos := newTestResolver(t, &fakeRemote{})
	chat := model.ChatRef{ID: 42, Kind: model.ChatKindChannel}
	require.NoError(t, repos.ChannelAdmin.ReplaceAdmins(42, []int64{1}))
	assert.True(t, authorize(t, r, 1, chat))

	require.NoError(t, repos.ChannelAdmin.ReplaceAdmins(42, []int64{2}))
	assert.False(t, authorize(t, r, 2, chat))

	r.Forget(42)
	assert.True(t, authorize(t, r, 2, chat))
}

func TestRemoteResultPersistedThroughTasks(t *testing.T) {
	repos := openRepos(t)
	queue := &taskQueue{}
	remote := &fakeRemote{admins: []int64{5}}
	r := NewResolver(repos, remote, queue, nil, selfID, time.Second)
	chat := model.ChatRef{ID: 7, Kind: model.ChatKindChannel}

	assert.True(t, authorize(t, r, 5, chat))
	ids, err := repos.ChannelAdmin.LoadAdminIDs(7)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// 内存已回填，第二次查询不落到远端
	assert.True(t, authorize(t, r, 5, chat))
	assert.Equal(t, int32(1), remote.adminCalls.Load())

	require.Equal(t, 1, queue.runAll())
	ids, err = repos.ChannelAdmin.LoadAdminIDs(7)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
}
