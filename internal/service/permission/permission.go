// Package permission 判断命令发送者是否为会话管理员（群主或管理员）
// 按 内存 → 本地存储 → 远端 的顺序逐层查找，空结果落到下一层，第一个非空结果生效
package permission

import (
	"context"
	"strconv"
	"sync"
	"time"

	"kama_call_ring/internal/dao/mysql/repository"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/model"
	"kama_call_ring/pkg/constants"
	"kama_call_ring/pkg/errorx"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// 层级名称，用于日志与指标
const (
	TierMemory  = "memory"
	TierStorage = "storage"
	TierRemote  = "remote"
	TierNone    = "none"
)

// RemoteClient 远端消息后台
type RemoteClient interface {
	// ChannelAdmins 查询频道型群的管理员，最多返回 limit 个
	ChannelAdmins(ctx context.Context, chatID int64, limit int) ([]int64, error)
	// FullChat 查询会话完整信息
	FullChat(ctx context.Context, chatID int64) (*model.FullChat, error)
}

// TaskSubmitter 异步执行落库任务，由缓存层的 worker pool 提供
type TaskSubmitter interface {
	SubmitTask(action func())
}

// AdminSet 管理员集合
type AdminSet map[int64]struct{}

func newAdminSet(ids []int64) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s AdminSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Strategy 一层查找；返回空集合表示本层没有数据
type Strategy interface {
	Name() string
	Lookup(ctx context.Context, chat model.ChatRef) (AdminSet, error)
}

// Resolver 权限解析器
type Resolver struct {
	repos   *repository.Repositories
	remote  RemoteClient
	tasks   TaskSubmitter
	metrics *metrics.Metrics
	selfID  int64
	timeout time.Duration

	mu       sync.RWMutex
	admins   map[int64]AdminSet        // 频道型群的管理员索引
	full     map[int64]*model.FullChat // 普通群的完整信息
	inflight singleflight.Group

	// 同步层，依次尝试
	local []Strategy
}

// NewResolver 构造函数，remoteTimeout 为单次远端查询的超时
// tasks 为 nil 时远端结果同步落库
func NewResolver(repos *repository.Repositories, remote RemoteClient, tasks TaskSubmitter, m *metrics.Metrics, selfID int64, remoteTimeout time.Duration) *Resolver {
	r := &Resolver{
		repos:   repos,
		remote:  remote,
		tasks:   tasks,
		metrics: m,
		selfID:  selfID,
		timeout: remoteTimeout,
		admins:  make(map[int64]AdminSet),
		full:    make(map[int64]*model.FullChat),
	}
	r.local = []Strategy{memoryStrategy{r}, storageStrategy{r}}
	return r
}

// IsAuthorized 判断 senderID 在会话中是否有权限，done 恰好被调用一次
// 内存或本地存储命中时在当前 goroutine 内回调；否则发起远端查询并在完成后回调，
// 远端出错按无权限处理，不重试
func (r *Resolver) IsAuthorized(ctx context.Context, senderID int64, chat model.ChatRef, done func(bool)) {
	tier, set := r.lookupLocal(ctx, chat)
	if len(set) > 0 {
		ok := set.Has(senderID)
		r.metrics.PermissionResolved(tier, ok)
		done(ok)
		return
	}
	if r.remote == nil {
		r.metrics.PermissionResolved(TierNone, false)
		done(false)
		return
	}

	go func() {
		set, err := r.fetchRemote(context.WithoutCancel(ctx), chat)
		if err != nil {
			zap.L().Warn("远端查询管理员失败，按无权限处理",
				zap.Int64("chat_id", chat.ID), zap.Int64("sender_id", senderID), zap.Error(err))
			r.metrics.PermissionResolved(TierRemote, false)
			done(false)
			return
		}
		ok := set.Has(senderID)
		r.metrics.PermissionResolved(TierRemote, ok)
		done(ok)
	}()
}

// CanManageCalls 本地用户能否管理通话，只查同步层
func (r *Resolver) CanManageCalls(ctx context.Context, chat model.ChatRef) (bool, error) {
	_, set := r.lookupLocal(ctx, chat)
	return set.Has(r.selfID), nil
}

// KnownActiveCall 本地已知的会话信息中是否有进行中的群通话，known=false 表示没有本地信息
func (r *Resolver) KnownActiveCall(ctx context.Context, chatID int64) (known, active bool) {
	r.mu.RLock()
	full, ok := r.full[chatID]
	r.mu.RUnlock()
	if ok {
		return true, full.Info.HasActiveCall
	}
	full, err := r.repos.Chat.FindFullChat(chatID)
	if err != nil {
		if !errorx.IsNotFound(err) {
			zap.L().Error("读取本地会话信息失败", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return false, false
	}
	return true, full.Info.HasActiveCall
}

func (r *Resolver) lookupLocal(ctx context.Context, chat model.ChatRef) (string, AdminSet) {
	for _, s := range r.local {
		set, err := s.Lookup(ctx, chat)
		if err != nil {
			zap.L().Error("权限查找失败，尝试下一层", zap.String("tier", s.Name()), zap.Int64("chat_id", chat.ID), zap.Error(err))
			continue
		}
		if len(set) > 0 {
			return s.Name(), set
		}
	}
	return TierNone, nil
}

// fetchRemote 同一会话同时只有一个远端查询
func (r *Resolver) fetchRemote(ctx context.Context, chat model.ChatRef) (AdminSet, error) {
	key := strconv.FormatInt(chat.ID, 10)
	v, err, _ := r.inflight.Do(key, func() (interface{}, error) {
		// 前一次查询可能已经回填了内存
		if set, _ := (memoryStrategy{r}).Lookup(ctx, chat); len(set) > 0 {
			return set, nil
		}
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		if chat.Kind == model.ChatKindChannel {
			ids, err := r.remote.ChannelAdmins(ctx, chat.ID, constants.REMOTE_ADMIN_LIMIT)
			if err != nil {
				return nil, err
			}
			r.cacheChannelAdmins(chat.ID, ids)
			r.persist(func() { r.saveChannelAdmins(chat.ID, ids) })
			return newAdminSet(ids), nil
		}
		full, err := r.remote.FullChat(ctx, chat.ID)
		if err != nil {
			return nil, err
		}
		if full == nil {
			return nil, errorx.Newf(errorx.CodeRemoteError, "empty full chat %d", chat.ID)
		}
		r.cacheFullChat(full)
		r.persist(func() { r.saveFullChat(full) })
		return newAdminSet(full.AdminIDs()), nil
	})
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeRemoteError, "fetch admins of chat %d", chat.ID)
	}
	return v.(AdminSet), nil
}

// ==================== 内存索引维护 ====================

// StoreChannelAdmins 写入频道管理员索引并同步落库
func (r *Resolver) StoreChannelAdmins(chatID int64, ids []int64) {
	r.cacheChannelAdmins(chatID, ids)
	r.saveChannelAdmins(chatID, ids)
}

// StoreFullChat 写入会话完整信息并同步落库
func (r *Resolver) StoreFullChat(full *model.FullChat) {
	if full == nil {
		return
	}
	r.cacheFullChat(full)
	r.saveFullChat(full)
}

// persist 远端结果先进内存，落库交给 worker pool
func (r *Resolver) persist(task func()) {
	if r.tasks == nil {
		task()
		return
	}
	r.tasks.SubmitTask(task)
}

func (r *Resolver) cacheChannelAdmins(chatID int64, ids []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[chatID] = newAdminSet(ids)
}

func (r *Resolver) saveChannelAdmins(chatID int64, ids []int64) {
	if err := r.repos.ChannelAdmin.ReplaceAdmins(chatID, ids); err != nil {
		zap.L().Error("保存频道管理员失败", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Resolver) cacheFullChat(full *model.FullChat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full[full.Info.ChatID] = full
}

func (r *Resolver) saveFullChat(full *model.FullChat) {
	if err := r.repos.Chat.SaveFullChat(full); err != nil {
		zap.L().Error("保存会话信息失败", zap.Int64("chat_id", full.Info.ChatID), zap.Error(err))
	}
}

// SetActiveCall 更新会话的群通话状态
func (r *Resolver) SetActiveCall(chatID int64, active bool) error {
	r.mu.Lock()
	if full, ok := r.full[chatID]; ok {
		cp := *full
		cp.Info.HasActiveCall = active
		r.full[chatID] = &cp
	}
	r.mu.Unlock()
	return r.repos.Chat.SetActiveCall(chatID, active)
}

// Forget 丢弃会话的内存数据，下次查找从本地存储重新加载
func (r *Resolver) Forget(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.admins, chatID)
	delete(r.full, chatID)
}

// FullChat 按 内存 → 本地存储 读取会话完整信息，找不到返回 CodeNotFound
func (r *Resolver) FullChat(chatID int64) (*model.FullChat, error) {
	r.mu.RLock()
	full, ok := r.full[chatID]
	r.mu.RUnlock()
	if ok {
		return full, nil
	}
	full, err := r.repos.Chat.FindFullChat(chatID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.full[chatID] = full
	r.mu.Unlock()
	return full, nil
}

// ==================== 查找策略 ====================

type memoryStrategy struct{ r *Resolver }

func (memoryStrategy) Name() string { return TierMemory }

func (s memoryStrategy) Lookup(_ context.Context, chat model.ChatRef) (AdminSet, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	if chat.Kind == model.ChatKindChannel {
		return s.r.admins[chat.ID], nil
	}
	if full, ok := s.r.full[chat.ID]; ok {
		return newAdminSet(full.AdminIDs()), nil
	}
	return nil, nil
}

type storageStrategy struct{ r *Resolver }

func (storageStrategy) Name() string { return TierStorage }

// Lookup 命中后回填内存索引
func (s storageStrategy) Lookup(_ context.Context, chat model.ChatRef) (AdminSet, error) {
	if chat.Kind == model.ChatKindChannel {
		ids, err := s.r.repos.ChannelAdmin.LoadAdminIDs(chat.ID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		set := newAdminSet(ids)
		s.r.mu.Lock()
		s.r.admins[chat.ID] = set
		s.r.mu.Unlock()
		return set, nil
	}

	full, err := s.r.repos.Chat.FindFullChat(chat.ID)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	s.r.mu.Lock()
	s.r.full[chat.ID] = full
	s.r.mu.Unlock()
	return newAdminSet(full.AdminIDs()), nil
}
