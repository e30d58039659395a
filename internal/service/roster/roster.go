// Package roster 维护每个会话的排除集合与呼叫集合
// 排除集合：不希望被响铃的用户；呼叫集合：正在被呼叫的用户及每次呼叫的时间
package roster

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/pkg/util/keylock"

	"go.uber.org/zap"
)

// CommandSender 发出命令消息
type CommandSender interface {
	SendCommand(ctx context.Context, chat model.ChatRef, cmd command.Command, target *command.Target) error
	SendExcludeBatch(ctx context.Context, chat model.ChatRef, targets []command.Target) error
}

// Options 运行参数
type Options struct {
	AccountID        int64
	SelfID           int64
	InviteAllDelay   time.Duration
	CallingRetention time.Duration // <=0 表示不按时间清理
}

// CallingEntry 一次呼叫
type CallingEntry struct {
	UserID   int64     `json:"user_id"`
	CalledAt time.Time `json:"called_at"`
}

func (e CallingEntry) member() string {
	return strconv.FormatInt(e.UserID, 10) + "_" + strconv.FormatInt(e.CalledAt.UnixMilli(), 10)
}

func parseEntry(s string) (CallingEntry, bool) {
	uid, ms, ok := strings.Cut(s, "_")
	if !ok {
		return CallingEntry{}, false
	}
	userID, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		return CallingEntry{}, false
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return CallingEntry{}, false
	}
	return CallingEntry{UserID: userID, CalledAt: time.UnixMilli(millis)}, true
}

// Store 排除集合与呼叫集合，同一会话的读改写串行执行
type Store struct {
	cache  myredis.CacheService
	sender CommandSender
	opts   Options
	now    func() time.Time
	locks  keylock.KeyLock

	timerMu sync.Mutex
	timers  map[int64]*time.Timer
	closed  bool
}

// NewStore 构造函数
func NewStore(cache myredis.CacheService, sender CommandSender, opts Options) *Store {
	return &Store{
		cache:  cache,
		sender: sender,
		opts:   opts,
		now:    time.Now,
		timers: make(map[int64]*time.Timer),
	}
}

// ==================== 排除集合 ====================

// Exclude 幂等
func (s *Store) Exclude(ctx context.Context, chatID, userID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.cache.AddToSet(ctx, s.excludeKey(chatID), formatID(userID))
}

// Unexclude 幂等
func (s *Store) Unexclude(ctx context.Context, chatID, userID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.cache.RemoveFromSet(ctx, s.excludeKey(chatID), formatID(userID))
}

func (s *Store) IsExcluded(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.cache.IsSetMember(ctx, s.excludeKey(chatID), formatID(userID))
}

// ExcludedUsers 排除集合中的全部用户
func (s *Store) ExcludedUsers(ctx context.Context, chatID int64) ([]int64, error) {
	members, err := s.cache.GetSetMembers(ctx, s.excludeKey(chatID))
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			zap.L().Warn("忽略非法的排除集合成员", zap.Int64("chat_id", chatID), zap.String("member", m))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ==================== 呼叫集合 ====================

// StartCall 管理员发起通话
// 管理员并入排除集合，其余未被排除的参与者进入呼叫集合；
// 对新增的排除用户发送一次 Exclude，延迟后广播一次 InviteAll
func (s *Store) StartCall(ctx context.Context, chat model.ChatRef, admins, all []command.Target) error {
	newly, err := s.seedCall(ctx, chat.ID, admins, all)
	if err != nil {
		return err
	}

	var sendErr error
	if len(newly) > 0 {
		if err := s.sender.SendExcludeBatch(ctx, chat, newly); err != nil {
			zap.L().Error("发送排除命令失败", zap.Int64("chat_id", chat.ID), zap.Error(err))
			sendErr = err
		}
	}
	s.scheduleInviteAll(chat)
	return sendErr
}

func (s *Store) seedCall(ctx context.Context, chatID int64, admins, all []command.Target) ([]command.Target, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	key := s.excludeKey(chatID)
	members, err := s.cache.GetSetMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(members)+len(admins))
	for _, m := range members {
		excluded[m] = struct{}{}
	}

	var newly []command.Target
	var added []string
	for _, a := range admins {
		id := formatID(a.UserID)
		if _, ok := excluded[id]; ok {
			continue
		}
		excluded[id] = struct{}{}
		added = append(added, id)
		if a.UserID != s.opts.SelfID {
			newly = append(newly, a)
		}
	}
	if err := s.cache.AddToSet(ctx, key, added...); err != nil {
		return nil, err
	}

	now := s.now()
	seen := make(map[int64]struct{}, len(all))
	calling := make([]string, 0, len(all))
	for _, p := range all {
		if _, ok := excluded[formatID(p.UserID)]; ok {
			continue
		}
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		calling = append(calling, CallingEntry{UserID: p.UserID, CalledAt: now}.member())
	}
	if err := s.cache.ReplaceSet(ctx, s.callingKey(chatID), calling); err != nil {
		return nil, err
	}
	return newly, nil
}

// CallUser 为用户追加一条新的呼叫记录，重复呼叫会累积多条
func (s *Store) CallUser(ctx context.Context, chatID, userID int64) (CallingEntry, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	entries, err := s.loadCalling(ctx, chatID)
	if err != nil {
		return CallingEntry{}, err
	}
	used := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		used[e.member()] = struct{}{}
	}
	entry := CallingEntry{UserID: userID, CalledAt: s.now()}
	for {
		if _, ok := used[entry.member()]; !ok {
			break
		}
		entry.CalledAt = entry.CalledAt.Add(time.Millisecond)
	}
	if err := s.cache.AddToSet(ctx, s.callingKey(chatID), entry.member()); err != nil {
		return CallingEntry{}, err
	}
	return entry, nil
}

// CallAll 为不在呼叫集合且未被排除的参与者各追加一条记录，返回新增的用户
func (s *Store) CallAll(ctx context.Context, chatID int64, participants []int64) ([]int64, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	entries, err := s.loadCalling(ctx, chatID)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		present[e.UserID] = struct{}{}
	}
	excludedList, err := s.cache.GetSetMembers(ctx, s.excludeKey(chatID))
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(excludedList))
	for _, m := range excludedList {
		excluded[m] = struct{}{}
	}

	now := s.now()
	var added []int64
	var members []string
	for _, uid := range participants {
		if _, ok := present[uid]; ok {
			continue
		}
		if _, ok := excluded[formatID(uid)]; ok {
			continue
		}
		present[uid] = struct{}{}
		added = append(added, uid)
		members = append(members, CallingEntry{UserID: uid, CalledAt: now}.member())
	}
	if err := s.cache.AddToSet(ctx, s.callingKey(chatID), members...); err != nil {
		return nil, err
	}
	return added, nil
}

// OnParticipantOnline 用户上线，移除其全部呼叫记录
func (s *Store) OnParticipantOnline(ctx context.Context, chatID, userID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	entries, err := s.loadCalling(ctx, chatID)
	if err != nil {
		return err
	}
	var remove []string
	for _, e := range entries {
		if e.UserID == userID {
			remove = append(remove, e.member())
		}
	}
	return s.cache.RemoveFromSet(ctx, s.callingKey(chatID), remove...)
}

// ClearCalling 通话结束后清空呼叫集合
func (s *Store) ClearCalling(ctx context.Context, chatID int64) error {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.cache.Delete(ctx, s.callingKey(chatID))
}

// CallingEntries 当前呼叫集合
func (s *Store) CallingEntries(ctx context.Context, chatID int64) ([]CallingEntry, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()
	return s.loadCalling(ctx, chatID)
}

// loadCalling 读取呼叫集合并清理过期与非法条目，调用方需持有会话锁
func (s *Store) loadCalling(ctx context.Context, chatID int64) ([]CallingEntry, error) {
	key := s.callingKey(chatID)
	members, err := s.cache.GetSetMembers(ctx, key)
	if err != nil {
		return nil, err
	}
	var stale []string
	entries := make([]CallingEntry, 0, len(members))
	cutoff := time.Time{}
	if s.opts.CallingRetention > 0 {
		cutoff = s.now().Add(-s.opts.CallingRetention)
	}
	for _, m := range members {
		e, ok := parseEntry(m)
		if !ok || (!cutoff.IsZero() && e.CalledAt.Before(cutoff)) {
			stale = append(stale, m)
			continue
		}
		entries = append(entries, e)
	}
	if len(stale) > 0 {
		if err := s.cache.RemoveFromSet(ctx, key, stale...); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// ==================== 延迟广播 ====================

func (s *Store) scheduleInviteAll(chat model.ChatRef) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[chat.ID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.opts.InviteAllDelay, func() {
		s.timerMu.Lock()
		if s.timers[chat.ID] != timer {
			s.timerMu.Unlock()
			return
		}
		delete(s.timers, chat.ID)
		s.timerMu.Unlock()

		if err := s.sender.SendCommand(context.Background(), chat, command.InviteAll, nil); err != nil {
			zap.L().Error("延迟广播 InviteAll 失败", zap.Int64("chat_id", chat.ID), zap.Error(err))
		}
	})
	s.timers[chat.ID] = timer
}

// CancelInviteAll 取消尚未触发的延迟广播
func (s *Store) CancelInviteAll(chatID int64) bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	t, ok := s.timers[chatID]
	if !ok {
		return false
	}
	delete(s.timers, chatID)
	return t.Stop()
}

// Close 停止所有未触发的延迟广播，进程重启后不会补发
func (s *Store) Close() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Store) excludeKey(chatID int64) string {
	return myredis.ExcludeUsersKey(s.opts.AccountID, chatID)
}

func (s *Store) callingKey(chatID int64) string {
	return myredis.CallingUsersKey(s.opts.AccountID, chatID)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
