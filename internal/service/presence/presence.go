// Package presence 记录通话期间每个参与者的上下线时间
// 记录只在通话时间段（time hole）打开时生效
package presence

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/model"
	"kama_call_ring/pkg/errorx"
	"kama_call_ring/pkg/util/keylock"

	"go.uber.org/zap"
)

const (
	fieldStartTime = "startTime"
	fieldEndTime   = "endTime"
)

// ManagerChecker 本地用户在会话中能否管理通话
type ManagerChecker interface {
	CanManageCalls(ctx context.Context, chat model.ChatRef) (bool, error)
}

// OnlineListener 参与者上线时通知呼叫集合
type OnlineListener interface {
	OnParticipantOnline(ctx context.Context, chatID, userID int64) error
}

// JoinResult JoinExistingSession 的结果
type JoinResult int

const (
	JoinStarted JoinResult = iota + 1 // 没有记录，新开一段
	JoinOngoing                       // 通话进行中，已接入
	JoinStale                         // 残留的已结束记录，需要 UI 确认后 Reset
)

func (r JoinResult) String() string {
	switch r {
	case JoinStarted:
		return "started"
	case JoinOngoing:
		return "ongoing"
	case JoinStale:
		return "stale"
	default:
		return "unknown"
	}
}

// timeRecord 持久化格式 {"onlines":[...],"offlines":[...]}，毫秒时间戳
type timeRecord struct {
	Onlines  []int64 `json:"onlines"`
	Offlines []int64 `json:"offlines"`
}

func newTimeRecord() *timeRecord {
	return &timeRecord{Onlines: []int64{}, Offlines: []int64{}}
}

// TimeHole 一段通话的起止
type TimeHole struct {
	StartTime time.Time
	EndTime   time.Time // 零值表示通话未结束
}

// Open 已开始且未结束
func (h TimeHole) Open() bool {
	return !h.StartTime.IsZero() && h.EndTime.IsZero()
}

// Recorder 时间记录与通话时间段
type Recorder struct {
	cache     myredis.CacheService
	manager   ManagerChecker
	listener  OnlineListener
	accountID int64
	selfID    int64
	now       func() time.Time
	locks     keylock.KeyLock
}

// NewRecorder 构造函数
func NewRecorder(cache myredis.CacheService, manager ManagerChecker, listener OnlineListener, accountID, selfID int64) *Recorder {
	return &Recorder{
		cache:     cache,
		manager:   manager,
		listener:  listener,
		accountID: accountID,
		selfID:    selfID,
		now:       time.Now,
	}
}

// RecordTransition 记录参与者上线或下线
// 本地用户不是通话管理者、对象是自己、或通话时间段未打开时不做任何事
func (r *Recorder) RecordTransition(ctx context.Context, chat model.ChatRef, userID int64, online bool) error {
	if userID == r.selfID {
		return nil
	}
	ok, err := r.manager.CanManageCalls(ctx, chat)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	recorded, err := r.appendTransition(ctx, chat.ID, userID, online)
	if err != nil || !recorded || !online {
		return err
	}
	return r.listener.OnParticipantOnline(ctx, chat.ID, userID)
}

func (r *Recorder) appendTransition(ctx context.Context, chatID, userID int64, online bool) (bool, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	hole, err := r.loadHole(ctx, chatID)
	if err != nil {
		return false, err
	}
	if !hole.Open() {
		return false, nil
	}

	rec, ok, err := r.loadRecord(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	ts := r.now().UnixMilli()
	if online {
		rec.Onlines = append(rec.Onlines, ts)
	} else {
		rec.Offlines = append(rec.Offlines, ts)
	}
	return true, r.saveRecord(ctx, chatID, userID, rec)
}

// StartSession 打开通话时间段，本地用户没有记录时补一条上线
func (r *Recorder) StartSession(ctx context.Context, chatID int64) error {
	unlock := r.locks.Lock(chatID)
	defer unlock()
	return r.startLocked(ctx, chatID, nil)
}

// startLocked 打开时间段并为 seed 中尚无记录的用户和本地用户写入上线时间
func (r *Recorder) startLocked(ctx context.Context, chatID int64, seed []int64) error {
	now := r.now().UnixMilli()
	holeKey := myredis.TimeHoleKey(r.accountID, chatID)
	if err := r.cache.HSet(ctx, holeKey, fieldStartTime, strconv.FormatInt(now, 10)); err != nil {
		return err
	}
	if err := r.cache.HDel(ctx, holeKey, fieldEndTime); err != nil {
		return err
	}

	key := myredis.TimeRecordKey(r.accountID, chatID)
	users := append(append([]int64(nil), seed...), r.selfID)
	for _, uid := range users {
		_, exists, err := r.cache.HGet(ctx, key, formatID(uid))
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		rec := newTimeRecord()
		rec.Onlines = append(rec.Onlines, now)
		if err := r.saveRecord(ctx, chatID, uid, rec); err != nil {
			return err
		}
	}
	return nil
}

// CloseSessionIfIdle 为没有下线记录的参与者补一条下线时间，并关闭时间段
func (r *Recorder) CloseSessionIfIdle(ctx context.Context, chatID int64) error {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	now := r.now().UnixMilli()
	raw, err := r.cache.HGetAll(ctx, myredis.TimeRecordKey(r.accountID, chatID))
	if err != nil {
		return err
	}
	for field, payload := range raw {
		rec, err := decodeRecord(payload)
		if err != nil {
			zap.L().Error("时间记录格式错误，跳过", zap.Int64("chat_id", chatID), zap.String("user", field), zap.Error(err))
			continue
		}
		if len(rec.Onlines) <= len(rec.Offlines) {
			continue
		}
		rec.Offlines = append(rec.Offlines, now)
		if err := r.saveField(ctx, chatID, field, rec); err != nil {
			return err
		}
	}
	return r.cache.HSet(ctx, myredis.TimeHoleKey(r.accountID, chatID), fieldEndTime, strconv.FormatInt(now, 10))
}

// JoinExistingSession 加入一个已存在的通话
// 没有记录时开一段新记录并回调 onReady；记录存在但时间段已关闭时返回 JoinStale，
// 由 UI 确认后调用 Reset；通话进行中且本地用户不在 live 中时补一条上线
func (r *Recorder) JoinExistingSession(ctx context.Context, chatID int64, live []int64, onReady func()) (JoinResult, error) {
	result, err := r.join(ctx, chatID, live)
	if err != nil {
		return 0, err
	}
	if result == JoinStarted && onReady != nil {
		onReady()
	}
	return result, nil
}

func (r *Recorder) join(ctx context.Context, chatID int64, live []int64) (JoinResult, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	exists, err := r.cache.Exists(ctx, myredis.TimeRecordKey(r.accountID, chatID))
	if err != nil {
		return 0, err
	}
	if !exists {
		return JoinStarted, r.startLocked(ctx, chatID, live)
	}

	hole, err := r.loadHole(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !hole.Open() {
		return JoinStale, nil
	}

	for _, uid := range live {
		if uid == r.selfID {
			return JoinOngoing, nil
		}
	}
	rec, ok, err := r.loadRecord(ctx, chatID, r.selfID)
	if err != nil || !ok {
		return JoinOngoing, err
	}
	rec.Onlines = append(rec.Onlines, r.now().UnixMilli())
	return JoinOngoing, r.saveRecord(ctx, chatID, r.selfID, rec)
}

// HasStaleSession 有记录但时间段已关闭
func (r *Recorder) HasStaleSession(ctx context.Context, chatID int64) (bool, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	exists, err := r.cache.Exists(ctx, myredis.TimeRecordKey(r.accountID, chatID))
	if err != nil || !exists {
		return false, err
	}
	hole, err := r.loadHole(ctx, chatID)
	if err != nil {
		return false, err
	}
	return !hole.Open(), nil
}

// Reset 清空记录与时间段，重新为 live 中的参与者和本地用户写入上线时间
func (r *Recorder) Reset(ctx context.Context, chatID int64, live []int64) error {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	if err := r.cache.Delete(ctx, myredis.TimeRecordKey(r.accountID, chatID)); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, myredis.TimeHoleKey(r.accountID, chatID)); err != nil {
		return err
	}
	return r.startLocked(ctx, chatID, live)
}

// Hole 当前通话时间段
func (r *Recorder) Hole(ctx context.Context, chatID int64) (TimeHole, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()
	return r.loadHole(ctx, chatID)
}

// ==================== 存取 ====================

func (r *Recorder) loadHole(ctx context.Context, chatID int64) (TimeHole, error) {
	raw, err := r.cache.HGetAll(ctx, myredis.TimeHoleKey(r.accountID, chatID))
	if err != nil {
		return TimeHole{}, err
	}
	var hole TimeHole
	if v, ok := raw[fieldStartTime]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return TimeHole{}, errorx.Wrapf(err, errorx.CodeParseError, "time hole startTime %q", v)
		}
		hole.StartTime = time.UnixMilli(ms)
	}
	if v, ok := raw[fieldEndTime]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return TimeHole{}, errorx.Wrapf(err, errorx.CodeParseError, "time hole endTime %q", v)
		}
		hole.EndTime = time.UnixMilli(ms)
	}
	return hole, nil
}

// loadRecord 记录不存在时返回空记录；格式错误时记录日志并返回 ok=false，调用方放弃本次更新
func (r *Recorder) loadRecord(ctx context.Context, chatID, userID int64) (*timeRecord, bool, error) {
	payload, exists, err := r.cache.HGet(ctx, myredis.TimeRecordKey(r.accountID, chatID), formatID(userID))
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return newTimeRecord(), true, nil
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		zap.L().Error("时间记录格式错误，放弃本次更新",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(err))
		return nil, false, nil
	}
	return rec, true, nil
}

func (r *Recorder) saveRecord(ctx context.Context, chatID, userID int64, rec *timeRecord) error {
	return r.saveField(ctx, chatID, formatID(userID), rec)
}

func (r *Recorder) saveField(ctx context.Context, chatID int64, field string, rec *timeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeParseError, "marshal time record")
	}
	return r.cache.HSet(ctx, myredis.TimeRecordKey(r.accountID, chatID), field, string(data))
}

func decodeRecord(payload string) (*timeRecord, error) {
	rec := newTimeRecord()
	if err := json.Unmarshal([]byte(payload), rec); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeParseError, "unmarshal time record")
	}
	if rec.Onlines == nil {
		rec.Onlines = []int64{}
	}
	if rec.Offlines == nil {
		rec.Offlines = []int64{}
	}
	sort.Slice(rec.Onlines, func(i, j int) bool { return rec.Onlines[i] < rec.Onlines[j] })
	sort.Slice(rec.Offlines, func(i, j int) bool { return rec.Offlines[i] < rec.Offlines[j] })
	return rec, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
