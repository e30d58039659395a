package presence

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/pkg/errorx"

	"go.uber.org/zap"
)

// ParticipantRecord 单个参与者在本次通话中的时间记录
type ParticipantRecord struct {
	UserID   int64         `json:"user_id"`
	Onlines  []int64       `json:"onlines"`
	Offlines []int64       `json:"offlines"`
	Duration time.Duration `json:"-"`
	Seconds  int64         `json:"duration_seconds"`
}

// Report 导出格式
type Report struct {
	ChatID    int64               `json:"chat_id"`
	StartTime int64               `json:"start_time,omitempty"`
	EndTime   int64               `json:"end_time,omitempty"`
	Records   []ParticipantRecord `json:"records"`
}

// Records 全部参与者的记录与在线时长，按用户 ID 排序
// 未配对的最后一次上线计到时间段结束，时间段未结束时计到现在
func (r *Recorder) Records(ctx context.Context, chatID int64) ([]ParticipantRecord, error) {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	hole, err := r.loadHole(ctx, chatID)
	if err != nil {
		return nil, err
	}
	raw, err := r.cache.HGetAll(ctx, myredis.TimeRecordKey(r.accountID, chatID))
	if err != nil {
		return nil, err
	}

	until := hole.EndTime
	if until.IsZero() {
		until = r.now()
	}
	out := make([]ParticipantRecord, 0, len(raw))
	for field, payload := range raw {
		uid, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			zap.L().Warn("忽略非法的时间记录字段", zap.Int64("chat_id", chatID), zap.String("field", field))
			continue
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			zap.L().Error("时间记录格式错误，跳过", zap.Int64("chat_id", chatID), zap.Int64("user_id", uid), zap.Error(err))
			continue
		}
		d := onlineDuration(rec, until.UnixMilli())
		out = append(out, ParticipantRecord{
			UserID:   uid,
			Onlines:  rec.Onlines,
			Offlines: rec.Offlines,
			Duration: d,
			Seconds:  int64(d / time.Second),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Export 导出为 JSON
func (r *Recorder) Export(ctx context.Context, chatID int64) ([]byte, error) {
	records, err := r.Records(ctx, chatID)
	if err != nil {
		return nil, err
	}
	hole, err := r.Hole(ctx, chatID)
	if err != nil {
		return nil, err
	}
	report := Report{ChatID: chatID, Records: records}
	if !hole.StartTime.IsZero() {
		report.StartTime = hole.StartTime.UnixMilli()
	}
	if !hole.EndTime.IsZero() {
		report.EndTime = hole.EndTime.UnixMilli()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeParseError, "marshal time record report")
	}
	return data, nil
}

// onlineDuration 按时间顺序扫描上下线事件累计在线时长，重复的上线或下线忽略
func onlineDuration(rec *timeRecord, until int64) time.Duration {
	type event struct {
		at     int64
		online bool
	}
	events := make([]event, 0, len(rec.Onlines)+len(rec.Offlines))
	for _, ts := range rec.Onlines {
		events = append(events, event{at: ts, online: true})
	}
	for _, ts := range rec.Offlines {
		events = append(events, event{at: ts})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at < events[j].at })

	var total int64
	var since int64
	on := false
	for _, e := range events {
		switch {
		case e.online && !on:
			on, since = true, e.at
		case !e.online && on:
			on = false
			total += e.at - since
		}
	}
	if on && until > since {
		total += until - since
	}
	return time.Duration(total) * time.Millisecond
}
