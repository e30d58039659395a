// Package repository 提供数据访问层的具体实现
// 本文件实现 ChatRepository，会话信息与成员列表
package repository

import (
	"time"

	"kama_call_ring/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// chatRepository ChatRepository 接口的实现
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建 ChatRepository 实例
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// FindFullChat 读取会话信息及成员列表
func (r *chatRepository) FindFullChat(chatID int64) (*model.FullChat, error) {
	var info model.ChatInfo
	if err := r.db.Where("chat_id = ?", chatID).First(&info).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 chat_id=%d", chatID)
	}
	var participants []model.ChatParticipant
	if err := r.db.Where("chat_id = ?", chatID).Order("id").Find(&participants).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话成员 chat_id=%d", chatID)
	}
	return &model.FullChat{Info: info, Participants: participants}, nil
}

// SaveFullChat 覆盖写入，成员列表先删后插
func (r *chatRepository) SaveFullChat(full *model.FullChat) error {
	chatID := full.Info.ChatID
	return r.db.Transaction(func(tx *gorm.DB) error {
		info := full.Info
		info.ID = 0
		if info.SyncedAt.IsZero() {
			info.SyncedAt = time.Now()
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "title", "has_active_call", "synced_at", "updated_at"}),
		}).Create(&info).Error; err != nil {
			return wrapDBErrorf(err, "保存会话 chat_id=%d", chatID)
		}
		if err := tx.Unscoped().Where("chat_id = ?", chatID).Delete(&model.ChatParticipant{}).Error; err != nil {
			return wrapDBErrorf(err, "清理会话成员 chat_id=%d", chatID)
		}
		if len(full.Participants) == 0 {
			return nil
		}
		rows := make([]model.ChatParticipant, 0, len(full.Participants))
		for _, p := range full.Participants {
			rows = append(rows, model.ChatParticipant{ChatID: chatID, UserID: p.UserID, Role: p.Role})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return wrapDBErrorf(err, "写入会话成员 chat_id=%d", chatID)
		}
		return nil
	})
}

// SetActiveCall 更新进行中通话标记
func (r *chatRepository) SetActiveCall(chatID int64, active bool) error {
	res := r.db.Model(&model.ChatInfo{}).Where("chat_id = ?", chatID).Update("has_active_call", active)
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新通话标记 chat_id=%d", chatID)
	}
	if res.RowsAffected == 0 {
		return wrapDBErrorf(gorm.ErrRecordNotFound, "更新通话标记 chat_id=%d", chatID)
	}
	return nil
}
