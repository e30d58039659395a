// Package repository 提供数据访问层的具体实现
// 本文件实现 ChannelAdminRepository
package repository

import (
	"kama_call_ring/internal/model"

	"gorm.io/gorm"
)

// channelAdminRepository ChannelAdminRepository 接口的实现
type channelAdminRepository struct {
	db *gorm.DB
}

// NewChannelAdminRepository 创建 ChannelAdminRepository 实例
func NewChannelAdminRepository(db *gorm.DB) ChannelAdminRepository {
	return &channelAdminRepository{db: db}
}

// LoadAdminIDs 读取管理员 ID
func (r *channelAdminRepository) LoadAdminIDs(chatID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.Model(&model.ChannelAdmin{}).Where("chat_id = ?", chatID).Order("id").Pluck("user_id", &ids).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询频道管理员 chat_id=%d", chatID)
	}
	return ids, nil
}

// ReplaceAdmins 整体替换管理员列表
func (r *channelAdminRepository) ReplaceAdmins(chatID int64, userIDs []int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("chat_id = ?", chatID).Delete(&model.ChannelAdmin{}).Error; err != nil {
			return wrapDBErrorf(err, "清理频道管理员 chat_id=%d", chatID)
		}
		if len(userIDs) == 0 {
			return nil
		}
		rows := make([]model.ChannelAdmin, 0, len(userIDs))
		for _, id := range userIDs {
			rows = append(rows, model.ChannelAdmin{ChatID: chatID, UserID: id})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return wrapDBErrorf(err, "写入频道管理员 chat_id=%d", chatID)
		}
		return nil
	})
}
