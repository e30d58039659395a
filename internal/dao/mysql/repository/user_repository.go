// Package repository 提供数据访问层的具体实现
// 本文件实现 UserRepository
package repository

import (
	"kama_call_ring/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository UserRepository 接口的实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建 UserRepository 实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByIDs 批量查找
func (r *userRepository) FindByIDs(userIDs []int64) ([]model.UserInfo, error) {
	var users []model.UserInfo
	if len(userIDs) == 0 {
		return users, nil
	}
	if err := r.db.Where("user_id IN ?", userIDs).Order("id").Find(&users).Error; err != nil {
		return nil, wrapDBError(err, "批量查询用户")
	}
	return users, nil
}

// Save 按用户 ID 插入或更新
func (r *userRepository) Save(user *model.UserInfo) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "user_name", "updated_at"}),
	}).Create(user).Error; err != nil {
		return wrapDBErrorf(err, "保存用户 user_id=%d", user.UserID)
	}
	return nil
}
