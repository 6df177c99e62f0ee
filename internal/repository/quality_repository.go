package repository

import (
	"context"

	"gorm.io/gorm"

	"evidence-rag-go/internal/model"
)

// QualityRepository 定义了质量记录的持久化操作。
type QualityRepository interface {
	Append(ctx context.Context, rec model.QualityRecord) error
	ListRecent(ctx context.Context, userID uint, limit int) ([]model.QualityRecord, error)
}

type qualityRepository struct {
	db *gorm.DB
}

// NewQualityRepository 创建一个新的 QualityRepository 实例。
func NewQualityRepository(db *gorm.DB) QualityRepository {
	return &qualityRepository{db: db}
}

// Append 插入一条质量记录，记录只追加不更新。
func (r *qualityRepository) Append(ctx context.Context, rec model.QualityRecord) error {
	return r.db.WithContext(ctx).Create(&rec).Error
}

// ListRecent 按时间倒序列出某个用户最近的质量记录。
func (r *qualityRepository) ListRecent(ctx context.Context, userID uint, limit int) ([]model.QualityRecord, error) {
	var records []model.QualityRecord
	err := listRecentScope(r.db.WithContext(ctx), userID, limit).Find(&records).Error
	return records, err
}

func listRecentScope(db *gorm.DB, userID uint, limit int) *gorm.DB {
	return db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit)
}
