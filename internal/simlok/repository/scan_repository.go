package repository

import (
	"context"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"gorm.io/gorm"
)

// ScanRepository 扫码记录仓库
type ScanRepository struct {
	db *gorm.DB
}

// NewScanRepository 创建扫码记录仓库
func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// ListBySubmission 按时间倒序获取扫码记录
func (r *ScanRepository) ListBySubmission(ctx context.Context, submissionID string) ([]entity.ScanRecord, error) {
	var records []entity.ScanRecord
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("scanned_at DESC").
		Find(&records).Error
	return records, err
}

// Create 新增扫码记录
func (r *ScanRepository) Create(ctx context.Context, record *entity.ScanRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}
