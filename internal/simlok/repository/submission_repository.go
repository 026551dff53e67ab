package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"gorm.io/gorm"
)

// SubmissionRepository SIMLOK 申请仓库
type SubmissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository 创建申请仓库
func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID 根据ID查找申请（含支持文件与工人名单）
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*entity.Submission, error) {
	var sub entity.Submission
	err := r.db.WithContext(ctx).
		Preload("Documents").
		Preload("Workers", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Create 创建申请，关联的文件与工人一并写入
func (r *SubmissionRepository) Create(ctx context.Context, sub *entity.Submission) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// SaveVersioned 以乐观锁写回申请：仅当库中版本等于 sub.Version 时成功，成功后版本 +1。
// replaceWorkers 为 true 时在同一事务内以 sub.Workers 替换名单。
func (r *SubmissionRepository) SaveVersioned(ctx context.Context, sub *entity.Submission, replaceWorkers bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := versionedUpdate(tx, sub)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&entity.Submission{}).Where("id = ?", sub.ID).Count(&count).Error; err != nil {
				return err
			}
			return missError(count)
		}

		if replaceWorkers {
			if err := replaceRoster(tx, sub.ID, sub.Workers); err != nil {
				return err
			}
		}
		sub.Version++
		return nil
	})
}

// versionedUpdate 条件更新：WHERE id AND version，版本在库内自增
func versionedUpdate(tx *gorm.DB, sub *entity.Submission) *gorm.DB {
	return tx.Model(&entity.Submission{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Updates(map[string]interface{}{
			"version":                   gorm.Expr("version + 1"),
			"review_status":             sub.ReviewStatus,
			"approval_status":           sub.ApprovalStatus,
			"implementation_start_date": sub.ImplementationStartDate,
			"implementation_end_date":   sub.ImplementationEndDate,
			"working_hours":             sub.WorkingHours,
			"holiday_working_hours":     sub.HolidayWorkingHours,
			"content_template":          sub.ContentTemplate,
			"simlok_number":             sub.SimlokNumber,
			"simlok_date":               sub.SimlokDate,
			"note_for_approver":         sub.NoteForApprover,
			"note_for_vendor":           sub.NoteForVendor,
			"worker_count":              sub.WorkerCount,
			"reviewed_by":               sub.ReviewedBy,
			"reviewed_at":               sub.ReviewedAt,
			"approved_by":               sub.ApprovedBy,
			"approved_at":               sub.ApprovedAt,
		})
}

// missError 条件更新未命中时区分：记录不存在 / 版本已变
func missError(count int64) error {
	if count == 0 {
		return ErrNotFound
	}
	return ErrVersionConflict
}

// replaceRoster 删除名单外的工人，写入（新增或覆盖）名单内的工人
func replaceRoster(tx *gorm.DB, submissionID string, workers []entity.Worker) error {
	if err := pruneRoster(tx, submissionID, workers).Error; err != nil {
		return fmt.Errorf("prune roster: %w", err)
	}
	for i := range workers {
		workers[i].SubmissionID = submissionID
		if err := tx.Save(&workers[i]).Error; err != nil {
			return fmt.Errorf("save worker %s: %w", workers[i].ID, err)
		}
	}
	return nil
}

// pruneRoster 删除不在 workers 中的工人；workers 为空时清空名单
func pruneRoster(tx *gorm.DB, submissionID string, workers []entity.Worker) *gorm.DB {
	keep := make([]string, 0, len(workers))
	for _, w := range workers {
		keep = append(keep, w.ID)
	}
	del := tx.Where("submission_id = ?", submissionID)
	if len(keep) > 0 {
		del = del.Where("id NOT IN ?", keep)
	}
	return del.Delete(&entity.Worker{})
}

// DeleteWorker 删除单个工人，不改变申请版本
func (r *SubmissionRepository) DeleteWorker(ctx context.Context, submissionID, workerID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND submission_id = ?", workerID, submissionID).
		Delete(&entity.Worker{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListWorkers 获取工人名单
func (r *SubmissionRepository) ListWorkers(ctx context.Context, submissionID string) ([]entity.Worker, error) {
	var workers []entity.Worker
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC, id ASC").
		Find(&workers).Error
	return workers, err
}

// Exists 申请是否存在
func (r *SubmissionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Submission{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// CountApprovedInYear 统计某年已发放编号的申请数
func (r *SubmissionRepository) CountApprovedInYear(ctx context.Context, year int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Submission{}).
		Where("approval_status = ? AND simlok_number <> '' AND EXTRACT(YEAR FROM simlok_date) = ?",
			entity.ApprovalStatusApproved, year).
		Count(&count).Error
	return count, err
}
