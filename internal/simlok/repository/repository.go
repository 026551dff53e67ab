package repository

import (
	"errors"

	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict 写入基于过期版本
	ErrVersionConflict = errors.New("version conflict")
)

// Repositories 仓库集合
type Repositories struct {
	Submission *SubmissionRepository
	Scan       *ScanRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Submission: NewSubmissionRepository(db),
		Scan:       NewScanRepository(db),
	}
}
