package entity

import (
	"strings"
	"time"
)

// TempWorkerPrefix 本地新增、尚未持久化的工人ID前缀
const TempWorkerPrefix = "temp-"

// Worker 工人名单条目，条目存在时所有字段必填
type Worker struct {
	ID                string    `json:"id" gorm:"primaryKey;size:64"`
	SubmissionID      string    `json:"submission_id" gorm:"size:36;not null;index"`
	Name              string    `json:"worker_name" gorm:"size:200;not null" validate:"required"`
	Photo             string    `json:"worker_photo" gorm:"size:512" validate:"required"`
	HSSEPassNumber    string    `json:"hsse_pass_number" gorm:"size:100" validate:"required"`
	HSSEPassValidThru Date      `json:"hsse_pass_valid_thru" validate:"required"`
	HSSEPassDocument  string    `json:"hsse_pass_document_upload" gorm:"size:512" validate:"required"`
	CreatedAt         time.Time `json:"created_at"`
}

func (Worker) TableName() string {
	return "simlok_workers"
}

// IsTemporary 是否为从未持久化的本地条目
func (w Worker) IsTemporary() bool {
	return w.ID == "" || strings.HasPrefix(w.ID, TempWorkerPrefix)
}
