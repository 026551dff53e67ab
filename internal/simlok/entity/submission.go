package entity

import "time"

// ReviewStatus 审核（技术评审）状态
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "PENDING_REVIEW"
	ReviewStatusMeets    ReviewStatus = "MEETS_REQUIREMENTS"
	ReviewStatusNotMeets ReviewStatus = "NOT_MEETS_REQUIREMENTS"
)

// Valid 是否为已知的审核状态
func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusPending, ReviewStatusMeets, ReviewStatusNotMeets:
		return true
	}
	return false
}

// IsOutcome 是否为审核结论（MEETS / NOT_MEETS）
func (s ReviewStatus) IsOutcome() bool {
	return s == ReviewStatusMeets || s == ReviewStatusNotMeets
}

// ApprovalStatus 审批（最终决定）状态
type ApprovalStatus string

const (
	ApprovalStatusPending       ApprovalStatus = "PENDING_APPROVAL"
	ApprovalStatusPendingReview ApprovalStatus = "PENDING_REVIEW"
	ApprovalStatusApproved      ApprovalStatus = "APPROVED"
	ApprovalStatusRejected      ApprovalStatus = "REJECTED"
)

// Valid 是否为已知的审批状态
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusPendingReview, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	}
	return false
}

// IsDecision 是否为终态审批结论
func (s ApprovalStatus) IsDecision() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// Submission SIMLOK 申请
type Submission struct {
	ID string `json:"id" gorm:"primaryKey;size:36"`

	// 供应商 / 经办人
	VendorName     string `json:"vendor_name" gorm:"size:200;not null"`
	VendorEmail    string `json:"vendor_email" gorm:"size:200"`
	VendorPhone    string `json:"vendor_phone" gorm:"size:50"`
	OfficerName    string `json:"officer_name" gorm:"size:200"`
	JobDescription string `json:"job_description" gorm:"type:text"`
	WorkLocation   string `json:"work_location" gorm:"size:300"`
	WorkFacilities string `json:"work_facilities" gorm:"type:text"`

	// 工作流
	ReviewStatus   ReviewStatus   `json:"review_status" gorm:"size:30;not null;default:'PENDING_REVIEW';index"`
	ApprovalStatus ApprovalStatus `json:"approval_status" gorm:"size:30;not null;default:'PENDING_APPROVAL';index"`

	// 排期（审核人可修改）
	ImplementationStartDate Date   `json:"implementation_start_date"`
	ImplementationEndDate   Date   `json:"implementation_end_date"`
	WorkingHours            string `json:"working_hours" gorm:"size:100"`
	HolidayWorkingHours     string `json:"holiday_working_hours" gorm:"size:100"`
	ContentTemplate         string `json:"content_template" gorm:"type:text"`

	// 审批通过时生成
	SimlokNumber string `json:"simlok_number" gorm:"size:100;index"`
	SimlokDate   Date   `json:"simlok_date"`

	// 备注
	NoteForApprover string `json:"note_for_approver" gorm:"type:text"`
	NoteForVendor   string `json:"note_for_vendor" gorm:"type:text"`

	WorkerCount int `json:"worker_count" gorm:"default:0"`

	// 乐观锁版本号，每次写入 +1
	Version int `json:"version" gorm:"not null;default:1"`

	VendorID   string     `json:"vendor_id" gorm:"size:36;index"`
	ReviewedBy string     `json:"reviewed_by" gorm:"size:36"`
	ReviewedAt *time.Time `json:"reviewed_at"`
	ApprovedBy string     `json:"approved_by" gorm:"size:36"`
	ApprovedAt *time.Time `json:"approved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// 关联
	Documents []SupportDocument `json:"documents" gorm:"foreignKey:SubmissionID"`
	Workers   []Worker          `json:"workers" gorm:"foreignKey:SubmissionID"`
}

func (Submission) TableName() string {
	return "simlok_submissions"
}

// DocumentsOf 按类别筛选支持文件
func (s *Submission) DocumentsOf(category DocumentCategory) []SupportDocument {
	var docs []SupportDocument
	for _, d := range s.Documents {
		if d.Category == category {
			docs = append(docs, d)
		}
	}
	return docs
}

// Clone 深拷贝，供视图持有独立副本
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	out.Documents = append([]SupportDocument(nil), s.Documents...)
	out.Workers = append([]Worker(nil), s.Workers...)
	if s.ReviewedAt != nil {
		t := *s.ReviewedAt
		out.ReviewedAt = &t
	}
	if s.ApprovedAt != nil {
		t := *s.ApprovedAt
		out.ApprovedAt = &t
	}
	return &out
}

// ScanRecord 扫码记录（门禁核验历史）
type ScanRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	SubmissionID string    `json:"submission_id" gorm:"size:36;not null;index"`
	ScannedBy    string    `json:"scanned_by" gorm:"size:200"`
	Location     string    `json:"location" gorm:"size:300"`
	Notes        string    `json:"notes" gorm:"type:text"`
	ScannedAt    time.Time `json:"scanned_at"`
}

func (ScanRecord) TableName() string {
	return "simlok_scan_records"
}
