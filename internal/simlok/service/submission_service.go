package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/repository"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/roster"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/sse"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 推送动作
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionReviewed      = "reviewed"
	ActionApproved      = "approved"
	ActionRejected      = "rejected"
	ActionResubmitted   = "resubmitted"
	ActionWorkerDeleted = "worker_deleted"
	ActionScanned       = "scanned"
)

// ErrNotApproved 未批准的申请不能登记扫码
var ErrNotApproved = errors.New("submission is not approved")

// SubmissionService 申请服务
type SubmissionService struct {
	repo      *repository.SubmissionRepository
	scans     *repository.ScanRepository
	numbering *NumberingService
	hub       *sse.Hub
	logger    *zap.Logger
	now       func() time.Time
}

// NewSubmissionService 创建申请服务
func NewSubmissionService(repo *repository.SubmissionRepository, scans *repository.ScanRepository, numbering *NumberingService, hub *sse.Hub, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		repo:      repo,
		scans:     scans,
		numbering: numbering,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SubmissionService) publish(ctx context.Context, id, action string) {
	if s.hub != nil {
		s.hub.PublishSubmissionUpdate(ctx, id, action)
	}
}

// load 读取申请并校验 If-Match 版本；version 为 0 表示不校验
func (s *SubmissionService) load(ctx context.Context, id string, version int) (*entity.Submission, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if version > 0 && version != sub.Version {
		return nil, repository.ErrVersionConflict
	}
	return sub, nil
}

// Get 获取申请详情
func (s *SubmissionService) Get(ctx context.Context, id string) (*entity.Submission, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 供应商提交申请，状态固定为待审核
func (s *SubmissionService) Create(ctx context.Context, sub *entity.Submission, vendorID string) (*entity.Submission, error) {
	if err := validation.ValidateSubmissionForCreate(sub).Err(); err != nil {
		return nil, err
	}

	sub.ID = uuid.New().String()
	sub.VendorID = vendorID
	sub.ReviewStatus = entity.ReviewStatusPending
	sub.ApprovalStatus = entity.ApprovalStatusPending
	sub.Version = 1
	sub.SimlokNumber = ""
	sub.SimlokDate = entity.Date{}
	sub.ReviewedBy, sub.ReviewedAt = "", nil
	sub.ApprovedBy, sub.ApprovedAt = "", nil
	if sub.WorkerCount == 0 {
		sub.WorkerCount = len(sub.Workers)
	}
	for i := range sub.Documents {
		sub.Documents[i].ID = uuid.New().String()
		sub.Documents[i].SubmissionID = sub.ID
	}
	assignWorkerIDs(sub.ID, sub.Workers)

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("submission created", zap.String("submission_id", sub.ID), zap.String("vendor_id", vendorID))
	s.publish(ctx, sub.ID, ActionCreated)
	return sub, nil
}

// assignWorkerIDs 为本地临时条目分配持久ID
func assignWorkerIDs(submissionID string, workers []entity.Worker) {
	for i := range workers {
		if workers[i].IsTemporary() {
			workers[i].ID = uuid.New().String()
		}
		workers[i].SubmissionID = submissionID
	}
}

// Update 通用字段更新（排期、名单、申报人数）
func (s *SubmissionService) Update(ctx context.Context, id string, version int, patch entity.SubmissionPatch) (*entity.Submission, error) {
	sub, err := s.load(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return sub, nil
	}
	if !lifecycle.Editable(sub) {
		return nil, lifecycle.ErrFrozen
	}

	patch.Apply(sub)

	var r validation.Result
	if patch.ImplementationStartDate != nil || patch.ImplementationEndDate != nil ||
		patch.WorkingHours != nil || patch.HolidayWorkingHours != nil {
		r = validation.ValidateSchedule(sub.ImplementationStartDate, sub.ImplementationEndDate,
			sub.WorkingHours, sub.HolidayWorkingHours)
	}
	if patch.Workers != nil {
		r.Failures = append(r.Failures, validation.ValidateRoster(sub.Workers).Failures...)
	}
	if sub.WorkerCount < 0 || sub.WorkerCount > roster.MaxDeclaredCount {
		r.Failures = append(r.Failures, validation.Failure{
			Field:   "worker_count",
			Message: "worker_count is out of range",
		})
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	if patch.Workers != nil {
		assignWorkerIDs(sub.ID, sub.Workers)
	}
	if err := s.repo.SaveVersioned(ctx, sub, patch.Workers != nil); err != nil {
		return nil, err
	}
	s.publish(ctx, sub.ID, ActionUpdated)
	return sub, nil
}

// Review 审核人提交审核结论
func (s *SubmissionService) Review(ctx context.Context, id string, version int, in validation.ReviewInput, reviewerID string) (*entity.Submission, error) {
	sub, err := s.load(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ApplyReview(sub, in, reviewerID, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveVersioned(ctx, sub, false); err != nil {
		return nil, err
	}
	s.logger.Info("submission reviewed",
		zap.String("submission_id", sub.ID),
		zap.String("review_status", string(sub.ReviewStatus)),
		zap.String("reviewer_id", reviewerID))
	s.publish(ctx, sub.ID, ActionReviewed)
	return sub, nil
}

// Approve 审批人作出最终决定
func (s *SubmissionService) Approve(ctx context.Context, id string, version int, in validation.ApprovalInput, approverID string) (*entity.Submission, error) {
	sub, err := s.load(ctx, id, version)
	if err != nil {
		return nil, err
	}
	in.SimlokNumber = strings.TrimSpace(in.SimlokNumber)
	hadNumber := sub.SimlokNumber != ""
	if err := lifecycle.ApplyApproval(sub, in, approverID, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveVersioned(ctx, sub, false); err != nil {
		return nil, err
	}

	action := ActionRejected
	if sub.ApprovalStatus == entity.ApprovalStatusApproved {
		action = ActionApproved
		if !hadNumber && s.numbering != nil {
			s.numbering.Advance(ctx, sub.SimlokDate.Year())
		}
	}
	s.logger.Info("submission decided",
		zap.String("submission_id", sub.ID),
		zap.String("approval_status", string(sub.ApprovalStatus)),
		zap.String("approver_id", approverID))
	s.publish(ctx, sub.ID, action)
	return sub, nil
}

// Resubmit 供应商在审核不通过后重新提交
func (s *SubmissionService) Resubmit(ctx context.Context, id string, version int) (*entity.Submission, error) {
	sub, err := s.load(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ApplyResubmit(sub); err != nil {
		return nil, err
	}
	if err := s.repo.SaveVersioned(ctx, sub, false); err != nil {
		return nil, err
	}
	s.publish(ctx, sub.ID, ActionResubmitted)
	return sub, nil
}

// DeleteWorker 删除单个工人
func (s *SubmissionService) DeleteWorker(ctx context.Context, id, workerID string) error {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !lifecycle.Editable(sub) {
		return lifecycle.ErrFrozen
	}
	if err := s.repo.DeleteWorker(ctx, id, workerID); err != nil {
		return err
	}
	s.publish(ctx, id, ActionWorkerDeleted)
	return nil
}

// ListWorkers 获取工人名单
func (s *SubmissionService) ListWorkers(ctx context.Context, id string) ([]entity.Worker, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListWorkers(ctx, id)
}

// ListScans 获取扫码记录
func (s *SubmissionService) ListScans(ctx context.Context, id string) ([]entity.ScanRecord, error) {
	if err := s.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	return s.scans.ListBySubmission(ctx, id)
}

// RecordScan 登记一次扫码核验，仅限已批准的申请
func (s *SubmissionService) RecordScan(ctx context.Context, id string, record *entity.ScanRecord) (*entity.ScanRecord, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.ApprovalStatus != entity.ApprovalStatusApproved {
		return nil, ErrNotApproved
	}
	record.ID = uuid.New().String()
	record.SubmissionID = id
	if record.ScannedAt.IsZero() {
		record.ScannedAt = s.now()
	}
	if err := s.scans.Create(ctx, record); err != nil {
		return nil, err
	}
	s.publish(ctx, id, ActionScanned)
	return record, nil
}

// NextSimlokNumber 建议下一个编号
func (s *SubmissionService) NextSimlokNumber(ctx context.Context, year int) (string, error) {
	return s.numbering.Next(ctx, year)
}

func (s *SubmissionService) ensureExists(ctx context.Context, id string) error {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}
