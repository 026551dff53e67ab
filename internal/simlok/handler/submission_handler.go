package handler

import (
	"strconv"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/entity"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/service"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubmissionHandler SIMLOK 申请处理器
type SubmissionHandler struct {
	svc    *service.SubmissionService
	logger *zap.Logger
}

// NewSubmissionHandler 创建申请处理器
func NewSubmissionHandler(svc *service.SubmissionService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{svc: svc, logger: logger}
}

func (h *SubmissionHandler) respond(c *gin.Context, sub *entity.Submission, err error) {
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	SetETag(c, sub.Version)
	Success(c, sub)
}

// Create POST /submissions
func (h *SubmissionHandler) Create(c *gin.Context) {
	var sub entity.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	created, err := h.svc.Create(c.Request.Context(), &sub, GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	SetETag(c, created.Version)
	Created(c, created)
}

// Get GET /submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	h.respond(c, sub, err)
}

// Update PATCH /submissions/:id
func (h *SubmissionHandler) Update(c *gin.Context) {
	version, err := IfMatchVersion(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	var patch entity.SubmissionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	sub, err := h.svc.Update(c.Request.Context(), c.Param("id"), version, patch)
	h.respond(c, sub, err)
}

// Review PATCH /submissions/:id/review
func (h *SubmissionHandler) Review(c *gin.Context) {
	version, err := IfMatchVersion(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	var in validation.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	sub, err := h.svc.Review(c.Request.Context(), c.Param("id"), version, in, GetUserID(c))
	h.respond(c, sub, err)
}

// Approve PATCH /submissions/:id/approve
func (h *SubmissionHandler) Approve(c *gin.Context) {
	version, err := IfMatchVersion(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	var in validation.ApprovalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	sub, err := h.svc.Approve(c.Request.Context(), c.Param("id"), version, in, GetUserID(c))
	h.respond(c, sub, err)
}

// Resubmit POST /submissions/:id/resubmit
func (h *SubmissionHandler) Resubmit(c *gin.Context) {
	version, err := IfMatchVersion(c)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	sub, err := h.svc.Resubmit(c.Request.Context(), c.Param("id"), version)
	h.respond(c, sub, err)
}

// ListWorkers GET /submissions/:id/workers
func (h *SubmissionHandler) ListWorkers(c *gin.Context) {
	workers, err := h.svc.ListWorkers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if workers == nil {
		workers = []entity.Worker{}
	}
	Success(c, ListResponse{Items: workers})
}

// DeleteWorker DELETE /submissions/:id/workers/:workerId
func (h *SubmissionHandler) DeleteWorker(c *gin.Context) {
	if err := h.svc.DeleteWorker(c.Request.Context(), c.Param("id"), c.Param("workerId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, nil)
}

// ListScans GET /submissions/:id/scans
func (h *SubmissionHandler) ListScans(c *gin.Context) {
	scans, err := h.svc.ListScans(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if scans == nil {
		scans = []entity.ScanRecord{}
	}
	Success(c, ListResponse{Items: scans})
}

// RecordScan POST /submissions/:id/scans
func (h *SubmissionHandler) RecordScan(c *gin.Context) {
	var req struct {
		Location string `json:"location" binding:"required"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	name := c.GetString("user_name")
	if name == "" {
		name = GetUserID(c)
	}
	record, err := h.svc.RecordScan(c.Request.Context(), c.Param("id"), &entity.ScanRecord{
		ScannedBy: name,
		Location:  req.Location,
		Notes:     req.Notes,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Created(c, record)
}

// NextNumber GET /submissions/simlok/next-number?year=YYYY
func (h *SubmissionHandler) NextNumber(c *gin.Context) {
	year := time.Now().Year()
	if y := c.Query("year"); y != "" {
		v, err := strconv.Atoi(y)
		if err != nil || v < 2000 || v > 9999 {
			BadRequest(c, "year must be a four-digit year")
			return
		}
		year = v
	}
	number, err := h.svc.NextSimlokNumber(c.Request.Context(), year)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	Success(c, gin.H{"simlok_number": number, "year": year})
}
