package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asmorodws/simlok2-sub003/internal/middleware"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/lifecycle"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/repository"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/service"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/sse"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 业务错误码
const (
	CodeValidation = 40000
	CodeNotFound   = 40400
	CodeConflict   = 40900
	CodeTransition = 42200
	CodeInternal   = 50000
)

// RoleVerifier 门禁核验人员，可登记扫码
const RoleVerifier = "verifier"

// Handlers 处理器集合
type Handlers struct {
	Submission *SubmissionHandler
	SSE        *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub, heartbeat time.Duration, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		Submission: NewSubmissionHandler(svc.Submission, logger),
		SSE:        NewSSEHandler(hub, heartbeat),
	}
}

// SSEPath 推送流路径（相对 /api/v1），gzip 需排除
const SSEPath = "/sse/events"

// Register 在已认证的 /api/v1 分组上注册路由
func (h *Handlers) Register(api *gin.RouterGroup) {
	vendor := string(lifecycle.RoleVendor)
	reviewer := string(lifecycle.RoleReviewer)
	approver := string(lifecycle.RoleApprover)

	api.GET(SSEPath, h.SSE.Stream)

	subs := api.Group("/submissions")
	{
		subs.POST("", middleware.RequireRole(vendor), h.Submission.Create)
		subs.GET("/simlok/next-number", middleware.RequireRole(approver), h.Submission.NextNumber)
		subs.GET("/:id", h.Submission.Get)
		subs.PATCH("/:id", middleware.RequireRole(vendor, reviewer), h.Submission.Update)
		subs.PATCH("/:id/review", middleware.RequireRole(reviewer), h.Submission.Review)
		subs.PATCH("/:id/approve", middleware.RequireRole(approver), h.Submission.Approve)
		subs.POST("/:id/resubmit", middleware.RequireRole(vendor), h.Submission.Resubmit)
		subs.GET("/:id/workers", h.Submission.ListWorkers)
		subs.DELETE("/:id/workers/:workerId", middleware.RequireRole(vendor, reviewer), h.Submission.DeleteWorker)
		subs.GET("/:id/scans", h.Submission.ListScans)
		subs.POST("/:id/scans", middleware.RequireRole(RoleVerifier, approver), h.Submission.RecordScan)
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 带数据的错误响应（如字段校验失败列表）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, CodeValidation, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, CodeNotFound, message)
}

// Conflict 版本冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, CodeConflict, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, CodeInternal, message)
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// failuresPayload 校验失败时 data 的结构
type failuresPayload struct {
	Failures []validation.Failure `json:"failures"`
}

// respondError 将服务层错误映射为响应
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		verr *validation.Error
		terr *lifecycle.TransitionError
	)
	switch {
	case errors.As(err, &verr):
		ErrorWithData(c, CodeValidation, verr.First().Message, failuresPayload{Failures: verr.Failures})
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, "submission not found")
	case errors.Is(err, repository.ErrVersionConflict):
		Conflict(c, "submission was modified by someone else; reload and retry")
	case errors.Is(err, lifecycle.ErrFrozen), errors.Is(err, lifecycle.ErrNotReviewed),
		errors.Is(err, service.ErrNotApproved), errors.As(err, &terr):
		Error(c, CodeTransition, err.Error())
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		InternalError(c, "internal error")
	}
}

// SetETag 写入版本号
func SetETag(c *gin.Context, version int) {
	c.Header("ETag", strconv.Quote(strconv.Itoa(version)))
}

// IfMatchVersion 解析 If-Match 头；缺省或 * 返回 0
func IfMatchVersion(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid If-Match header %q", c.GetHeader("If-Match"))
	}
	return v, nil
}
