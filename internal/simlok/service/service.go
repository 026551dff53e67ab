package service

import (
	"github.com/asmorodws/simlok2-sub003/internal/simlok/repository"
	"github.com/asmorodws/simlok2-sub003/internal/simlok/sse"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Submission *SubmissionService
	Numbering  *NumberingService
}

// NewServices 创建服务集合；rdb 为 nil 时编号只依赖数据库
func NewServices(repos *repository.Repositories, rdb *redis.Client, hub *sse.Hub, logger *zap.Logger) *Services {
	numbering := NewNumberingService(repos.Submission, rdb, logger)
	return &Services{
		Submission: NewSubmissionService(repos.Submission, repos.Scan, numbering, hub, logger),
		Numbering:  numbering,
	}
}
