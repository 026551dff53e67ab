package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/asmorodws/simlok2-sub003/internal/simlok/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FormatSimlokNumber SIMLOK 编号格式：NNN/S00330/<年>-S0
func FormatSimlokNumber(seq int64, year int) string {
	return fmt.Sprintf("%03d/S00330/%d-S0", seq, year)
}

func sequenceKey(year int) string {
	return fmt.Sprintf("simlok:seq:%d", year)
}

// NumberingService SIMLOK 编号服务
// Redis 保存每年已发放的序号，不可用时以数据库中当年已批准数量为准。
type NumberingService struct {
	repo   *repository.SubmissionRepository
	rdb    *redis.Client
	logger *zap.Logger
}

// NewNumberingService 创建编号服务，rdb 可为 nil
func NewNumberingService(repo *repository.SubmissionRepository, rdb *redis.Client, logger *zap.Logger) *NumberingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NumberingService{repo: repo, rdb: rdb, logger: logger}
}

// issued 当年已发放的序号
func (s *NumberingService) issued(ctx context.Context, year int) (int64, error) {
	count, err := s.repo.CountApprovedInYear(ctx, year)
	if err != nil {
		return 0, fmt.Errorf("count approved submissions: %w", err)
	}
	if s.rdb == nil {
		return count, nil
	}
	seq, err := s.rdb.Get(ctx, sequenceKey(year)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		s.logger.Warn("read simlok sequence failed, using database count", zap.Int("year", year), zap.Error(err))
	case seq > count:
		count = seq
	}
	return count, nil
}

// Next 建议下一个编号，不占用序号
func (s *NumberingService) Next(ctx context.Context, year int) (string, error) {
	n, err := s.issued(ctx, year)
	if err != nil {
		return "", err
	}
	return FormatSimlokNumber(n+1, year), nil
}

// Advance 批准后推进序号；失败只记录日志
func (s *NumberingService) Advance(ctx context.Context, year int) {
	if s.rdb == nil {
		return
	}
	key := sequenceKey(year)
	seq, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("advance simlok sequence failed", zap.Int("year", year), zap.Error(err))
		return
	}
	count, err := s.repo.CountApprovedInYear(ctx, year)
	if err == nil && count > seq {
		if err := s.rdb.Set(ctx, key, count, 0).Err(); err != nil {
			s.logger.Warn("resync simlok sequence failed", zap.Int("year", year), zap.Error(err))
		}
	}
}
