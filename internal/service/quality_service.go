package service

import (
	"context"
	"fmt"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/pipeline"
	"evidence-rag-go/internal/repository"
	"evidence-rag-go/pkg/log"
)

const (
	defaultQualityLimit = 20
	maxQualityLimit     = 100
)

// QualityService 接口定义了质量记录的查询操作，供监控方拉取问答质量快照。
type QualityService interface {
	Recent(ctx context.Context, userID uint, limit *int) ([]model.QualityRecord, error)
}

type qualityService struct {
	repo repository.QualityRepository
}

// NewQualityService 创建一个新的 QualityService 实例。
func NewQualityService(repo repository.QualityRepository) QualityService {
	return &qualityService{repo: repo}
}

// Recent 返回用户最近的质量记录。limit 为空取默认值，超过上限按上限截断。
func (s *qualityService) Recent(ctx context.Context, userID uint, limit *int) ([]model.QualityRecord, error) {
	n := defaultQualityLimit
	if limit != nil {
		n = *limit
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", pipeline.ErrInvalidQuery)
	}
	if n > maxQualityLimit {
		n = maxQualityLimit
	}
	records, err := s.repo.ListRecent(ctx, userID, n)
	if err != nil {
		log.Errorf("[QualityService] 查询质量记录失败, user: %d, err: %v", userID, err)
		return nil, fmt.Errorf("failed to list quality records: %w", err)
	}
	if records == nil {
		records = []model.QualityRecord{}
	}
	return records, nil
}
