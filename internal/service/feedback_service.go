package service

import (
	"context"
	"errors"
	"fmt"

	"datapilot-go/internal/model"
	"datapilot-go/internal/repository"
	"datapilot-go/pkg/log"

	"gorm.io/gorm"
)

// ErrExampleNotFound 表示反馈引用的示例不存在或不属于该租户。
var ErrExampleNotFound = errors.New("example not found")

// FeedbackRequest 是反馈接口的入参。
type FeedbackRequest struct {
	ExampleKey string `json:"exampleKey" binding:"required"`
	Rating     int    `json:"rating"`
	Helpful    bool   `json:"helpful"`
	Comment    string `json:"comment"`
}

// FeedbackService 定义了用户反馈的处理接口。
type FeedbackService interface {
	Submit(ctx context.Context, tenantID string, req FeedbackRequest) error
}

type feedbackService struct {
	recordRepo  repository.RecordRepository
	exampleRepo repository.ExampleRepository
}

// NewFeedbackService 创建一个新的 FeedbackService 实例。
func NewFeedbackService(recordRepo repository.RecordRepository, exampleRepo repository.ExampleRepository) FeedbackService {
	return &feedbackService{
		recordRepo:  recordRepo,
		exampleRepo: exampleRepo,
	}
}

// Submit 保存反馈并把评分点更新到示例向量库。
// 写回时已保存 ES 文档 ID，评分更新是真正的点更新而非按内容查找。
func (s *feedbackService) Submit(ctx context.Context, tenantID string, req FeedbackRequest) error {
	if req.Rating < -1 || req.Rating > 5 {
		return errors.New("rating 超出允许范围")
	}

	// 租户校验：示例必须属于提交反馈的租户
	if _, err := s.recordRepo.FindByKey(tenantID, req.ExampleKey); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrExampleNotFound
		}
		return fmt.Errorf("failed to find example record: %w", err)
	}

	if err := s.recordRepo.CreateFeedback(&model.Feedback{
		TenantID:   tenantID,
		ExampleKey: req.ExampleKey,
		Rating:     req.Rating,
		Helpful:    req.Helpful,
		Comment:    req.Comment,
	}); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}

	if err := s.recordRepo.UpdateRating(tenantID, req.ExampleKey, req.Rating); err != nil {
		log.Errorf("[Feedback] 更新示例记录评分失败, key=%s: %v", req.ExampleKey, err)
	}

	// 向量库的评分更新属于增强路径：失败记录后忽略，后续检索仍按旧评分过滤
	if err := s.exampleRepo.UpdateRating(ctx, req.ExampleKey, req.Rating); err != nil {
		log.Errorf("[Feedback] 更新示例向量库评分失败, key=%s: %v", req.ExampleKey, err)
	}

	log.Infof("[Feedback] 已记录反馈, tenant: %s, key: %s, rating: %d", tenantID, req.ExampleKey, req.Rating)
	return nil
}
