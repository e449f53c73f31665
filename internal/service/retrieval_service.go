// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"datapilot-go/internal/config"
	"datapilot-go/internal/model"
	"datapilot-go/internal/repository"
	"datapilot-go/pkg/embedding"
	"datapilot-go/pkg/log"
)

// simpleQueryMaxLen 以下的问题走快速路径，示例检索对它们没有价值。
const simpleQueryMaxLen = 10

// 问候与泛化求助类输入同样跳过检索。
var simplePhrases = []string{
	"hi", "hello", "hey", "thanks", "thank you", "help",
	"what can you do", "你好", "您好", "在吗", "谢谢", "帮助", "你能做什么",
}

// RetrievalService 定义了示例检索与重排序的操作接口。
type RetrievalService interface {
	// Retrieve 返回按修正相似度排序、截断到 limit 的示例列表。
	// 任何一步失败都退化为空列表，聊天主流程在零示例下照常进行。
	Retrieve(ctx context.Context, question, tenantID string, limit int) []model.RetrievedExample
	// IsSimpleQuery 判断问题是否命中快速路径。
	IsSimpleQuery(question string) bool
}

type retrievalService struct {
	cache       *embedding.Cache
	exampleRepo repository.ExampleRepository
	cfg         config.RetrievalConfig
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(cache *embedding.Cache, exampleRepo repository.ExampleRepository, cfg config.RetrievalConfig) RetrievalService {
	return &retrievalService{
		cache:       cache,
		exampleRepo: exampleRepo,
		cfg:         cfg,
	}
}

// IsSimpleQuery 识别问候、极短输入与泛化求助，这些输入跳过整个检索阶段。
func (s *retrievalService) IsSimpleQuery(question string) bool {
	normalized := strings.ToLower(strings.TrimSpace(question))
	if normalized == "" {
		return true
	}
	if utf8.RuneCountInString(normalized) < simpleQueryMaxLen {
		return true
	}
	for _, phrase := range simplePhrases {
		if normalized == phrase || strings.HasPrefix(normalized, phrase+" ") {
			return true
		}
	}
	return false
}

// Retrieve 执行检索与重排序流水线。
func (s *retrievalService) Retrieve(ctx context.Context, question, tenantID string, limit int) []model.RetrievedExample {
	// 1. 快速路径：不值得为问候语付出一次向量化往返
	if s.IsSimpleQuery(question) {
		log.Debugf("[Retrieval] 快速路径命中, 跳过检索: '%s'", question)
		return nil
	}
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	// 2. 向量化（经缓存）。零向量意味着向量化已退化，直接放弃检索。
	vector := s.cache.GetOrCompute(ctx, question)
	if embedding.IsZeroVector(vector) {
		log.Warnf("[Retrieval] 向量化退化为零向量, 返回空示例集, tenant: %s", tenantID)
		return nil
	}

	// 近邻查询继承请求级预算
	budget := time.Duration(s.cfg.QueryBudgetSec) * time.Second
	if budget <= 0 {
		budget = 3 * time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	candidates, err := s.exampleRepo.QueryNearest(queryCtx, vector, tenantID, limit)
	if err != nil {
		log.Errorf("[Retrieval] 近邻查询失败, 退化为空示例集: %v", err)
		return nil
	}

	// 3. 过滤：低于相似度下限、负反馈、未成功完成的候选一律丢弃
	filtered := make([]model.RetrievedExample, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity < s.cfg.MinCertainty {
			continue
		}
		if c.UserRating < 0 || !c.Successful {
			continue
		}
		// 4. 评分加成：好评示例的相似度乘以质量系数，封顶 1.0
		c.BoostedSimilarity = c.Similarity
		if c.UserRating > 0 {
			c.BoostedSimilarity = c.Similarity * s.cfg.QualityBoost
			if c.BoostedSimilarity > 1.0 {
				c.BoostedSimilarity = 1.0
			}
		}
		filtered = append(filtered, c)
	}

	// 5. 排序：修正相似度降序；平分时有评分者优先，再按评分高低
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].BoostedSimilarity != filtered[j].BoostedSimilarity {
			return filtered[i].BoostedSimilarity > filtered[j].BoostedSimilarity
		}
		iRated := filtered[i].UserRating > 0
		jRated := filtered[j].UserRating > 0
		if iRated != jRated {
			return iRated
		}
		return filtered[i].UserRating > filtered[j].UserRating
	})

	// 6. 截断
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	log.Debugf("[Retrieval] 检索完成, tenant: %s, 候选 %d 条, 返回 %d 条", tenantID, len(candidates), len(filtered))
	return filtered
}
