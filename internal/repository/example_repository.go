// Package repository 提供了数据访问层的实现。
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// 过度取回的硬上限：给重排序阶段留出丢弃低质量候选的余地，同时限制单次查询的开销。
const hardFetchCeiling = 10

// ExampleRepository 定义了示例向量库（Example Store）的操作接口。
// 所有检索相关的失败都应退化为空结果，这一层是增强而非核心依赖。
type ExampleRepository interface {
	Insert(ctx context.Context, example *model.EsExample) error
	QueryNearest(ctx context.Context, vector []float32, tenantID string, limit int) ([]model.RetrievedExample, error)
	UpdateRating(ctx context.Context, exampleKey string, rating int) error
	DeleteByTenant(ctx context.Context, tenantID string) error
}

type esExampleRepository struct {
	client    *elasticsearch.Client
	indexName string
	maxFetch  int
}

// NewExampleRepository 创建一个新的 ExampleRepository 实例。
func NewExampleRepository(client *elasticsearch.Client, indexName string, maxFetch int) ExampleRepository {
	if maxFetch <= 0 || maxFetch > hardFetchCeiling {
		maxFetch = hardFetchCeiling
	}
	return &esExampleRepository{client: client, indexName: indexName, maxFetch: maxFetch}
}

// Insert 将示例连同其向量写入租户分区的索引。
// 文档 ID 即 ExampleKey，使评分更新可以做真正的点更新。
func (r *esExampleRepository) Insert(ctx context.Context, example *model.EsExample) error {
	docBytes, err := json.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal example: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      r.indexName,
		DocumentID: example.ExampleKey,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to index example: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ExampleRepo] 索引示例到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("elasticsearch returned an error on index: %s", res.Status())
	}
	return nil
}

// QueryNearest 按向量相似度返回至多 limit*2（上限 maxFetch）个候选，
// 租户过滤在服务端的 knn filter 中完成，不同租户的示例绝不混出。
func (r *esExampleRepository) QueryNearest(ctx context.Context, vector []float32, tenantID string, limit int) ([]model.RetrievedExample, error) {
	fetch := limit * 2
	if fetch > r.maxFetch {
		fetch = r.maxFetch
	}
	if fetch <= 0 {
		fetch = r.maxFetch
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              fetch,
			"num_candidates": fetch * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"tenant_id": tenantID},
			},
		},
		"size": fetch,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.indexName),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		log.Errorf("[ExampleRepo] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsExample `json:"_source"`
				Score  float64         `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.RetrievedExample, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.RetrievedExample{
			EsExample:  hit.Source,
			Similarity: hit.Score, // cosine 下 _score 即 0-1 的 certainty
		})
	}
	return results, nil
}

// UpdateRating 对指定示例做评分点更新。向量与其余字段保持不变。
func (r *esExampleRepository) UpdateRating(ctx context.Context, exampleKey string, rating int) error {
	body := fmt.Sprintf(`{"doc":{"user_rating":%d}}`, rating)
	req := esapi.UpdateRequest{
		Index:      r.indexName,
		DocumentID: exampleKey,
		Body:       strings.NewReader(body),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ExampleRepo] 更新示例评分出错, key=%s: %s", exampleKey, res.String())
		return fmt.Errorf("elasticsearch returned an error on update: %s", res.Status())
	}
	return nil
}

// DeleteByTenant 批量清除某个租户的全部示例（项目删除级联）。
func (r *esExampleRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"tenant_id": tenantID},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode delete query: %w", err)
	}

	res, err := r.client.DeleteByQuery([]string{r.indexName}, &buf,
		r.client.DeleteByQuery.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete by tenant: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ExampleRepo] 按租户删除示例出错, tenant=%s: %s", tenantID, res.String())
		return fmt.Errorf("elasticsearch returned an error on delete: %s", res.Status())
	}
	log.Infof("[ExampleRepo] 已清除租户 '%s' 的全部示例", tenantID)
	return nil
}
