// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端并确保示例索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按固定维度创建。
// 向量维度由部署的 embedding 模型决定，cosine 相似度使 _score 落在 0-1 区间。
func createIndexIfNotExists(indexName string, dims int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"example_key": { "type": "keyword" },
				"tenant_id": { "type": "keyword" },
				"question": { "type": "text" },
				"answer": { "type": "text" },
				"sql_query": { "type": "text" },
				"chart_config": { "type": "keyword", "index": false },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"successful": { "type": "boolean" },
				"user_rating": { "type": "integer" },
				"model_version": { "type": "keyword" },
				"schema_snapshot": { "type": "keyword", "index": false },
				"created_at": { "type": "date" }
			}
		}
	}`, dims)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.Status())
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}
