// Package model 定义了应用的数据模型。
package model

import "time"

// EsExample 代表存储在 Elasticsearch 中的一条可检索示例（过往问答交互）。
// 向量写入后文档不可变；评分通过独立的点更新路径修改，不会重写向量。
type EsExample struct {
	ExampleKey     string    `json:"example_key"` // 写回前生成的 UUID，同时作为 ES 文档 ID
	TenantID       string    `json:"tenant_id"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	SQLQuery       string    `json:"sql_query,omitempty"`
	ChartConfig    string    `json:"chart_config,omitempty"` // 序列化后的图表描述
	Vector         []float32 `json:"vector"`
	Successful     bool      `json:"successful"`
	UserRating     int       `json:"user_rating"` // -1 / 0 / +1，预留 1-5 星扩展
	ModelVersion   string    `json:"model_version"`
	SchemaSnapshot string    `json:"schema_snapshot,omitempty"` // 归档对象名（MinIO），用于溯源
	CreatedAt      time.Time `json:"created_at"`
}

// RetrievedExample 是检索阶段的临时视图：示例本体加上计算出的相似度分数。
// 每次查询时创建，调用方消费后即丢弃，不做持久化。
type RetrievedExample struct {
	EsExample
	Similarity        float64 `json:"similarity"`         // ES 返回的原始 certainty（0-1）
	BoostedSimilarity float64 `json:"boosted_similarity"` // 按评分修正后的分数
}

// ExampleRecord 是 MySQL 中与 ES 文档一一对应的关系记录。
// 在写回时同步保存 ES 文档 ID，使评分更新成为真正的点更新而非按内容查找。
type ExampleRecord struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"` // 即 ExampleKey
	TenantID       string    `gorm:"size:64;index;not null" json:"tenantId"`
	ConversationID string    `gorm:"size:64;index" json:"conversationId"`
	Question       string    `gorm:"type:text;not null" json:"question"`
	UserRating     int       `gorm:"default:0" json:"userRating"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ExampleRecord) TableName() string {
	return "example_records"
}

// Feedback 记录一条用户反馈。
type Feedback struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   string    `gorm:"size:64;index;not null" json:"tenantId"`
	ExampleKey string    `gorm:"size:36;index;not null" json:"exampleKey"`
	Rating     int       `gorm:"not null" json:"rating"`
	Helpful    bool      `json:"helpful"`
	Comment    string    `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Feedback) TableName() string {
	return "feedbacks"
}
