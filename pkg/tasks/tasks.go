// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ExampleIndexTask 是一次成功问答完成后发往写回队列的任务。
// ExampleKey 在生产侧生成并同时下发给调用方，消费侧以它作为 ES 文档 ID。
type ExampleIndexTask struct {
	ExampleKey     string `json:"example_key"`
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	SchemaSnapshot string `json:"schema_snapshot,omitempty"` // 序列化的 schema 元数据，用于溯源归档
	Successful     bool   `json:"successful"`
}
