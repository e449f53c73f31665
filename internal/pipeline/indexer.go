package pipeline

import (
	"context"
	"fmt"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/internal/model"
	"datapilot-go/internal/repository"
	"datapilot-go/pkg/embedding"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/storage"
	"datapilot-go/pkg/tasks"
)

// Indexer 消费写回任务：向量化问题、提取 SQL 与图表配置、归档 schema 快照，
// 最后把示例写入向量库并在 MySQL 中登记文档 ID。
type Indexer struct {
	cache        *embedding.Cache
	exampleRepo  repository.ExampleRepository
	recordRepo   repository.RecordRepository
	embeddingCfg config.EmbeddingConfig
	minioCfg     config.MinIOConfig
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(
	cache *embedding.Cache,
	exampleRepo repository.ExampleRepository,
	recordRepo repository.RecordRepository,
	embeddingCfg config.EmbeddingConfig,
	minioCfg config.MinIOConfig,
) *Indexer {
	return &Indexer{
		cache:        cache,
		exampleRepo:  exampleRepo,
		recordRepo:   recordRepo,
		embeddingCfg: embeddingCfg,
		minioCfg:     minioCfg,
	}
}

// Process 处理一条写回任务。
// 返回错误会触发 Kafka 侧的重试（最多 3 次），因此这里只对可重试的失败返回错误。
func (p *Indexer) Process(ctx context.Context, task tasks.ExampleIndexTask) error {
	log.Infof("[Indexer] 开始写回示例, key: %s, tenant: %s", task.ExampleKey, task.TenantID)

	// 1. 向量化问题。零向量说明向量化退化，保留重试机会。
	vector := p.cache.GetOrCompute(ctx, task.Question)
	if embedding.IsZeroVector(vector) {
		return fmt.Errorf("向量化退化为零向量, 等待重试: key=%s", task.ExampleKey)
	}

	// 2. 从答案中提取结构化内容
	sqlQuery := ExtractSQL(task.Answer)
	chartConfig := ExtractChartConfig(task.Answer)

	// 3. 归档 schema 快照（尽力而为）
	var snapshotObject string
	if task.SchemaSnapshot != "" {
		snapshotObject = fmt.Sprintf("%s/%s.json", task.TenantID, task.ExampleKey)
		if err := storage.ArchiveSnapshot(ctx, p.minioCfg.BucketName, snapshotObject, []byte(task.SchemaSnapshot)); err != nil {
			log.Warnf("[Indexer] 归档 schema 快照失败, 继续写回: %v", err)
			snapshotObject = ""
		}
	}

	// 4. 写入向量库，文档 ID 即示例键
	example := &model.EsExample{
		ExampleKey:     task.ExampleKey,
		TenantID:       task.TenantID,
		Question:       task.Question,
		Answer:         task.Answer,
		SQLQuery:       sqlQuery,
		ChartConfig:    chartConfig,
		Vector:         vector,
		Successful:     task.Successful,
		UserRating:     0,
		ModelVersion:   p.embeddingCfg.Model,
		SchemaSnapshot: snapshotObject,
		CreatedAt:      time.Now(),
	}
	if err := p.exampleRepo.Insert(ctx, example); err != nil {
		return fmt.Errorf("写入示例向量库失败: %w", err)
	}

	// 5. 在 MySQL 登记记录，使后续评分更新可以按文档 ID 点更新
	record := &model.ExampleRecord{
		ID:             task.ExampleKey,
		TenantID:       task.TenantID,
		ConversationID: task.ConversationID,
		Question:       task.Question,
	}
	if err := p.recordRepo.Create(record); err != nil {
		// 向量已写入，记录失败只影响评分路径，不值得整体重试
		log.Errorf("[Indexer] 登记示例记录失败, key=%s: %v", task.ExampleKey, err)
	}

	log.Infof("[Indexer] 示例写回完成, key: %s", task.ExampleKey)
	return nil
}
