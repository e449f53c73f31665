package service

import (
	"context"
	"strings"
	"testing"

	"datapilot-go/internal/config"
	"datapilot-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRetrieval 返回固定的示例列表。
type fakeRetrieval struct {
	examples []model.RetrievedExample
	simple   bool
	calls    int
}

func (f *fakeRetrieval) Retrieve(ctx context.Context, question, tenantID string, limit int) []model.RetrievedExample {
	f.calls++
	if len(f.examples) > limit {
		return f.examples[:limit]
	}
	return f.examples
}

func (f *fakeRetrieval) IsSimpleQuery(question string) bool { return f.simple }

func promptCfg() config.PromptConfig {
	return config.PromptConfig{
		BasePrompt:    "你是一个数据库查询助手。",
		MaxExamples:   3,
		ExcerptLength: 150,
	}
}

func surveyMeta() *model.SchemaMetadata {
	return &model.SchemaMetadata{Tables: []model.Table{
		{Name: "surveys", Columns: []model.Column{
			{Name: "id", Type: "bigint", IsPrimaryKey: true},
			{Name: "title", Type: "varchar"},
		}},
		{Name: "responses", Columns: []model.Column{
			{Name: "id", Type: "bigint", IsPrimaryKey: true},
			{Name: "survey_id", Type: "bigint", IsForeignKey: true},
		}},
	}}
}

func TestBuildSystemPromptFastPath(t *testing.T) {
	retrieval := &fakeRetrieval{simple: true}
	svc := NewPromptService(retrieval, promptCfg())

	got := svc.BuildSystemPrompt(context.Background(), "你好", "tenant-a", surveyMeta())

	assert.Equal(t, "你是一个数据库查询助手。", got)
	assert.Zero(t, retrieval.calls, "快速路径不应触发检索")
}

func TestBuildSystemPromptCapsExamples(t *testing.T) {
	retrieval := &fakeRetrieval{examples: []model.RetrievedExample{
		{EsExample: model.EsExample{Question: "q1", SQLQuery: "SELECT 1"}},
		{EsExample: model.EsExample{Question: "q2", SQLQuery: "SELECT 2"}},
		{EsExample: model.EsExample{Question: "q3", SQLQuery: "SELECT 3"}},
		{EsExample: model.EsExample{Question: "q4", SQLQuery: "SELECT 4"}},
	}}
	svc := NewPromptService(retrieval, promptCfg())

	got := svc.BuildSystemPrompt(context.Background(), "统计每个问卷的回收份数", "tenant-a", nil)

	assert.Contains(t, got, "## 过往成功案例")
	assert.Contains(t, got, "3. 问题: q3")
	assert.NotContains(t, got, "q4")
}

func TestBuildSystemPromptTruncatesExcerpt(t *testing.T) {
	longSQL := strings.Repeat("甲", 200)
	retrieval := &fakeRetrieval{examples: []model.RetrievedExample{
		{EsExample: model.EsExample{Question: "q1", SQLQuery: longSQL}},
	}}
	svc := NewPromptService(retrieval, promptCfg())

	got := svc.BuildSystemPrompt(context.Background(), "统计每个问卷的回收份数", "tenant-a", nil)

	want := strings.Repeat("甲", 150) + "…"
	assert.Contains(t, got, want)
	assert.NotContains(t, got, strings.Repeat("甲", 151))
}

func TestBuildSystemPromptExcerptPrefersSQL(t *testing.T) {
	retrieval := &fakeRetrieval{examples: []model.RetrievedExample{
		{EsExample: model.EsExample{Question: "q1", Answer: "完整的自然语言解释", SQLQuery: "SELECT count(*) FROM responses"}},
		{EsExample: model.EsExample{Question: "q2", Answer: "只有答案没有 SQL"}},
	}}
	svc := NewPromptService(retrieval, promptCfg())

	got := svc.BuildSystemPrompt(context.Background(), "统计每个问卷的回收份数", "tenant-a", nil)

	assert.Contains(t, got, "SELECT count(*) FROM responses")
	assert.NotContains(t, got, "完整的自然语言解释")
	assert.Contains(t, got, "只有答案没有 SQL")
}

func TestBuildSystemPromptDomainHintFirstMatchWins(t *testing.T) {
	svc := NewPromptService(&fakeRetrieval{}, promptCfg())

	// 同时包含问卷表和电商表时，问卷词表先声明先命中
	meta := &model.SchemaMetadata{Tables: []model.Table{
		{Name: "survey_orders"},
		{Name: "products"},
	}}
	got := svc.BuildSystemPrompt(context.Background(), "统计每个问卷的回收份数", "tenant-a", meta)

	assert.Contains(t, got, "问卷调查类数据库")
	assert.NotContains(t, got, "电商类数据库")
}

func TestBuildSystemPromptNoHintForUnknownDomain(t *testing.T) {
	svc := NewPromptService(&fakeRetrieval{}, promptCfg())

	meta := &model.SchemaMetadata{Tables: []model.Table{{Name: "telemetry_events"}}}
	got := svc.BuildSystemPrompt(context.Background(), "统计每天的事件量", "tenant-a", meta)

	assert.NotContains(t, got, "## 领域提示")
	assert.Contains(t, got, "## 表结构")
	assert.Contains(t, got, "telemetry_events")
}

func TestBuildSystemPromptSchemaOverview(t *testing.T) {
	svc := NewPromptService(&fakeRetrieval{}, promptCfg())

	got := svc.BuildSystemPrompt(context.Background(), "统计每个问卷的回收份数", "tenant-a", surveyMeta())

	require.Contains(t, got, "## 表结构")
	assert.Contains(t, got, "surveys (id bigint PK, title varchar)")
	assert.Contains(t, got, "responses (id bigint PK, survey_id bigint FK)")
}
