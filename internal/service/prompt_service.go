package service

import (
	"context"
	"fmt"
	"strings"

	"datapilot-go/internal/config"
	"datapilot-go/internal/model"
)

// domainVocabulary 把表名关键词映射到一段领域提示。
// 按声明顺序匹配，第一个命中的词表生效。
type domainVocabulary struct {
	name     string
	keywords []string
	hint     string
}

var domainVocabularies = []domainVocabulary{
	{
		name:     "survey",
		keywords: []string{"survey", "response", "respondent", "questionnaire", "poll", "answer_option"},
		hint:     "这是一个问卷调查类数据库。注意区分问卷、题目、回答三层结构，统计时通常需要按问卷或题目分组。",
	},
	{
		name:     "e-commerce",
		keywords: []string{"order", "product", "cart", "payment", "inventory", "sku", "shipment"},
		hint:     "这是一个电商类数据库。订单金额注意区分下单价与成交价，销量统计通常要排除已取消的订单。",
	},
	{
		name:     "crm",
		keywords: []string{"lead", "contact", "opportunity", "deal", "campaign", "pipeline"},
		hint:     "这是一个 CRM 类数据库。线索、联系人、商机之间存在转化漏斗关系，时间序列分析常按阶段划分。",
	},
}

// PromptService 定义了提示词拼装的操作接口。
type PromptService interface {
	// BuildSystemPrompt 拼装 system 提示：基础指令、解题思路、过往案例、领域提示与表结构。
	// 当前问题本身由调用方作为最后一条 user 消息追加。
	BuildSystemPrompt(ctx context.Context, question, tenantID string, meta *model.SchemaMetadata) string
}

type promptService struct {
	retrievalService RetrievalService
	cfg              config.PromptConfig
}

// NewPromptService 创建一个新的 PromptService 实例。
func NewPromptService(retrievalService RetrievalService, cfg config.PromptConfig) PromptService {
	return &promptService{
		retrievalService: retrievalService,
		cfg:              cfg,
	}
}

// BuildSystemPrompt 拼装完整的 system 提示。
// 简单问题走快速路径：只返回基础指令，不触发检索。
func (s *promptService) BuildSystemPrompt(ctx context.Context, question, tenantID string, meta *model.SchemaMetadata) string {
	var sb strings.Builder
	sb.WriteString(s.cfg.BasePrompt)

	if s.retrievalService.IsSimpleQuery(question) {
		return sb.String()
	}

	sb.WriteString("\n\n先判断问题涉及哪些表与连接条件，再逐步构造 SQL，最后校验聚合与过滤是否符合题意。")

	// 过往成功案例：为控制提示体积，数量上限与摘录长度均来自配置
	maxExamples := s.cfg.MaxExamples
	if maxExamples <= 0 {
		maxExamples = 3
	}
	examples := s.retrievalService.Retrieve(ctx, question, tenantID, maxExamples)
	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}
	if len(examples) > 0 {
		sb.WriteString("\n\n## 过往成功案例\n")
		for i, ex := range examples {
			sb.WriteString(fmt.Sprintf("%d. 问题: %s\n", i+1, ex.Question))
			sb.WriteString(fmt.Sprintf("   解法: %s\n", s.excerpt(ex)))
		}
	}

	if meta != nil {
		if hint := matchDomainHint(meta.TableNames()); hint != "" {
			sb.WriteString("\n\n## 领域提示\n")
			sb.WriteString(hint)
		}
		if overview := schemaOverview(meta); overview != "" {
			sb.WriteString("\n\n## 表结构\n")
			sb.WriteString(overview)
		}
	}

	return sb.String()
}

// excerpt 返回示例的答案摘录，优先取提取出的 SQL，超长时按配置截断并追加省略号。
func (s *promptService) excerpt(ex model.RetrievedExample) string {
	text := ex.SQLQuery
	if text == "" {
		text = ex.Answer
	}
	text = strings.TrimSpace(text)

	maxLen := s.cfg.ExcerptLength
	if maxLen <= 0 {
		maxLen = 150
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "…"
}

// matchDomainHint 对表名做关键词匹配，返回第一个命中词表的提示，默认无。
func matchDomainHint(tableNames []string) string {
	for _, vocab := range domainVocabularies {
		for _, tableName := range tableNames {
			lower := strings.ToLower(tableName)
			for _, kw := range vocab.keywords {
				if strings.Contains(lower, kw) {
					return vocab.hint
				}
			}
		}
	}
	return ""
}

// schemaOverview 将表结构渲染为紧凑的文本块。
func schemaOverview(meta *model.SchemaMetadata) string {
	var sb strings.Builder
	for _, table := range meta.Tables {
		sb.WriteString(table.Name)
		sb.WriteString(" (")
		for i, col := range table.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(col.Name)
			sb.WriteString(" ")
			sb.WriteString(col.Type)
			if col.IsPrimaryKey {
				sb.WriteString(" PK")
			}
			if col.IsForeignKey {
				sb.WriteString(" FK")
			}
		}
		sb.WriteString(")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
