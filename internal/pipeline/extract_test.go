package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	answer := "可以这样查询：\n```sql\nSELECT count(*) FROM orders\nWHERE status = 'paid'\n```\n按需调整时间范围。"
	assert.Equal(t, "SELECT count(*) FROM orders\nWHERE status = 'paid'", ExtractSQL(answer))
}

func TestExtractSQLTakesFirstBlock(t *testing.T) {
	answer := "```sql\nSELECT 1\n```\n或者\n```sql\nSELECT 2\n```"
	assert.Equal(t, "SELECT 1", ExtractSQL(answer))
}

func TestExtractSQLMissing(t *testing.T) {
	assert.Empty(t, ExtractSQL("没有代码块的纯文本答案"))
	assert.Empty(t, ExtractSQL("```python\nprint(1)\n```"))
}

func TestExtractChartConfig(t *testing.T) {
	answer := "```chart\n{\"type\": \"bar\", \"x\": \"month\"}\n```"
	assert.JSONEq(t, `{"type":"bar","x":"month"}`, ExtractChartConfig(answer))
}

func TestExtractChartConfigRejectsInvalidJSON(t *testing.T) {
	assert.Empty(t, ExtractChartConfig("```chart\n不是 JSON\n```"))
	assert.Empty(t, ExtractChartConfig("```chart\n[1,2,3]\n```"))
	assert.Empty(t, ExtractChartConfig("没有图表块"))
}
