// Package pipeline 实现了示例写回的后台处理流程。
package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	sqlBlockRe   = regexp.MustCompile("(?s)```sql\\s*(.*?)```")
	chartBlockRe = regexp.MustCompile("(?s)```chart\\s*(.*?)```")
)

// ExtractSQL 从答案文本中提取第一个 SQL 代码块，不存在时返回空串。
func ExtractSQL(answer string) string {
	m := sqlBlockRe.FindStringSubmatch(answer)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ExtractChartConfig 从答案文本中提取图表描述块。
// 块内容必须是合法 JSON，否则视为不存在；返回重新序列化后的紧凑 JSON。
func ExtractChartConfig(answer string) string {
	m := chartBlockRe.FindStringSubmatch(answer)
	if m == nil {
		return ""
	}
	raw := strings.TrimSpace(m[1])
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ""
	}
	compact, err := json.Marshal(parsed)
	if err != nil {
		return ""
	}
	return string(compact)
}
