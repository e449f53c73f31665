package model

import (
	"encoding/json"
	"time"
)

// Column 描述表中的一列。在边界处一次性解析，内部不再传递 any 形态的数据。
type Column struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsPrimaryKey bool   `json:"isPrimaryKey"`
	IsForeignKey bool   `json:"isForeignKey"`
}

// Table 描述一张表及其列。
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// SchemaMetadata 是某个租户当前生效的表结构元数据。
type SchemaMetadata struct {
	Tables []Table `json:"tables"`
}

// TableNames 返回所有表名，用于领域词表匹配。
func (m *SchemaMetadata) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for _, t := range m.Tables {
		names = append(names, t.Name)
	}
	return names
}

// SchemaDefinition 是 MySQL 中按租户保存的 schema 定义。
// Definition 列保存 SchemaMetadata 的 JSON 序列化结果。
type SchemaDefinition struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   string    `gorm:"size:64;uniqueIndex;not null" json:"tenantId"`
	Definition string    `gorm:"type:longtext;not null" json:"definition"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SchemaDefinition) TableName() string {
	return "schema_definitions"
}

// Metadata 将存储的 JSON 定义解析为结构化的 SchemaMetadata。
func (d *SchemaDefinition) Metadata() (*SchemaMetadata, error) {
	var meta SchemaMetadata
	if err := json.Unmarshal([]byte(d.Definition), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
