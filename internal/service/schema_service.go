package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"datapilot-go/internal/model"
	"datapilot-go/internal/repository"

	"gorm.io/gorm"
)

// SchemaService 定义了 schema 元数据的存取操作。
// 表结构在边界处解析为带类型的 Table/Column，内部不传递无类型数据。
type SchemaService interface {
	Upsert(tenantID string, meta *model.SchemaMetadata) error
	// Metadata 返回租户当前生效的 schema 元数据，未上传时返回 nil 而非错误。
	Metadata(tenantID string) (*model.SchemaMetadata, error)
}

type schemaService struct {
	schemaRepo repository.SchemaRepository
}

// NewSchemaService 创建一个新的 SchemaService 实例。
func NewSchemaService(schemaRepo repository.SchemaRepository) SchemaService {
	return &schemaService{schemaRepo: schemaRepo}
}

// Upsert 校验并保存租户的 schema 定义。
func (s *schemaService) Upsert(tenantID string, meta *model.SchemaMetadata) error {
	if meta == nil || len(meta.Tables) == 0 {
		return errors.New("schema 必须至少包含一张表")
	}
	for _, table := range meta.Tables {
		if table.Name == "" {
			return errors.New("表名不能为空")
		}
	}

	definition, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal schema metadata: %w", err)
	}
	return s.schemaRepo.Upsert(&model.SchemaDefinition{
		TenantID:   tenantID,
		Definition: string(definition),
	})
}

// Metadata 读取并解析租户的 schema 定义。
func (s *schemaService) Metadata(tenantID string) (*model.SchemaMetadata, error) {
	definition, err := s.schemaRepo.FindByTenantID(tenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return definition.Metadata()
}
