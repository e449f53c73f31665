package repository

import (
	"errors"

	"datapilot-go/internal/model"

	"gorm.io/gorm"
)

// SchemaRepository 提供按租户存取 schema 定义的能力。
type SchemaRepository interface {
	Upsert(definition *model.SchemaDefinition) error
	FindByTenantID(tenantID string) (*model.SchemaDefinition, error)
	DeleteByTenant(tenantID string) error
}

type schemaRepository struct {
	db *gorm.DB
}

// NewSchemaRepository 创建一个新的 SchemaRepository 实例。
func NewSchemaRepository(db *gorm.DB) SchemaRepository {
	return &schemaRepository{db: db}
}

// Upsert 写入或更新某个租户的 schema 定义。
func (r *schemaRepository) Upsert(definition *model.SchemaDefinition) error {
	var existing model.SchemaDefinition
	err := r.db.Where("tenant_id = ?", definition.TenantID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(definition).Error
	}
	if err != nil {
		return err
	}
	existing.Definition = definition.Definition
	return r.db.Save(&existing).Error
}

// FindByTenantID 返回某个租户当前生效的 schema 定义。
func (r *schemaRepository) FindByTenantID(tenantID string) (*model.SchemaDefinition, error) {
	var definition model.SchemaDefinition
	err := r.db.Where("tenant_id = ?", tenantID).First(&definition).Error
	if err != nil {
		return nil, err
	}
	return &definition, nil
}

// DeleteByTenant 删除某个租户的 schema 定义。
func (r *schemaRepository) DeleteByTenant(tenantID string) error {
	return r.db.Where("tenant_id = ?", tenantID).Delete(&model.SchemaDefinition{}).Error
}
