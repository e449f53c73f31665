package repository

import (
	"datapilot-go/internal/model"

	"gorm.io/gorm"
)

// ProjectRepository 接口定义了租户（项目）数据的持久化操作。
type ProjectRepository interface {
	Create(project *model.Project) error
	FindByTenantID(tenantID string) (*model.Project, error)
	DeleteByTenantID(tenantID string) error
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建一个新的 ProjectRepository 实例。
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// Create 在数据库中创建一个新的项目记录。
func (r *projectRepository) Create(project *model.Project) error {
	return r.db.Create(project).Error
}

// FindByTenantID 根据租户 ID 查找项目。
func (r *projectRepository) FindByTenantID(tenantID string) (*model.Project, error) {
	var project model.Project
	err := r.db.Where("tenant_id = ?", tenantID).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteByTenantID 删除项目记录。
func (r *projectRepository) DeleteByTenantID(tenantID string) error {
	return r.db.Where("tenant_id = ?", tenantID).Delete(&model.Project{}).Error
}
