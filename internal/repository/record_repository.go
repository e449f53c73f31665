package repository

import (
	"datapilot-go/internal/model"

	"gorm.io/gorm"
)

// RecordRepository 维护 MySQL 中与 ES 文档一一对应的示例记录，
// 以及用户反馈。记录在写回时保存 ES 文档 ID，使评分更新成为点更新。
type RecordRepository interface {
	Create(record *model.ExampleRecord) error
	FindByKey(tenantID, exampleKey string) (*model.ExampleRecord, error)
	UpdateRating(tenantID, exampleKey string, rating int) error
	CreateFeedback(feedback *model.Feedback) error
	DeleteByTenant(tenantID string) error
}

type recordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建一个新的 RecordRepository 实例。
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

// Create 保存一条示例记录。
func (r *recordRepository) Create(record *model.ExampleRecord) error {
	return r.db.Create(record).Error
}

// FindByKey 按租户和示例键查找记录，租户不匹配时视为不存在。
func (r *recordRepository) FindByKey(tenantID, exampleKey string) (*model.ExampleRecord, error) {
	var record model.ExampleRecord
	err := r.db.Where("tenant_id = ? AND id = ?", tenantID, exampleKey).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateRating 更新记录上的评分快照。
func (r *recordRepository) UpdateRating(tenantID, exampleKey string, rating int) error {
	return r.db.Model(&model.ExampleRecord{}).
		Where("tenant_id = ? AND id = ?", tenantID, exampleKey).
		Update("user_rating", rating).Error
}

// CreateFeedback 保存一条用户反馈。
func (r *recordRepository) CreateFeedback(feedback *model.Feedback) error {
	return r.db.Create(feedback).Error
}

// DeleteByTenant 删除某个租户的全部示例记录与反馈。
func (r *recordRepository) DeleteByTenant(tenantID string) error {
	if err := r.db.Where("tenant_id = ?", tenantID).Delete(&model.ExampleRecord{}).Error; err != nil {
		return err
	}
	return r.db.Where("tenant_id = ?", tenantID).Delete(&model.Feedback{}).Error
}
