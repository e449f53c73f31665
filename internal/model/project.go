package model

import "time"

// Project 代表一个租户（项目）。APIKeyHash 保存 bcrypt 哈希后的 API Key。
type Project struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   string    `gorm:"size:64;uniqueIndex;not null" json:"tenantId"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	APIKeyHash string    `gorm:"size:128;not null" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Project) TableName() string {
	return "projects"
}
