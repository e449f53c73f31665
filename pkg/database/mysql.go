package database

import (
	"time"

	"datapilot-go/internal/model"
	"datapilot-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接并迁移表结构。
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 迁移本服务依赖的表
	if err := DB.AutoMigrate(
		&model.Project{},
		&model.SchemaDefinition{},
		&model.ExampleRecord{},
		&model.Feedback{},
	); err != nil {
		log.Fatal("failed to migrate database schema", err)
	}

	log.Info("MySQL database connected successfully")
}
