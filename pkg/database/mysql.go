package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"evidence-rag-go/pkg/log"
)

var DB *gorm.DB

// OpenMySQL 打开 MySQL 连接并配置连接池。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// InitMySQL 初始化全局 DB，并为给定模型执行自动迁移。
func InitMySQL(dsn string, models ...interface{}) {
	db, err := OpenMySQL(dsn)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			log.Fatal("MySQL 自动迁移失败", err)
		}
	}
	DB = db
	log.Info("MySQL database connected successfully")
}
