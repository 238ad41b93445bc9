package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TwooSix/Alist-MikananiRss-sub000/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 当前数据库结构版本
const schemaVersion = 2

// Database 资源目录。resource_title 上的唯一索引是全局去重的依据
type Database struct {
	db *gorm.DB
}

// Open 打开（必要时创建）单文件 sqlite 数据库并完成迁移
func Open(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Database{db: db}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info().Str("path", path).Msg("database opened")
	return d, nil
}

// migrate 检查 db_version，低于目标版本时在单个事务内完成升级
func (d *Database) migrate() error {
	if err := d.db.AutoMigrate(&models.DBVersion{}); err != nil {
		return err
	}

	var ver models.DBVersion
	current := 0
	if err := d.db.First(&ver).Error; err == nil {
		current = ver.Version
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if current >= schemaVersion {
		return d.db.AutoMigrate(&models.ResourceRecord{})
	}

	return d.db.Transaction(func(tx *gorm.DB) error {
		// 版本 1 的表名为 resource_data_old，整表拷贝后更名
		if current == 1 && tx.Migrator().HasTable("resource_data_old") {
			if err := tx.Migrator().RenameTable("resource_data_old", "resource_data"); err != nil {
				return err
			}
		}
		if err := tx.AutoMigrate(&models.ResourceRecord{}); err != nil {
			return err
		}
		ver.Version = schemaVersion
		if ver.ID == 0 {
			ver.ID = 1
			if err := tx.Create(&ver).Error; err != nil {
				return err
			}
		} else if err := tx.Save(&ver).Error; err != nil {
			return err
		}
		log.Info().Int("from", current).Int("to", schemaVersion).Msg("database schema upgraded")
		return nil
	})
}

// Insert 插入一条资源记录。标题已存在时返回错误
func (d *Database) Insert(record *models.ResourceRecord) error {
	if err := d.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert resource %q: %w", record.ResourceTitle, err)
	}
	return nil
}

// Exists 判断指定标题的资源是否已被处理过
func (d *Database) Exists(resourceTitle string) (bool, error) {
	var count int64
	err := d.db.Model(&models.ResourceRecord{}).
		Where("resource_title = ?", resourceTitle).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteByTitle 按标题删除资源记录，用于下载失败后的回收
func (d *Database) DeleteByTitle(resourceTitle string) error {
	return d.db.Where("resource_title = ?", resourceTitle).
		Delete(&models.ResourceRecord{}).Error
}

// Count 返回目录中的资源总数
func (d *Database) Count() (int64, error) {
	var count int64
	err := d.db.Model(&models.ResourceRecord{}).Count(&count).Error
	return count, err
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
