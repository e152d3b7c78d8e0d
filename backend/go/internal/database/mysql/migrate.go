package mysql

import (
	"fmt"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// Models 按依赖顺序列出所有需要迁移的表。
func Models() []interface{} {
	return []interface{}{
		&models.Permission{},
		&models.AuthRole{},
		&models.User{},
		&models.ApplicationType{},
		&models.CriteriaMapping{},
		&models.AgentPrompt{},
		&models.Template{},
		&models.Case{},
		&models.Document{},
		&models.DocumentShare{},
		&models.SignatureRequest{},
		&models.SignatureSigner{},
		&models.CasePackage{},
	}
}

// Migrate 创建或更新所有表结构、索引和外键。
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}
