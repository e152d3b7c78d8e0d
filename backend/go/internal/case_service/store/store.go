package store

import (
	"context"

	"gorm.io/gorm"
)

// Store 封装了案件服务的所有 MySQL 操作。找不到记录时返回 gorm.ErrRecordNotFound，由 service 层转换为业务错误。
type Store struct {
	DB *gorm.DB
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}

// updateByID 对单行执行部分更新，行不存在时返回 gorm.ErrRecordNotFound。
func (s *Store) updateByID(ctx context.Context, model interface{}, id interface{}, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return s.db(ctx).Select("id").First(model, "id = ?", id).Error
	}
	res := s.db(ctx).Model(model).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL 在值未变化时也返回 0 行，需要确认行是否存在
		return s.db(ctx).Select("id").First(model, "id = ?", id).Error
	}
	return nil
}

// deleteByID 删除单行，行不存在时返回 gorm.ErrRecordNotFound。
func (s *Store) deleteByID(ctx context.Context, model interface{}, id interface{}) error {
	res := s.db(ctx).Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
