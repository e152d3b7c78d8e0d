package store

import (
	"context"
	"errors"
	"time"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// ErrDefaultRoleMissing 表示数据库中缺少默认的 Member 角色，需要先执行 seed。
var ErrDefaultRoleMissing = errors.New("默认的 'Member' 角色未找到")

// --- User Management ---

// CreateUser 在数据库中创建一个新用户，并为其分配默认的 Member 角色。
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	// 在事务中执行创建用户和分配角色的操作，确保原子性。
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 创建用户
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		// 2. 查找默认的 "Member" 角色
		var defaultRole models.AuthRole
		if err := tx.Where("name = ?", models.RoleMember).First(&defaultRole).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDefaultRoleMissing
			}
			return err
		}

		// 3. 为用户分配角色
		if err := tx.Model(user).Association("Roles").Append(&defaultRole); err != nil {
			return err
		}
		user.Roles = []*models.AuthRole{&defaultRole}
		return nil
	})
}

// GetUserByEmail 通过邮箱地址查找用户。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Preload("Roles").Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID 通过 ID 查找用户。
func (s *Store) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Preload("Roles").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// EmailTaken 判断邮箱或用户名是否已被占用。
func (s *Store) EmailTaken(ctx context.Context, email, username string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error
	return count > 0, err
}

// TouchLastLogin 记录最近一次登录时间。
func (s *Store) TouchLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		UpdateColumn("last_login_at", at).Error
}
