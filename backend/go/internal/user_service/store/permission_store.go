package store

import (
	"context"
	"fmt"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// Store 封装了所有与用户服务相关的数据库操作。
type Store struct {
	DB *gorm.DB
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// --- Role Management ---

// GetRoleByName 通过名称查找角色。
func (s *Store) GetRoleByName(ctx context.Context, name string) (*models.AuthRole, error) {
	var role models.AuthRole
	if err := s.DB.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRoleByID 通过 ID 查找角色。
func (s *Store) GetRoleByID(ctx context.Context, id uint) (*models.AuthRole, error) {
	var role models.AuthRole
	if err := s.DB.WithContext(ctx).First(&role, id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// --- User-Role Association ---

// AssignRoleToUser 为用户分配一个角色，重复分配不会产生重复记录。
func (s *Store) AssignRoleToUser(ctx context.Context, userID, roleID uint) error {
	user := &models.User{Model: gorm.Model{ID: userID}}
	role := &models.AuthRole{Model: gorm.Model{ID: roleID}}
	return s.DB.WithContext(ctx).Model(user).Association("Roles").Append(role)
}

// GetUserPermissions 获取一个用户的所有权限（通过其角色）。
func (s *Store) GetUserPermissions(ctx context.Context, userID uint) ([]*models.Permission, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Preload("Roles.Permissions").First(&user, userID).Error; err != nil {
		return nil, err
	}

	// 同一权限可能来自多个角色
	permissionMap := make(map[uint]*models.Permission)
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			permissionMap[perm.ID] = perm
		}
	}

	permissions := make([]*models.Permission, 0, len(permissionMap))
	for _, perm := range permissionMap {
		permissions = append(permissions, perm)
	}
	return permissions, nil
}

// SeedRoles 创建内置的权限和 Member / Admin 角色，可重复执行。
func (s *Store) SeedRoles(ctx context.Context) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		perms := make([]*models.Permission, 0, len(models.AdminPermissions()))
		for _, name := range models.AdminPermissions() {
			p := &models.Permission{Name: name}
			if err := tx.Where(models.Permission{Name: name}).FirstOrCreate(p).Error; err != nil {
				return fmt.Errorf("创建权限 %s 失败: %w", name, err)
			}
			perms = append(perms, p)
		}

		member := &models.AuthRole{Name: models.RoleMember, Description: "默认角色，可管理自己的案件"}
		if err := tx.Where(models.AuthRole{Name: models.RoleMember}).FirstOrCreate(member).Error; err != nil {
			return fmt.Errorf("创建 Member 角色失败: %w", err)
		}

		admin := &models.AuthRole{Name: models.RoleAdmin, Description: "管理员，可维护提示词、模板和标准"}
		if err := tx.Where(models.AuthRole{Name: models.RoleAdmin}).FirstOrCreate(admin).Error; err != nil {
			return fmt.Errorf("创建 Admin 角色失败: %w", err)
		}
		return tx.Model(admin).Association("Permissions").Append(perms)
	})
}
