package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserStatus 定义了用户账户的生命周期状态。
type UserStatus string

const (
	StatusPending     UserStatus = "pending"     // 账号待激活或验证
	StatusActive      UserStatus = "active"      // 账号正常
	StatusSuspended   UserStatus = "suspended"   // 账号被暂停
	StatusDeactivated UserStatus = "deactivated" // 账号已停用
)

// 内置角色名称
const (
	RoleMember = "Member"
	RoleAdmin  = "Admin"
)

// 内置权限名称
const (
	PermAdminPrompts          = "admin:prompts"
	PermAdminTemplates        = "admin:templates"
	PermAdminCriteria         = "admin:criteria"
	PermAdminApplicationTypes = "admin:application-types"
	PermRolesAssign           = "roles:assign"
)

// AdminPermissions 返回 Admin 角色默认持有的全部权限。
func AdminPermissions() []string {
	return []string{
		PermAdminPrompts,
		PermAdminTemplates,
		PermAdminCriteria,
		PermAdminApplicationTypes,
		PermRolesAssign,
	}
}

// --- RBAC 模型 ---

// Permission 代表一个可以被执行的具体操作权限。
type Permission struct {
	gorm.Model
	Name        string `gorm:"unique;not null;size:255"` // 权限标识，例如 "admin:prompts"
	Description string `gorm:"size:1024"`                // 权限的详细描述
}

// AuthRole 代表一组权限的集合。
type AuthRole struct {
	gorm.Model
	Name        string        `gorm:"unique;not null;size:255"` // 角色名称，例如 "Admin", "Member"
	Description string        `gorm:"size:1024"`                // 角色的详细描述
	Permissions []*Permission `gorm:"many2many:role_permissions;"`
}

// User 代表系统中的一个用户账户。
type User struct {
	gorm.Model

	Username string `gorm:"unique;not null;size:191"`
	FullName string `gorm:"size:255"`
	Email    string `gorm:"uniqueIndex;not null;size:191"`
	Password string `gorm:"size:255" json:"-"` // 存储哈希后的密码，json中忽略

	Provider   string `gorm:"not null;size:32"`
	ProviderID string `gorm:"index:idx_provider_id,unique;not null;size:191"`

	Status      UserStatus `gorm:"type:varchar(20);default:'pending';not null"`
	LastLoginAt *time.Time
	Settings    datatypes.JSON

	// RBAC 关系: 一个用户可以拥有多个角色
	Roles []*AuthRole `gorm:"many2many:user_roles;"`
}

// RoleNames 返回用户已加载角色的名称列表。
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// --- 自定义表名 ---

func (User) TableName() string {
	return "users"
}

func (AuthRole) TableName() string {
	return "roles"
}

func (Permission) TableName() string {
	return "permissions"
}
