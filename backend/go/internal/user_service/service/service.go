package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Store 是 Service 依赖的数据访问接口，由 store.Store 实现。
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	EmailTaken(ctx context.Context, email, username string) (bool, error)
	TouchLastLogin(ctx context.Context, userID uint, at time.Time) error
	GetRoleByName(ctx context.Context, name string) (*models.AuthRole, error)
	GetRoleByID(ctx context.Context, id uint) (*models.AuthRole, error)
	AssignRoleToUser(ctx context.Context, userID, roleID uint) error
	GetUserPermissions(ctx context.Context, userID uint) ([]*models.Permission, error)
	SeedRoles(ctx context.Context) error
}

// 登录失败时统一返回，避免泄露邮箱是否已注册。
var errBadCredentials = apperr.NewUnauthorized("邮箱或密码错误")

// Service 封装了业务逻辑。
type Service struct {
	store      Store
	bcryptCost int
	now        func() time.Time
	compare    func(hash, password []byte) error

	dummyOnce sync.Once
	dummy     []byte
}

// NewService 创建一个新的 Service 实例。bcryptCost 为 0 时使用 bcrypt.DefaultCost。
func NewService(s Store, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: s, bcryptCost: bcryptCost, now: time.Now, compare: bcrypt.CompareHashAndPassword}
}

// RegisterInput 是邮箱注册所需的字段。
type RegisterInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// --- User Registration & Login ---

// Register 处理新用户通过邮箱注册的逻辑。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" {
		return nil, apperr.NewValidation("邮箱和用户名不能为空")
	}
	if len(in.Password) < 8 {
		return nil, apperr.NewValidation("密码至少 8 位")
	}

	taken, err := s.store.EmailTaken(ctx, email, username)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if taken {
		return nil, apperr.NewConflict("该邮箱或用户名已被注册")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %w", err)
	}

	user := &models.User{
		Username:   username,
		FullName:   strings.TrimSpace(in.FullName),
		Email:      email,
		Provider:   "email",
		ProviderID: email,
		Status:     models.StatusActive,
		Password:   string(hashedPassword),
	}
	// 并发注册时唯一索引兜底，FromDB 会把冲突映射为 409
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, apperr.FromDB(err)
	}
	return user, nil
}

// Login 校验邮箱和密码，成功时返回用户。
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 未注册的邮箱同样做一次 bcrypt 比较，响应时间与密码错误一致
		_ = s.compare(s.dummyHash(), []byte(password))
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if err = s.compare([]byte(user.Password), []byte(password)); err != nil {
		return nil, errBadCredentials
	}
	if user.Status != models.StatusActive {
		return nil, apperr.NewForbidden("账号不可用")
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.ID, now); err == nil {
		user.LastLoginAt = &now
	}
	return user, nil
}

// dummyHash 返回与真实密码相同 cost 的占位哈希，首次使用时生成。
func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("caseforai-dummy-password"), s.bcryptCost)
		if err != nil {
			panic(fmt.Sprintf("generate dummy bcrypt hash: %v", err))
		}
		s.dummy = h
	})
	return s.dummy
}

// GetUser 返回用户及其角色。
func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	return user, nil
}

// --- Permission Management ---

// AssignRole 为用户分配角色，角色可以用 ID 或名称指定。
func (s *Service) AssignRole(ctx context.Context, userID, roleID uint, roleName string) (*models.AuthRole, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NewNotFound("用户不存在")
		}
		return nil, apperr.FromDB(err)
	}

	var (
		role *models.AuthRole
		err  error
	)
	switch {
	case roleID != 0:
		role, err = s.store.GetRoleByID(ctx, roleID)
	case roleName != "":
		role, err = s.store.GetRoleByName(ctx, roleName)
	default:
		return nil, apperr.NewValidation("必须指定 role_id 或 role")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewValidation("角色不存在")
	}
	if err != nil {
		return nil, apperr.FromDB(err)
	}

	if err := s.store.AssignRoleToUser(ctx, userID, role.ID); err != nil {
		return nil, apperr.FromDB(err)
	}
	return role, nil
}

// HasPermission 检查用户是否拥有特定权限。
func (s *Service) HasPermission(ctx context.Context, userID uint, requiredPermission string) (bool, error) {
	permissions, err := s.store.GetUserPermissions(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.FromDB(err)
	}

	for _, p := range permissions {
		if p.Name == requiredPermission {
			return true, nil
		}
	}
	return false, nil
}

// SeedRoles 创建内置角色和权限。
func (s *Service) SeedRoles(ctx context.Context) error {
	return s.store.SeedRoles(ctx)
}
