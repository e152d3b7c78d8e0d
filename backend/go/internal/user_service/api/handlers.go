package api

import (
	"net/http"
	"strconv"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/user_service/service"

	"github.com/gin-gonic/gin"
)

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
	auth    *auth.Authenticator
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service, a *auth.Authenticator) *Handler {
	return &Handler{service: s, auth: a}
}

// UserResponse 是返回给客户端的用户信息。
type UserResponse struct {
	ID       uint     `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Status   string   `json:"status"`
	Roles    []string `json:"roles"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
		Status:   string(u.Status),
		Roles:    u.RoleNames(),
	}
}

// --- Registration and Login Handlers ---

// RegisterRequest 定义了邮箱注册请求的 JSON 结构。
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Username string `json:"username" binding:"required"`
	FullName string `json:"full_name"`
}

// Register 处理邮箱注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !apperr.Bind(c, &req) {
		return
	}

	user, err := h.service.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "注册成功", "user": toUserResponse(user)})
}

// LoginRequest 定义了邮箱登录请求的 JSON 结构。
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login 校验密码后创建 session 并写入 cookie，jwt 模式下同时返回 token。
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !apperr.Bind(c, &req) {
		return
	}

	user, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	sid, err := h.auth.Sessions().Create(c.Request.Context(), user.ID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	h.auth.SetSessionCookie(c, sid)

	resp := gin.H{"user": toUserResponse(user)}
	if tokens := h.auth.Tokens(); tokens != nil {
		token, err := tokens.IssueUser(user.ID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		resp["token"] = token
	}
	c.JSON(http.StatusOK, resp)
}

// Logout 删除 session 并清除 cookie。
func (h *Handler) Logout(c *gin.Context) {
	if sid := h.auth.SessionID(c); sid != "" {
		if err := h.auth.Sessions().Delete(c.Request.Context(), sid); err != nil {
			apperr.Respond(c, err)
			return
		}
	}
	h.auth.ClearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "已退出登录"})
}

// Me 返回当前登录用户和角色名称。
func (h *Handler) Me(c *gin.Context) {
	userID, _ := auth.UserID(c)
	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// --- Permission Handlers ---

// AssignRoleRequest 可以通过 role_id 或 role 名称指定角色。
type AssignRoleRequest struct {
	RoleID uint   `json:"role_id"`
	Role   string `json:"role"`
}

// AssignRoleToUser 为指定 ID 的用户分配一个角色。权限检查由路由上的中间件完成。
func (h *Handler) AssignRoleToUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperr.Respond(c, apperr.NewValidation("无效的用户 ID 格式"))
		return
	}

	var req AssignRoleRequest
	if !apperr.Bind(c, &req) {
		return
	}

	role, err := h.service.AssignRole(c.Request.Context(), uint(userID), req.RoleID, req.Role)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "角色分配成功", "role": role.Name})
}
