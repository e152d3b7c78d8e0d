package api

import (
	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/models"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 把认证和用户管理路由挂到 /api/v1 分组上。
func RegisterRoutes(apiV1 *gin.RouterGroup, h *Handler, a *auth.Authenticator) {
	// 用户认证路由组
	authGroup := apiV1.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/logout", h.Logout)
		authGroup.GET("/me", a.Required(), h.Me)
	}

	// 用户和权限管理路由组
	users := apiV1.Group("/users", a.Required())
	{
		// 例如: POST /api/v1/users/123/roles
		users.POST("/:id/roles", a.RequirePermission(models.PermRolesAssign), h.AssignRoleToUser)
	}
}
