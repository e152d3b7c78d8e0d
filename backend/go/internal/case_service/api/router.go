package api

import (
	"strconv"

	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/pkg/httpmiddleware"
	"CaseForAI/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// userKey 按用户限流，未登录时退回到客户端 IP。
func userKey(c *gin.Context) string {
	if id, ok := auth.UserID(c); ok {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.ClientIP()
}

// RegisterRoutes 把案件相关路由挂到 /api/v1 分组上。aiLimiter 为 nil 时 AI 接口不限流。
func RegisterRoutes(apiV1 *gin.RouterGroup, h *Handler, a *auth.Authenticator, aiLimiter *ratelimiter.Keyed) {
	ai := []gin.HandlerFunc{}
	if aiLimiter != nil {
		ai = append(ai, httpmiddleware.Throttle(aiLimiter, userKey))
	}
	withAI := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, ai...), handler)
	}

	// 公开路由：分享链接和电子签名回调
	apiV1.GET("/shared/:token", h.OpenShare)
	apiV1.POST("/webhooks/esign", h.ESignWebhook)

	authed := apiV1.Group("", a.Required())

	// 所有登录用户可读的申请类别
	types := authed.Group("/application-types")
	{
		types.GET("", h.ListApplicationTypes)
		types.GET("/:code/criteria", h.ListCriteriaByCode)
	}

	// 管理后台，每组资源单独授权
	admin := authed.Group("/admin")
	{
		at := admin.Group("/application-types", a.RequirePermission(models.PermAdminApplicationTypes))
		at.GET("", h.AdminListApplicationTypes)
		at.POST("", h.CreateApplicationType)
		at.GET("/:id", h.GetApplicationType)
		at.PATCH("/:id", h.UpdateApplicationType)
		at.DELETE("/:id", h.DeleteApplicationType)

		crit := admin.Group("", a.RequirePermission(models.PermAdminCriteria))
		crit.GET("/application-types/:id/criteria", h.ListCriteria)
		crit.POST("/application-types/:id/criteria", h.CreateCriterion)
		crit.GET("/criteria/export.xlsx", h.ExportCriteria)
		crit.GET("/criteria/:id", h.GetCriterion)
		crit.PATCH("/criteria/:id", h.UpdateCriterion)
		crit.DELETE("/criteria/:id", h.DeleteCriterion)

		prompts := admin.Group("/prompts", a.RequirePermission(models.PermAdminPrompts))
		prompts.GET("", h.ListPrompts)
		prompts.POST("", h.CreatePrompt)
		prompts.GET("/:id", h.GetPrompt)
		prompts.PATCH("/:id", h.UpdatePrompt)
		prompts.DELETE("/:id", h.DeletePrompt)

		tpl := admin.Group("/templates", a.RequirePermission(models.PermAdminTemplates))
		tpl.GET("", h.ListTemplates)
		tpl.POST("", h.CreateTemplate)
		tpl.GET("/:id", h.GetTemplate)
		tpl.PATCH("/:id", h.UpdateTemplate)
		tpl.DELETE("/:id", h.DeleteTemplate)

		admin.POST("/seed", a.RequirePermission(models.PermAdminApplicationTypes), h.Seed)
	}

	// 案件及其下属资源
	cases := authed.Group("/cases")
	{
		cases.GET("", h.ListCases)
		cases.POST("", h.CreateCase)
		cases.GET("/:id", h.GetCase)
		cases.PATCH("/:id", h.UpdateCase)
		cases.DELETE("/:id", h.DeleteCase)
		cases.PUT("/:id/survey", h.SaveSurvey)
		cases.GET("/:id/criteria", h.CaseCriteria)

		cases.GET("/:id/documents", h.ListDocuments)
		cases.POST("/:id/documents", h.UploadDocument)
		cases.POST("/:id/documents/url", h.CreateDocumentFromURL)
		cases.GET("/:id/signature-requests", h.ListSignatureRequests)
		cases.GET("/:id/packages", h.ListPackages)
		cases.POST("/:id/packages", h.CreatePackage)

		// AI 接口按用户限流
		cases.POST("/:id/resume", withAI(h.ExtractResume)...)
		cases.POST("/:id/search", withAI(h.Search)...)
		cases.POST("/:id/drafts", withAI(h.GenerateDraft)...)
	}

	docs := authed.Group("/documents")
	{
		docs.GET("/:id", h.GetDocument)
		docs.PATCH("/:id", h.UpdateDocument)
		docs.DELETE("/:id", h.DeleteDocument)
		docs.GET("/:id/download", h.DownloadDocument)
		docs.POST("/:id/reindex", h.ReindexDocument)
		docs.GET("/:id/export", h.ExportDocument)
		docs.GET("/:id/shares", h.ListShares)
		docs.POST("/:id/shares", h.CreateShare)
		docs.POST("/:id/signature-requests", h.CreateSignatureRequest)
	}

	authed.DELETE("/shares/:id", h.RevokeShare)

	sigs := authed.Group("/signature-requests")
	{
		sigs.GET("/:id", h.GetSignatureRequest)
		sigs.POST("/:id/resend", h.ResendSignatureRequest)
		sigs.POST("/:id/cancel", h.CancelSignatureRequest)
	}

	authed.GET("/packages/:id/download", h.DownloadPackage)
}
