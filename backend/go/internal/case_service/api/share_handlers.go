package api

import (
	"io"
	"net/http"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/service"
	"CaseForAI/backend/go/pkg/httpmiddleware"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// webhook 请求体上限
const maxWebhookBody = 1 << 20

// senderName 返回分享邮件中展示的发件人名称，查询失败时退回到空字符串。
func (h *Handler) senderName(c *gin.Context, userID uint) string {
	if h.users == nil {
		return ""
	}
	u, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		httpmiddleware.LoggerFrom(c, logger.Nop()).WithErr(err).Warn("Failed to load sender profile")
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// CreateShare 处理 POST /documents/:id/shares。
func (h *Handler) CreateShare(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ShareInput
	if !apperr.Bind(c, &req) {
		return
	}
	res, err := h.service.CreateShare(c.Request.Context(), userID, h.senderName(c, userID), c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListShares(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.ListShares(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// RevokeShare 处理 DELETE /shares/:id。
func (h *Handler) RevokeShare(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.RevokeShare(c.Request.Context(), userID, c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// OpenShare 处理公开的 GET /shared/:token，不需要登录。
func (h *Handler) OpenShare(c *gin.Context) {
	doc, err := h.service.OpenShare(c.Request.Context(), c.Param("token"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// --- Signatures ---

// CreateSignatureRequest 处理 POST /documents/:id/signature-requests。
func (h *Handler) CreateSignatureRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.SignatureInput
	if !apperr.Bind(c, &req) {
		return
	}
	sr, err := h.service.CreateSignatureRequest(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, sr)
}

func (h *Handler) GetSignatureRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sr, err := h.service.GetSignatureRequest(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, sr)
}

// ListSignatureRequests 处理 GET /cases/:id/signature-requests。
func (h *Handler) ListSignatureRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.ListSignatureRequests(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// ResendSignatureRequest 处理 POST /signature-requests/:id/resend，返回每个签署人的提醒结果。
func (h *Handler) ResendSignatureRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	res, err := h.service.ResendSignatureRequest(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelSignatureRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sr, err := h.service.CancelSignatureRequest(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, sr)
}

// ESignWebhook 处理 POST /webhooks/esign。签名按原始请求体计算，所以不能先做 JSON 绑定。
func (h *Handler) ESignWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.Validation, err, "读取请求体失败"))
		return
	}
	if len(body) > maxWebhookBody {
		apperr.Respond(c, apperr.NewValidation("请求体过大"))
		return
	}
	if err := h.service.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-Signature")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
