package api

import (
	"encoding/json"
	"net/http"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/service"

	"github.com/gin-gonic/gin"
)

// ListCases 处理 GET /cases?page=&limit=。
func (h *Handler) ListCases(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	list, err := h.service.ListCases(c.Request.Context(), userID, page, limit)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CreateCase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CreateCaseInput
	if !apperr.Bind(c, &req) {
		return
	}
	cs, err := h.service.CreateCase(c.Request.Context(), userID, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}

func (h *Handler) GetCase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cs, err := h.service.GetCase(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (h *Handler) UpdateCase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.CasePatch
	if !apperr.Bind(c, &req) {
		return
	}
	cs, err := h.service.UpdateCase(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (h *Handler) DeleteCase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteCase(c.Request.Context(), userID, c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveSurvey 处理 PUT /cases/:id/survey，请求体必须是 JSON 对象。
func (h *Handler) SaveSurvey(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var answers json.RawMessage
	if !apperr.Bind(c, &answers) {
		return
	}
	cs, err := h.service.SaveSurvey(c.Request.Context(), userID, c.Param("id"), answers)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

// CaseCriteria 处理 GET /cases/:id/criteria。
func (h *Handler) CaseCriteria(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.CaseCriteria(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// --- Packages ---

func (h *Handler) CreatePackage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.PackageInput
	// 请求体可以为空，此时使用案件的全部材料
	if c.Request.ContentLength != 0 && !apperr.Bind(c, &req) {
		return
	}
	pkg, err := h.service.CreatePackage(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

func (h *Handler) ListPackages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.ListPackages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) DownloadPackage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadPackage(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}
