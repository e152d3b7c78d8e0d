package api

import (
	"net/http"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// --- Application Types ---

// ListApplicationTypes 处理 GET /application-types，只返回启用的类别。
func (h *Handler) ListApplicationTypes(c *gin.Context) {
	types, err := h.service.ListApplicationTypes(c.Request.Context(), true)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": types})
}

// ListCriteriaByCode 处理 GET /application-types/:code/criteria。
func (h *Handler) ListCriteriaByCode(c *gin.Context) {
	items, err := h.service.ListCriteriaByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) AdminListApplicationTypes(c *gin.Context) {
	types, err := h.service.ListApplicationTypes(c.Request.Context(), false)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": types})
}

func (h *Handler) GetApplicationType(c *gin.Context) {
	id, ok := uintParam(c, "id", "类别")
	if !ok {
		return
	}
	t, err := h.service.GetApplicationType(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateApplicationType(c *gin.Context) {
	var req service.ApplicationTypeInput
	if !apperr.Bind(c, &req) {
		return
	}
	t, err := h.service.CreateApplicationType(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateApplicationType(c *gin.Context) {
	id, ok := uintParam(c, "id", "类别")
	if !ok {
		return
	}
	var req service.ApplicationTypePatch
	if !apperr.Bind(c, &req) {
		return
	}
	t, err := h.service.UpdateApplicationType(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteApplicationType(c *gin.Context) {
	id, ok := uintParam(c, "id", "类别")
	if !ok {
		return
	}
	if err := h.service.DeleteApplicationType(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Criteria ---

// ListCriteria 处理 GET /admin/application-types/:id/criteria。
func (h *Handler) ListCriteria(c *gin.Context) {
	id, ok := uintParam(c, "id", "类别")
	if !ok {
		return
	}
	items, err := h.service.ListCriteria(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) CreateCriterion(c *gin.Context) {
	id, ok := uintParam(c, "id", "类别")
	if !ok {
		return
	}
	var req service.CriterionInput
	if !apperr.Bind(c, &req) {
		return
	}
	m, err := h.service.CreateCriterion(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetCriterion(c *gin.Context) {
	id, ok := uintParam(c, "id", "标准")
	if !ok {
		return
	}
	m, err := h.service.GetCriterion(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateCriterion(c *gin.Context) {
	id, ok := uintParam(c, "id", "标准")
	if !ok {
		return
	}
	var req service.CriterionPatch
	if !apperr.Bind(c, &req) {
		return
	}
	m, err := h.service.UpdateCriterion(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteCriterion(c *gin.Context) {
	id, ok := uintParam(c, "id", "标准")
	if !ok {
		return
	}
	if err := h.service.DeleteCriterion(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportCriteria 处理 GET /admin/criteria/export.xlsx。
func (h *Handler) ExportCriteria(c *gin.Context) {
	data, err := h.service.ExportCriteria(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="criteria.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

// --- Prompts ---

func (h *Handler) ListPrompts(c *gin.Context) {
	items, err := h.service.ListPrompts(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) GetPrompt(c *gin.Context) {
	id, ok := uintParam(c, "id", "提示词")
	if !ok {
		return
	}
	p, err := h.service.GetPrompt(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePrompt(c *gin.Context) {
	var req service.PromptInput
	if !apperr.Bind(c, &req) {
		return
	}
	p, err := h.service.CreatePrompt(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePrompt(c *gin.Context) {
	id, ok := uintParam(c, "id", "提示词")
	if !ok {
		return
	}
	var req service.PromptPatch
	if !apperr.Bind(c, &req) {
		return
	}
	p, err := h.service.UpdatePrompt(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePrompt(c *gin.Context) {
	id, ok := uintParam(c, "id", "提示词")
	if !ok {
		return
	}
	if err := h.service.DeletePrompt(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Templates ---

// ListTemplates 处理 GET /admin/templates?kind=&application_type_id=。
func (h *Handler) ListTemplates(c *gin.Context) {
	typeID, ok := queryInt(c, "application_type_id", 0)
	if !ok {
		return
	}
	if typeID < 0 {
		apperr.Respond(c, apperr.NewValidation("参数 application_type_id 无效"))
		return
	}
	items, err := h.service.ListTemplates(c.Request.Context(), c.Query("kind"), uint(typeID))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	id, ok := uintParam(c, "id", "模板")
	if !ok {
		return
	}
	t, err := h.service.GetTemplate(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTemplate(c *gin.Context) {
	var req service.TemplateInput
	if !apperr.Bind(c, &req) {
		return
	}
	t, err := h.service.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) UpdateTemplate(c *gin.Context) {
	id, ok := uintParam(c, "id", "模板")
	if !ok {
		return
	}
	var req service.TemplatePatch
	if !apperr.Bind(c, &req) {
		return
	}
	t, err := h.service.UpdateTemplate(c.Request.Context(), id, req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c *gin.Context) {
	id, ok := uintParam(c, "id", "模板")
	if !ok {
		return
	}
	if err := h.service.DeleteTemplate(c.Request.Context(), id); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Seed 处理 POST /admin/seed，重复调用是安全的。
func (h *Handler) Seed(c *gin.Context) {
	res, err := h.service.Seed(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
