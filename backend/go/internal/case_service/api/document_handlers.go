package api

import (
	"fmt"
	"net/http"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/service"
	"CaseForAI/backend/go/internal/models"

	"github.com/gin-gonic/gin"
)

// UploadDocument 处理 POST /cases/:id/documents（multipart: file, title, criterion_key）。
func (h *Handler) UploadDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	in, ok := h.readUpload(c)
	if !ok {
		return
	}
	in.Kind = models.DocEvidence
	doc, err := h.service.UploadDocument(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// CreateDocumentFromURL 处理 POST /cases/:id/documents/url，抓取网页作为证据。
func (h *Handler) CreateDocumentFromURL(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.FromURLInput
	if !apperr.Bind(c, &req) {
		return
	}
	doc, err := h.service.CreateDocumentFromURL(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// ListDocuments 处理 GET /cases/:id/documents?criterion=。
func (h *Handler) ListDocuments(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	docs, err := h.service.ListDocuments(c.Request.Context(), userID, c.Param("id"), c.Query("criterion"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": docs})
}

func (h *Handler) GetDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DocumentPatch
	if !apperr.Bind(c, &req) {
		return
	}
	doc, err := h.service.UpdateDocument(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteDocument(c.Request.Context(), userID, c.Param("id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadDocument 处理 GET /documents/:id/download，返回预签名地址。
func (h *Handler) DownloadDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) ReindexDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	doc, err := h.service.ReindexDocument(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

// ExportDocument 处理 GET /documents/:id/export?format=docx|pdf，默认 docx。
func (h *Handler) ExportDocument(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	out, err := h.service.ExportDocument(c.Request.Context(), userID, c.Param("id"), c.DefaultQuery("format", service.FormatDOCX))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.FileName))
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

// --- AI ---

// ExtractResume 处理 POST /cases/:id/resume（multipart: file）。
func (h *Handler) ExtractResume(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	in, ok := h.readUpload(c)
	if !ok {
		return
	}
	res, err := h.service.ExtractResume(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Search(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.SearchInput
	if !apperr.Bind(c, &req) {
		return
	}
	hits, err := h.service.Search(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": hits})
}

// GenerateDraft 处理 POST /cases/:id/drafts。
func (h *Handler) GenerateDraft(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DraftInput
	if !apperr.Bind(c, &req) {
		return
	}
	doc, err := h.service.GenerateDraft(c.Request.Context(), userID, c.Param("id"), req)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
