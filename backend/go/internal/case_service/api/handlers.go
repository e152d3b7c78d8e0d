package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/case_service/service"
	"CaseForAI/backend/go/internal/models"

	"github.com/gin-gonic/gin"
)

// CaseService 是 Handler 依赖的业务接口，由 service.Service 实现。
type CaseService interface {
	ListApplicationTypes(ctx context.Context, activeOnly bool) ([]models.ApplicationType, error)
	GetApplicationType(ctx context.Context, id uint) (*models.ApplicationType, error)
	CreateApplicationType(ctx context.Context, in service.ApplicationTypeInput) (*models.ApplicationType, error)
	UpdateApplicationType(ctx context.Context, id uint, in service.ApplicationTypePatch) (*models.ApplicationType, error)
	DeleteApplicationType(ctx context.Context, id uint) error

	ListCriteria(ctx context.Context, typeID uint) ([]models.CriteriaMapping, error)
	ListCriteriaByCode(ctx context.Context, code string) ([]models.CriteriaMapping, error)
	GetCriterion(ctx context.Context, id uint) (*models.CriteriaMapping, error)
	CreateCriterion(ctx context.Context, typeID uint, in service.CriterionInput) (*models.CriteriaMapping, error)
	UpdateCriterion(ctx context.Context, id uint, in service.CriterionPatch) (*models.CriteriaMapping, error)
	DeleteCriterion(ctx context.Context, id uint) error
	ExportCriteria(ctx context.Context) ([]byte, error)

	ListPrompts(ctx context.Context) ([]models.AgentPrompt, error)
	GetPrompt(ctx context.Context, id uint) (*models.AgentPrompt, error)
	CreatePrompt(ctx context.Context, in service.PromptInput) (*models.AgentPrompt, error)
	UpdatePrompt(ctx context.Context, id uint, in service.PromptPatch) (*models.AgentPrompt, error)
	DeletePrompt(ctx context.Context, id uint) error

	ListTemplates(ctx context.Context, kind string, typeID uint) ([]models.Template, error)
	GetTemplate(ctx context.Context, id uint) (*models.Template, error)
	CreateTemplate(ctx context.Context, in service.TemplateInput) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id uint, in service.TemplatePatch) (*models.Template, error)
	DeleteTemplate(ctx context.Context, id uint) error
	Seed(ctx context.Context) (service.SeedResult, error)

	ListCases(ctx context.Context, userID uint, page, limit int) (*service.CaseList, error)
	GetCase(ctx context.Context, userID uint, caseID string) (*models.Case, error)
	CreateCase(ctx context.Context, userID uint, in service.CreateCaseInput) (*models.Case, error)
	UpdateCase(ctx context.Context, userID uint, caseID string, in service.CasePatch) (*models.Case, error)
	DeleteCase(ctx context.Context, userID uint, caseID string) error
	SaveSurvey(ctx context.Context, userID uint, caseID string, answers json.RawMessage) (*models.Case, error)
	CaseCriteria(ctx context.Context, userID uint, caseID string) ([]service.CriterionStatus, error)

	UploadDocument(ctx context.Context, userID uint, caseID string, in service.UploadInput) (*models.Document, error)
	CreateDocumentFromURL(ctx context.Context, userID uint, caseID string, in service.FromURLInput) (*models.Document, error)
	ListDocuments(ctx context.Context, userID uint, caseID, criterion string) ([]models.Document, error)
	GetDocument(ctx context.Context, userID uint, docID string) (*models.Document, error)
	UpdateDocument(ctx context.Context, userID uint, docID string, in service.DocumentPatch) (*models.Document, error)
	DeleteDocument(ctx context.Context, userID uint, docID string) error
	DownloadDocument(ctx context.Context, userID uint, docID string) (*service.DownloadLink, error)
	ReindexDocument(ctx context.Context, userID uint, docID string) (*models.Document, error)
	ExportDocument(ctx context.Context, userID uint, docID, format string) (*service.Export, error)

	ExtractResume(ctx context.Context, userID uint, caseID string, in service.UploadInput) (*service.IntakeResult, error)
	Search(ctx context.Context, userID uint, caseID string, in service.SearchInput) ([]service.SearchHit, error)
	GenerateDraft(ctx context.Context, userID uint, caseID string, in service.DraftInput) (*models.Document, error)

	CreateShare(ctx context.Context, userID uint, senderName, docID string, in service.ShareInput) (*service.ShareResult, error)
	ListShares(ctx context.Context, userID uint, docID string) ([]models.DocumentShare, error)
	RevokeShare(ctx context.Context, userID uint, shareID string) error
	OpenShare(ctx context.Context, token string) (*service.SharedDocument, error)

	CreateSignatureRequest(ctx context.Context, userID uint, docID string, in service.SignatureInput) (*models.SignatureRequest, error)
	GetSignatureRequest(ctx context.Context, userID uint, id string) (*models.SignatureRequest, error)
	ListSignatureRequests(ctx context.Context, userID uint, caseID string) ([]models.SignatureRequest, error)
	ResendSignatureRequest(ctx context.Context, userID uint, id string) (*service.ResendResult, error)
	CancelSignatureRequest(ctx context.Context, userID uint, id string) (*models.SignatureRequest, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error

	CreatePackage(ctx context.Context, userID uint, caseID string, in service.PackageInput) (*models.CasePackage, error)
	ListPackages(ctx context.Context, userID uint, caseID string) ([]models.CasePackage, error)
	DownloadPackage(ctx context.Context, userID uint, packageID string) (*service.DownloadLink, error)
}

var _ CaseService = (*service.Service)(nil)

// UserDirectory 查询用户资料，用于分享邮件中的发件人名称。由 user_service 实现。
type UserDirectory interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// Handler 封装了案件相关 endpoint 的处理函数。
type Handler struct {
	service   CaseService
	users     UserDirectory
	maxUpload int64
}

// NewHandler 创建一个新的 Handler 实例。maxUpload 是 multipart 文件的字节上限。
func NewHandler(s CaseService, users UserDirectory, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{service: s, users: users, maxUpload: maxUpload}
}

// currentUser 读取 auth.Required 写入的用户 ID，缺失时直接写 401。
func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		apperr.Respond(c, apperr.NewUnauthorized("请先登录"))
		return 0, false
	}
	return userID, true
}

// uintParam 解析路径中的数字 ID，失败时写 400。
func uintParam(c *gin.Context, name, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		apperr.Respond(c, apperr.NewValidation("无效的%sID 格式", label))
		return 0, false
	}
	return uint(id), true
}

// queryInt 读取可选的整数查询参数，缺省返回 def。
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		apperr.Respond(c, apperr.NewValidation("参数 %s 必须是整数", name))
		return 0, false
	}
	return v, true
}

// readUpload 读取 multipart 表单中的 file 字段，超过 maxUpload 时返回 400。
func (h *Handler) readUpload(c *gin.Context) (service.UploadInput, bool) {
	// 多留 1MB 给其他表单字段
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apperr.Respond(c, apperr.NewValidation("文件超过大小限制"))
			return service.UploadInput{}, false
		}
		apperr.Respond(c, apperr.Wrap(apperr.Validation, err, "缺少上传文件 file"))
		return service.UploadInput{}, false
	}
	if fh.Size > h.maxUpload {
		apperr.Respond(c, apperr.NewValidation("文件超过大小限制"))
		return service.UploadInput{}, false
	}
	data, err := readFormFile(fh)
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.Validation, err, "读取上传文件失败"))
		return service.UploadInput{}, false
	}
	return service.UploadInput{
		FileName:     fh.Filename,
		Data:         data,
		Title:        c.PostForm("title"),
		CriterionKey: c.PostForm("criterion_key"),
	}, true
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
