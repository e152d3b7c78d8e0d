package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/case_service/store"
	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/email"
	"CaseForAI/backend/go/internal/esign"
	"CaseForAI/backend/go/internal/llm"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/notify"
	"CaseForAI/backend/go/internal/rag/schema"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/gobwas/glob"
	"gorm.io/gorm"
)

// Store 是 service 层依赖的持久化接口，由 store.Store 实现。
type Store interface {
	ListApplicationTypes(ctx context.Context, activeOnly bool) ([]models.ApplicationType, error)
	GetApplicationType(ctx context.Context, id uint) (*models.ApplicationType, error)
	GetApplicationTypeByCode(ctx context.Context, code string) (*models.ApplicationType, error)
	CreateApplicationType(ctx context.Context, t *models.ApplicationType) error
	UpdateApplicationType(ctx context.Context, id uint, updates map[string]interface{}) error
	DeleteApplicationType(ctx context.Context, id uint) error
	CountCasesByApplicationType(ctx context.Context, id uint) (int64, error)

	ListCriteria(ctx context.Context, typeID uint) ([]models.CriteriaMapping, error)
	GetCriterion(ctx context.Context, id uint) (*models.CriteriaMapping, error)
	CreateCriterion(ctx context.Context, c *models.CriteriaMapping) error
	UpdateCriterion(ctx context.Context, id uint, updates map[string]interface{}) error
	DeleteCriterion(ctx context.Context, id uint) error

	ListPrompts(ctx context.Context) ([]models.AgentPrompt, error)
	GetPrompt(ctx context.Context, id uint) (*models.AgentPrompt, error)
	GetPromptByKey(ctx context.Context, key string) (*models.AgentPrompt, error)
	CreatePrompt(ctx context.Context, p *models.AgentPrompt) error
	UpdatePrompt(ctx context.Context, id uint, updates map[string]interface{}) error
	DeletePrompt(ctx context.Context, id uint) error

	ListTemplates(ctx context.Context, kind string, typeID uint) ([]models.Template, error)
	GetTemplate(ctx context.Context, id uint) (*models.Template, error)
	CreateTemplate(ctx context.Context, t *models.Template) error
	UpdateTemplate(ctx context.Context, id uint, updates map[string]interface{}) error
	DeleteTemplate(ctx context.Context, id uint) error

	ListCases(ctx context.Context, ownerID uint, offset, limit int) ([]models.Case, int64, error)
	GetCase(ctx context.Context, id string) (*models.Case, error)
	CreateCase(ctx context.Context, c *models.Case) error
	UpdateCase(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteCase(ctx context.Context, id string) error
	CountDocumentsByCriterion(ctx context.Context, caseID string) (map[string]int, error)

	CreateDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, caseID, criterion string) ([]models.Document, error)
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteDocument(ctx context.Context, id string) error

	CreateShare(ctx context.Context, share *models.DocumentShare, now time.Time) error
	GetShare(ctx context.Context, id string) (*models.DocumentShare, error)
	ListShares(ctx context.Context, documentID string) ([]models.DocumentShare, error)
	RevokeShare(ctx context.Context, id string, at time.Time) error
	RecordShareAccess(ctx context.Context, id string, at time.Time) error
	ExpireShares(ctx context.Context, now time.Time) (int64, error)

	CreateSignatureRequest(ctx context.Context, r *models.SignatureRequest) error
	GetSignatureRequest(ctx context.Context, id string) (*models.SignatureRequest, error)
	GetSignatureRequestByProviderID(ctx context.Context, providerID string) (*models.SignatureRequest, error)
	ListSignatureRequests(ctx context.Context, caseID string) ([]models.SignatureRequest, error)
	UpdateSignatureRequest(ctx context.Context, id string, updates map[string]interface{}) error
	ClaimSignedDocument(ctx context.Context, requestID, docID string) (string, error)
	UpdateSigner(ctx context.Context, signerID uint, updates map[string]interface{}) error
	ListStaleSignatureRequests(ctx context.Context, before time.Time) ([]models.SignatureRequest, error)

	NextPackageVersion(ctx context.Context, caseID string) (int, error)
	CreatePackage(ctx context.Context, pkg *models.CasePackage) error
	ListPackages(ctx context.Context, caseID string) ([]models.CasePackage, error)
	GetPackage(ctx context.Context, id string) (*models.CasePackage, error)
}

var _ Store = (*store.Store)(nil)

// ObjectStore 是对象存储的接口，由 minio.Bucket 实现。
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key, downloadName string, ttl time.Duration) (string, error)
}

// IngestQueue 发布 document.ingest 消息，由 kafka.Publisher 实现。
type IngestQueue interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Retriever 在案件范围内做向量检索，由 pipeline.RetrievalPipeline 实现。
type Retriever interface {
	Run(ctx context.Context, query, caseID string, topK int) ([]*schema.Document, error)
}

// VectorCleaner 删除文档的向量和分块，由 pipeline.IndexingPipeline 实现。
type VectorCleaner interface {
	Delete(ctx context.Context, caseID, documentID string) error
}

// PromptCache 缓存按 key 查询的提示词，由 store.PromptCache 实现。
type PromptCache interface {
	Get(ctx context.Context, key string) (*models.AgentPrompt, bool)
	Set(ctx context.Context, p *models.AgentPrompt) error
	Invalidate(ctx context.Context, key string) error
}

// ShareTokens 签发和解析分享链接的 JWT，由 auth.Tokens 实现。
type ShareTokens interface {
	IssueShare(shareID, jti string, expiresAt time.Time) (string, error)
	ParseShare(token string) (shareID, jti string, err error)
}

// PageFetcher 抓取网页证据并转换为 Markdown，由 loaders.WebLoader 实现。
type PageFetcher interface {
	Load(ctx context.Context, rawURL string) ([]*schema.Document, error)
}

// Deps 汇总了 Service 的外部依赖。Prompts、Generations 和 Web 可以为 nil。
type Deps struct {
	Store       Store
	Objects     ObjectStore
	Ingest      IngestQueue
	Events      notify.Publisher
	LLM         llm.LLM
	Retriever   Retriever
	Vectors     VectorCleaner
	Prompts     PromptCache
	Generations store.GenerationStore
	Mailer      email.Sender
	ESign       esign.Provider
	Tokens      ShareTokens
	Web         PageFetcher
}

// Options 是 Service 的运行参数。
type Options struct {
	PublicBaseURL string
	ShareTTL      time.Duration
	PresignTTL    time.Duration
	ReminderAge   time.Duration
	Uploads       config.UploadConfig
	Now           func() time.Time
}

// Service 实现案件相关的全部业务逻辑。
type Service struct {
	Deps
	opts  Options
	globs []glob.Glob
	log   *logger.Logger
}

// NewService 创建 Service，上传文件名的 glob 规则在这里编译，非法规则直接返回错误。
func NewService(deps Deps, opts Options, log *logger.Logger) (*Service, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ShareTTL <= 0 {
		opts.ShareTTL = 7 * 24 * time.Hour
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.ReminderAge <= 0 {
		opts.ReminderAge = 3 * 24 * time.Hour
	}
	if deps.Events == nil {
		deps.Events = notify.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	globs := make([]glob.Glob, 0, len(opts.Uploads.AllowedGlobs))
	for _, pattern := range opts.Uploads.AllowedGlobs {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid upload glob %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return &Service{Deps: deps, opts: opts, globs: globs, log: log}, nil
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// dbErr 把 store 错误转换为业务错误，记录不存在时使用 what 生成 404 消息。
func dbErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound, err, what+"不存在")
	}
	return apperr.FromDB(err)
}

// loadCase 读取调用者自己的案件，别人的案件同样返回 404。
func (s *Service) loadCase(ctx context.Context, userID uint, caseID string) (*models.Case, error) {
	c, err := s.Store.GetCase(ctx, caseID)
	if err != nil {
		return nil, dbErr(err, "案件")
	}
	if c.OwnerID != userID {
		return nil, apperr.NewNotFound("案件不存在")
	}
	return c, nil
}

// loadDocument 读取调用者自己的文档，别人的文档同样返回 404。
func (s *Service) loadDocument(ctx context.Context, userID uint, docID string) (*models.Document, error) {
	d, err := s.Store.GetDocument(ctx, docID)
	if err != nil {
		return nil, dbErr(err, "文档")
	}
	if d.OwnerID != userID {
		return nil, apperr.NewNotFound("文档不存在")
	}
	return d, nil
}

// validCriteria 返回申请类别下全部合法的标准 key。
func (s *Service) validCriteria(ctx context.Context, typeID uint) (map[string]models.CriteriaMapping, error) {
	list, err := s.Store.ListCriteria(ctx, typeID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	out := make(map[string]models.CriteriaMapping, len(list))
	for _, c := range list {
		out[c.CriterionKey] = c
	}
	return out, nil
}

// publishEvent 发布案件事件，失败只记录日志。
func (s *Service) publishEvent(ctx context.Context, event models.CaseEvent) {
	if err := s.Events.Publish(ctx, event); err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"type": event.Type, "case_id": event.CaseID}).
			Warn("failed to publish case event")
	}
}

// enqueueIngest 发布向量化消息。失败时文档保持 uploaded 状态，可以通过 reindex 重试。
func (s *Service) enqueueIngest(ctx context.Context, d *models.Document, reindex bool) error {
	if s.Ingest == nil {
		return errors.New("ingest queue is not configured")
	}
	msg := models.IngestMessage{
		DocumentID: d.ID,
		CaseID:     d.CaseID,
		OwnerID:    d.OwnerID,
		Reindex:    reindex,
		QueuedAt:   s.now(),
	}
	return s.Ingest.Publish(ctx, d.ID, msg)
}

func (s *Service) enqueueIngestBestEffort(ctx context.Context, d *models.Document) {
	if err := s.enqueueIngest(ctx, d, false); err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"document_id": d.ID}).
			Warn("failed to enqueue document for ingestion, it stays uploaded until reindexed")
	}
}
