package service

import (
	"context"
	"path"
	"strings"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/loaders"

	"github.com/google/uuid"
)

// UploadInput 是一个上传的文件及其表单字段。
type UploadInput struct {
	FileName     string
	Data         []byte
	Title        string
	CriterionKey string
	Kind         models.DocumentKind
}

type DocumentPatch struct {
	Title        *string `json:"title" binding:"omitempty,min=1,max=255"`
	CriterionKey *string `json:"criterion_key" binding:"omitempty,max=64"`
	ExhibitOrder *int    `json:"exhibit_order" binding:"omitempty,gte=0"`
	Content      *string `json:"content"`
}

type FromURLInput struct {
	URL          string `json:"url" binding:"required,url"`
	Title        string `json:"title" binding:"max=255"`
	CriterionKey string `json:"criterion_key" binding:"max=64"`
}

// DownloadLink 是一个有时效的下载地址。
type DownloadLink struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
	FileName  string `json:"file_name"`
}

// Export 是导出的草稿文件。
type Export struct {
	Data        []byte
	FileName    string
	ContentType string
}

// checkUpload 校验文件名、大小和嗅探出的 MIME 类型，返回 MIME 类型。
func (s *Service) checkUpload(name string, data []byte) (string, error) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == "/" {
		return "", apperr.NewValidation("文件名不能为空")
	}
	if len(s.globs) > 0 {
		lower := strings.ToLower(base)
		matched := false
		for _, g := range s.globs {
			if g.Match(lower) {
				matched = true
				break
			}
		}
		if !matched {
			return "", apperr.NewValidation("不支持的文件名: %s", base)
		}
	}
	if len(data) == 0 {
		return "", apperr.NewValidation("文件为空")
	}
	if max := s.opts.Uploads.MaxBytes; max > 0 && int64(len(data)) > max {
		return "", apperr.NewValidation("文件超过 %d 字节的上限", max)
	}
	if !loaders.Allowed(data, s.opts.Uploads.AllowedMIMEs) {
		return "", apperr.NewValidation("不支持的文件类型: %s", loaders.Detect(data))
	}
	return loaders.Detect(data), nil
}

// checkCriterion 校验单个标准 key 属于案件的申请类别，空 key 合法。
func (s *Service) checkCriterion(ctx context.Context, c *models.Case, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.checkCriteria(ctx, c.ApplicationTypeID, []string{key})
	return err
}

// storeUpload 校验并保存文件到对象存储，然后写入文档记录。写库失败时尽量删除已上传的对象。
func (s *Service) storeUpload(ctx context.Context, c *models.Case, in UploadInput) (*models.Document, error) {
	mimeType, err := s.checkUpload(in.FileName, in.Data)
	if err != nil {
		return nil, err
	}
	if err := s.checkCriterion(ctx, c, in.CriterionKey); err != nil {
		return nil, err
	}
	fileName := path.Base(strings.ReplaceAll(in.FileName, "\\", "/"))
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSuffix(fileName, path.Ext(fileName))
	}
	kind := in.Kind
	if kind == "" {
		kind = models.DocEvidence
	}
	d := &models.Document{
		ID:           uuid.New().String(),
		CaseID:       c.ID,
		OwnerID:      c.OwnerID,
		Title:        title,
		Kind:         kind,
		CriterionKey: in.CriterionKey,
		FileName:     fileName,
		MimeType:     mimeType,
		Size:         int64(len(in.Data)),
		Status:       models.DocUploaded,
	}
	d.ObjectKey = models.DocumentObjectKey(c.ID, d.ID, fileName)
	if err := s.Objects.Put(ctx, d.ObjectKey, in.Data, mimeType); err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}
	if err := s.Store.CreateDocument(ctx, d); err != nil {
		if derr := s.Objects.Delete(ctx, d.ObjectKey); derr != nil {
			s.log.WithErr(derr).Warn("failed to remove orphaned object " + d.ObjectKey)
		}
		return nil, apperr.FromDB(err)
	}
	return d, nil
}

// UploadDocument 上传证据文件并投递向量化消息。投递失败时文档保持 uploaded，可通过 reindex 重试。
func (s *Service) UploadDocument(ctx context.Context, userID uint, caseID string, in UploadInput) (*models.Document, error) {
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	d, err := s.storeUpload(ctx, c, in)
	if err != nil {
		return nil, err
	}
	s.enqueueIngestBestEffort(ctx, d)
	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventDocumentUploaded, CaseID: c.ID, UserID: c.OwnerID, DocumentID: d.ID,
		Payload: map[string]interface{}{"title": d.Title},
	})
	return d, nil
}

// CreateDocumentFromURL 抓取网页证据（报道、获奖公告），以 Markdown 文本保存为证据文档。
func (s *Service) CreateDocumentFromURL(ctx context.Context, userID uint, caseID string, in FromURLInput) (*models.Document, error) {
	if s.Web == nil {
		return nil, apperr.NewUnavailable(nil, "网页抓取未启用")
	}
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCriterion(ctx, c, in.CriterionKey); err != nil {
		return nil, err
	}
	pages, err := s.Web.Load(ctx, in.URL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "无法抓取该网页")
	}
	text := loaders.JoinText(pages)
	if text == "" {
		return nil, apperr.NewValidation("网页没有可用的文本内容")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = in.URL
	}
	d := &models.Document{
		ID:           uuid.New().String(),
		CaseID:       c.ID,
		OwnerID:      c.OwnerID,
		Title:        title,
		Kind:         models.DocEvidence,
		CriterionKey: in.CriterionKey,
		FileName:     safeFileName(title, "md"),
		MimeType:     "text/markdown",
		Size:         int64(len(text)),
	}
	d.ObjectKey = models.DocumentObjectKey(c.ID, d.ID, d.FileName)
	if err := s.Objects.Put(ctx, d.ObjectKey, []byte(text), "text/markdown; charset=utf-8"); err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}
	if err := s.Store.CreateDocument(ctx, d); err != nil {
		return nil, apperr.FromDB(err)
	}
	s.enqueueIngestBestEffort(ctx, d)
	return d, nil
}

func (s *Service) ListDocuments(ctx context.Context, userID uint, caseID, criterion string) ([]models.Document, error) {
	if _, err := s.loadCase(ctx, userID, caseID); err != nil {
		return nil, err
	}
	docs, err := s.Store.ListDocuments(ctx, caseID, criterion)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

func (s *Service) GetDocument(ctx context.Context, userID uint, docID string) (*models.Document, error) {
	return s.loadDocument(ctx, userID, docID)
}

// UpdateDocument 部分更新文档。只有草稿可以修改正文，修改后版本号加一并重新向量化。
func (s *Service) UpdateDocument(ctx context.Context, userID uint, docID string, in DocumentPatch) (*models.Document, error) {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.CriterionKey != nil {
		c, err := s.loadCase(ctx, userID, d.CaseID)
		if err != nil {
			return nil, err
		}
		if err := s.checkCriterion(ctx, c, *in.CriterionKey); err != nil {
			return nil, err
		}
		updates["criterion_key"] = *in.CriterionKey
	}
	if in.ExhibitOrder != nil {
		updates["exhibit_order"] = *in.ExhibitOrder
	}
	contentChanged := false
	if in.Content != nil {
		if d.Kind != models.DocDraft {
			return nil, apperr.NewValidation("只有草稿可以修改正文")
		}
		if *in.Content != d.Content {
			contentChanged = true
			updates["content"] = *in.Content
			updates["version"] = d.Version + 1
			updates["size"] = int64(len(*in.Content))
			updates["status"] = models.DocUploaded
		}
	}
	if err := s.Store.UpdateDocument(ctx, docID, updates); err != nil {
		return nil, dbErr(err, "文档")
	}
	updated, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if contentChanged {
		s.enqueueIngestBestEffort(ctx, updated)
	}
	return updated, nil
}

// DeleteDocument 删除文档记录，然后尽力删除对象和向量。
func (s *Service) DeleteDocument(ctx context.Context, userID uint, docID string) error {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteDocument(ctx, docID); err != nil {
		return dbErr(err, "文档")
	}
	if d.ObjectKey != "" {
		if err := s.Objects.Delete(ctx, d.ObjectKey); err != nil {
			s.log.WithErr(err).Warn("failed to delete object " + d.ObjectKey)
		}
	}
	if s.Vectors != nil {
		if err := s.Vectors.Delete(ctx, d.CaseID, d.ID); err != nil {
			s.log.WithErr(err).Warn("failed to delete vectors of document " + d.ID)
		}
	}
	return nil
}

// DownloadDocument 返回文件的预签名下载地址。
func (s *Service) DownloadDocument(ctx context.Context, userID uint, docID string) (*DownloadLink, error) {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return s.presign(ctx, d)
}

func (s *Service) presign(ctx context.Context, d *models.Document) (*DownloadLink, error) {
	if d.ObjectKey == "" {
		return nil, apperr.NewValidation("草稿没有文件，请使用导出接口")
	}
	url, err := s.Objects.PresignGet(ctx, d.ObjectKey, d.FileName, s.opts.PresignTTL)
	if err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}
	return &DownloadLink{URL: url, ExpiresIn: int(s.opts.PresignTTL.Seconds()), FileName: d.FileName}, nil
}

// ReindexDocument 重新投递向量化消息，投递失败返回 503。
func (s *Service) ReindexDocument(ctx context.Context, userID uint, docID string) (*models.Document, error) {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if d.Status == models.DocIngesting {
		return nil, apperr.NewConflict("文档正在向量化")
	}
	if err := s.enqueueIngest(ctx, d, true); err != nil {
		return nil, apperr.NewUnavailable(err, "消息队列暂时不可用")
	}
	if err := s.Store.UpdateDocument(ctx, docID, map[string]interface{}{"status": models.DocUploaded, "ingest_error": ""}); err != nil {
		return nil, dbErr(err, "文档")
	}
	d.Status, d.IngestError = models.DocUploaded, ""
	return d, nil
}

// ExportDocument 把草稿导出为 docx 或 pdf。
func (s *Service) ExportDocument(ctx context.Context, userID uint, docID, format string) (*Export, error) {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if d.Kind != models.DocDraft {
		return nil, apperr.NewValidation("只有草稿可以导出")
	}
	switch strings.ToLower(format) {
	case FormatDOCX, "":
		data, err := renderDOCX(d.Title, d.Content)
		if err != nil {
			return nil, err
		}
		return &Export{Data: data, FileName: safeFileName(d.Title, FormatDOCX), ContentType: mimeDOCX}, nil
	case FormatPDF:
		data, err := renderPDF(d.Title, d.Content)
		if err != nil {
			return nil, err
		}
		return &Export{Data: data, FileName: safeFileName(d.Title, FormatPDF), ContentType: loaders.MimePDF}, nil
	}
	return nil, apperr.NewValidation("不支持的导出格式: %s", format)
}
