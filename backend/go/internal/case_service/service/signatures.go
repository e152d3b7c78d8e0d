package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/email"
	"CaseForAI/backend/go/internal/esign"
	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/loaders"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

// signingURLTTL 是提供给签名服务商下载文件的链接有效期。
const signingURLTTL = time.Hour

type SignerInput struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name" binding:"max=255"`
	Order int    `json:"order" binding:"gte=0"`
}

type SignatureInput struct {
	Subject string        `json:"subject" binding:"required,max=255"`
	Message string        `json:"message"`
	Signers []SignerInput `json:"signers" binding:"required,min=1,dive"`
}

// ReminderResult 是一次提醒中单个签署人的结果，服务商提醒和邮件互不影响。
type ReminderResult struct {
	Email    string `json:"email"`
	Reminded bool   `json:"reminded"`
	Emailed  bool   `json:"emailed"`
	Error    string `json:"error,omitempty"`
}

type ResendResult struct {
	Request *models.SignatureRequest `json:"request"`
	Results []ReminderResult         `json:"results"`
}

// normalizeSigners 校验签署人：至少一个，邮箱合法且不重复（忽略大小写）。
func normalizeSigners(in []SignerInput) ([]models.SignatureSigner, error) {
	if len(in) == 0 {
		return nil, apperr.NewValidation("至少需要一个签署人")
	}
	seen := make(map[string]bool, len(in))
	out := make([]models.SignatureSigner, 0, len(in))
	for i, si := range in {
		addr, err := mail.ParseAddress(strings.TrimSpace(si.Email))
		if err != nil {
			return nil, apperr.NewValidation("签署人邮箱格式不正确: %s", si.Email)
		}
		e := strings.ToLower(addr.Address)
		if seen[e] {
			return nil, apperr.NewValidation("签署人邮箱重复: %s", e)
		}
		seen[e] = true
		name := strings.TrimSpace(si.Name)
		if name == "" {
			name = addr.Name
		}
		order := si.Order
		if order <= 0 {
			order = i + 1
		}
		out = append(out, models.SignatureSigner{Email: e, Name: name, Order: order, Status: models.SignerPending})
	}
	return out, nil
}

// signingFile 返回待签文件的对象 key。草稿没有文件时先渲染为 PDF 并上传。
func (s *Service) signingFile(ctx context.Context, d *models.Document) (key, fileName string, err error) {
	if d.ObjectKey != "" {
		return d.ObjectKey, d.FileName, nil
	}
	if d.Kind != models.DocDraft || strings.TrimSpace(d.Content) == "" {
		return "", "", apperr.NewValidation("文档没有可签署的文件")
	}
	data, err := renderPDF(d.Title, d.Content)
	if err != nil {
		return "", "", err
	}
	fileName = safeFileName(fmt.Sprintf("%s-v%d", d.Title, d.Version), FormatPDF)
	key = models.DocumentObjectKey(d.CaseID, d.ID, fileName)
	if err := s.Objects.Put(ctx, key, data, loaders.MimePDF); err != nil {
		return "", "", apperr.NewUnavailable(err, "文件存储暂时不可用")
	}
	return key, fileName, nil
}

// CreateSignatureRequest 把文档发给签名服务商。服务商失败时返回 503，不写入任何记录。
func (s *Service) CreateSignatureRequest(ctx context.Context, userID uint, docID string, in SignatureInput) (*models.SignatureRequest, error) {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Subject) == "" {
		return nil, apperr.NewValidation("主题不能为空")
	}
	signers, err := normalizeSigners(in.Signers)
	if err != nil {
		return nil, err
	}
	key, fileName, err := s.signingFile(ctx, d)
	if err != nil {
		return nil, err
	}
	url, err := s.Objects.PresignGet(ctx, key, fileName, signingURLTTL)
	if err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}

	req := esign.CreateRequest{
		Title:       d.Title,
		Subject:     strings.TrimSpace(in.Subject),
		Message:     in.Message,
		DocumentURL: url,
		FileName:    fileName,
		Metadata:    map[string]string{"case_id": d.CaseID, "document_id": d.ID},
	}
	for _, sg := range signers {
		req.Signers = append(req.Signers, esign.Signer{Email: sg.Email, Name: sg.Name, Order: sg.Order})
	}
	providerID, err := s.ESign.CreateRequest(ctx, req)
	if err != nil {
		return nil, apperr.NewUnavailable(err, "电子签名服务暂时不可用")
	}

	sr := &models.SignatureRequest{
		ID:                uuid.New().String(),
		DocumentID:        d.ID,
		CaseID:            d.CaseID,
		RequestedByID:     userID,
		ProviderRequestID: providerID,
		Status:            models.SignatureSent,
		Subject:           req.Subject,
		Message:           in.Message,
		Signers:           signers,
	}
	if err := s.Store.CreateSignatureRequest(ctx, sr); err != nil {
		if cerr := s.ESign.Cancel(context.WithoutCancel(ctx), providerID); cerr != nil {
			s.log.WithErr(cerr).Warn("failed to cancel orphaned provider request " + providerID)
		}
		return nil, apperr.FromDB(err)
	}
	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventSignatureUpdated, CaseID: d.CaseID, UserID: d.OwnerID, DocumentID: d.ID,
		Payload: map[string]interface{}{"signature_request_id": sr.ID, "status": sr.Status},
	})
	return sr, nil
}

// loadSignatureRequest 读取调用者案件中的签署请求，别人的请求返回 404。
func (s *Service) loadSignatureRequest(ctx context.Context, userID uint, id string) (*models.SignatureRequest, error) {
	sr, err := s.Store.GetSignatureRequest(ctx, id)
	if err != nil {
		return nil, dbErr(err, "签署请求")
	}
	if _, err := s.loadCase(ctx, userID, sr.CaseID); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.NewNotFound("签署请求不存在")
		}
		return nil, err
	}
	return sr, nil
}

func (s *Service) GetSignatureRequest(ctx context.Context, userID uint, id string) (*models.SignatureRequest, error) {
	return s.loadSignatureRequest(ctx, userID, id)
}

func (s *Service) ListSignatureRequests(ctx context.Context, userID uint, caseID string) ([]models.SignatureRequest, error) {
	if _, err := s.loadCase(ctx, userID, caseID); err != nil {
		return nil, err
	}
	list, err := s.Store.ListSignatureRequests(ctx, caseID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if list == nil {
		list = []models.SignatureRequest{}
	}
	return list, nil
}

// ResendSignatureRequest 提醒所有尚未签署的签署人。
func (s *Service) ResendSignatureRequest(ctx context.Context, userID uint, id string) (*ResendResult, error) {
	sr, err := s.loadSignatureRequest(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	results, err := s.resend(ctx, sr)
	if err != nil {
		return nil, err
	}
	updated, err := s.Store.GetSignatureRequest(ctx, id)
	if err != nil {
		return nil, dbErr(err, "签署请求")
	}
	return &ResendResult{Request: updated, Results: results}, nil
}

// resend 并发地提醒每个待签署的签署人：服务商提醒和邮件各自独立，全部完成后汇总结果。
// 只有请求处于 sent 或 partially_signed 时才允许提醒。
func (s *Service) resend(ctx context.Context, sr *models.SignatureRequest) ([]ReminderResult, error) {
	if !sr.Status.Open() {
		return nil, apperr.NewConflict("签署请求状态为 %s，不能提醒", sr.Status)
	}
	var pending []models.SignatureSigner
	for _, sg := range sr.Signers {
		if sg.Status == models.SignerPending || sg.Status == models.SignerViewed {
			pending = append(pending, sg)
		}
	}
	if len(pending) == 0 {
		return nil, apperr.NewConflict("没有待签署的签署人")
	}

	reminder := sr.ReminderCount + 1
	results := make([]ReminderResult, len(pending))
	var wg sync.WaitGroup
	for i, sg := range pending {
		wg.Add(1)
		go func(i int, sg models.SignatureSigner) {
			defer wg.Done()
			results[i] = s.remindSigner(ctx, sr, sg, reminder)
		}(i, sg)
	}
	wg.Wait()

	var merr *multierror.Error
	for _, r := range results {
		if r.Error != "" {
			merr = multierror.Append(merr, fmt.Errorf("%s: %s", r.Email, r.Error))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"signature_request_id": sr.ID}).Warn("some signature reminders failed")
	}

	err := s.Store.UpdateSignatureRequest(ctx, sr.ID, map[string]interface{}{
		"reminder_count":   reminder,
		"last_reminded_at": s.now(),
	})
	if err != nil {
		return nil, dbErr(err, "签署请求")
	}
	return results, nil
}

func (s *Service) remindSigner(ctx context.Context, sr *models.SignatureRequest, sg models.SignatureSigner, reminder int) ReminderResult {
	res := ReminderResult{Email: sg.Email}
	var merr *multierror.Error

	if err := s.ESign.Remind(ctx, sr.ProviderRequestID, sg.Email); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("remind: %w", err))
	} else {
		res.Reminded = true
	}

	msg, err := email.RenderSignatureReminder(sg.Email, email.SignatureReminder{
		SignerName: sg.Name,
		Subject:    sr.Subject,
		Message:    sr.Message,
		Reminder:   reminder,
	})
	if err == nil {
		err = s.Mailer.Send(ctx, msg)
	}
	metrics.ObserveEmail("signature_reminder", err)
	if err != nil {
		merr = multierror.Append(merr, fmt.Errorf("email: %w", err))
	} else {
		res.Emailed = true
	}

	if err := merr.ErrorOrNil(); err != nil {
		res.Error = strings.Join(errorStrings(merr), "; ")
	}
	return res
}

func errorStrings(merr *multierror.Error) []string {
	out := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, e.Error())
	}
	return out
}

// CancelSignatureRequest 在服务商处取消请求，然后把状态置为 canceled。
func (s *Service) CancelSignatureRequest(ctx context.Context, userID uint, id string) (*models.SignatureRequest, error) {
	sr, err := s.loadSignatureRequest(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !sr.Status.Open() && sr.Status != models.SignaturePending {
		return nil, apperr.NewConflict("签署请求状态为 %s，不能取消", sr.Status)
	}
	if err := s.ESign.Cancel(ctx, sr.ProviderRequestID); err != nil {
		return nil, apperr.NewUnavailable(err, "电子签名服务暂时不可用")
	}
	if err := s.Store.UpdateSignatureRequest(ctx, id, map[string]interface{}{"status": models.SignatureCanceled}); err != nil {
		return nil, dbErr(err, "签署请求")
	}
	sr.Status = models.SignatureCanceled
	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventSignatureUpdated, CaseID: sr.CaseID, UserID: sr.RequestedByID, DocumentID: sr.DocumentID,
		Payload: map[string]interface{}{"signature_request_id": sr.ID, "status": sr.Status},
	})
	return sr, nil
}

// HandleWebhook 处理签名服务商的回调。签名校验失败返回 401，未知的请求直接忽略。
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if err := s.ESign.VerifyWebhook(body, signature); err != nil {
		return apperr.Wrap(apperr.Unauthorized, err, "webhook 签名无效")
	}
	ev, err := esign.ParseWebhook(body)
	if err != nil {
		return apperr.Wrap(apperr.Validation, err, "webhook 内容无效")
	}
	sr, err := s.Store.GetSignatureRequestByProviderID(ctx, ev.RequestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.WithPayload(map[string]interface{}{"provider_request_id": ev.RequestID, "type": ev.Type}).
			Info("ignoring webhook for unknown signature request")
		return nil
	}
	if err != nil {
		return apperr.FromDB(err)
	}
	switch sr.Status {
	case models.SignatureCanceled, models.SignatureExpired:
		return nil
	}

	at := ev.OccurredAt
	if at.IsZero() {
		at = s.now()
	}
	switch ev.Type {
	case esign.EventSignerViewed, esign.EventSignerSigned, esign.EventSignerDeclined:
		if err := s.applySignerEvent(ctx, sr, ev, at); err != nil {
			return err
		}
	case esign.EventRequestCompleted:
		return s.completeSignature(ctx, sr, at)
	case esign.EventRequestExpired:
		if sr.Status == models.SignatureSigned {
			return nil
		}
		if err := s.Store.UpdateSignatureRequest(ctx, sr.ID, map[string]interface{}{"status": models.SignatureExpired}); err != nil {
			return apperr.FromDB(err)
		}
		sr.Status = models.SignatureExpired
	default:
		s.log.WithPayload(map[string]interface{}{"type": ev.Type}).Info("ignoring unknown webhook event type")
		return nil
	}
	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventSignatureUpdated, CaseID: sr.CaseID, UserID: sr.RequestedByID, DocumentID: sr.DocumentID,
		Payload: map[string]interface{}{"signature_request_id": sr.ID, "status": sr.Status, "event": ev.Type},
	})
	return nil
}

// applySignerEvent 更新签署人状态，并重新推导请求状态。已签署的签署人不会回退为 viewed。
func (s *Service) applySignerEvent(ctx context.Context, sr *models.SignatureRequest, ev esign.WebhookEvent, at time.Time) error {
	idx := -1
	for i := range sr.Signers {
		if strings.EqualFold(sr.Signers[i].Email, ev.SignerMail) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return apperr.NewValidation("签署人不存在: %s", ev.SignerMail)
	}
	sg := &sr.Signers[idx]
	updates := map[string]interface{}{}
	switch ev.Type {
	case esign.EventSignerViewed:
		if sg.Status == models.SignerPending {
			sg.Status = models.SignerViewed
			updates["status"] = sg.Status
		}
	case esign.EventSignerSigned:
		if sg.Status != models.SignerSigned {
			sg.Status, sg.SignedAt = models.SignerSigned, &at
			updates["status"], updates["signed_at"] = sg.Status, at
		}
	case esign.EventSignerDeclined:
		if sg.Status != models.SignerSigned {
			sg.Status = models.SignerDeclined
			updates["status"] = sg.Status
		}
	}
	if len(updates) > 0 {
		if err := s.Store.UpdateSigner(ctx, sg.ID, updates); err != nil {
			return apperr.FromDB(err)
		}
	}
	status := models.DeriveSignatureStatus(sr.Signers)
	if status != sr.Status {
		if err := s.Store.UpdateSignatureRequest(ctx, sr.ID, map[string]interface{}{"status": status}); err != nil {
			return apperr.FromDB(err)
		}
		sr.Status = status
	}
	return nil
}

// completeSignature 下载签署完成的文件并保存为 generated 文档。重复的完成事件会被忽略。
// 文档 ID 先登记在请求上，中途失败后服务商重试时复用同一个 ID，不会生成第二份文档。
// 下载或保存失败时返回错误，让服务商重试回调。
func (s *Service) completeSignature(ctx context.Context, sr *models.SignatureRequest, at time.Time) error {
	if sr.CompletedAt != nil {
		return nil
	}
	src, err := s.Store.GetDocument(ctx, sr.DocumentID)
	if err != nil {
		return dbErr(err, "文档")
	}
	docID, err := s.Store.ClaimSignedDocument(ctx, sr.ID, uuid.New().String())
	if err != nil {
		return apperr.FromDB(err)
	}
	d, err := s.Store.GetDocument(ctx, docID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if d, err = s.storeSignedCopy(ctx, sr, src, docID); err != nil {
			return err
		}
	case err != nil:
		return apperr.FromDB(err)
	}

	for i := range sr.Signers {
		if sr.Signers[i].Status != models.SignerSigned {
			if err := s.Store.UpdateSigner(ctx, sr.Signers[i].ID, map[string]interface{}{"status": models.SignerSigned, "signed_at": at}); err != nil {
				return apperr.FromDB(err)
			}
		}
	}
	err = s.Store.UpdateSignatureRequest(ctx, sr.ID, map[string]interface{}{
		"status":       models.SignatureSigned,
		"completed_at": at,
	})
	if err != nil {
		return apperr.FromDB(err)
	}
	s.enqueueIngestBestEffort(ctx, d)
	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventSignatureComplete, CaseID: sr.CaseID, UserID: src.OwnerID, DocumentID: d.ID,
		Payload: map[string]interface{}{"signature_request_id": sr.ID, "source_document_id": src.ID},
	})
	return nil
}

// storeSignedCopy 下载已签署文件，写入对象存储并以 docID 创建 generated 文档。
func (s *Service) storeSignedCopy(ctx context.Context, sr *models.SignatureRequest, src *models.Document, docID string) (*models.Document, error) {
	data, err := s.ESign.DownloadSigned(ctx, sr.ProviderRequestID)
	if err != nil {
		return nil, apperr.NewUnavailable(err, "无法下载已签署的文件")
	}
	title := src.Title + " (signed)"
	d := &models.Document{
		ID:           docID,
		CaseID:       sr.CaseID,
		OwnerID:      src.OwnerID,
		Title:        title,
		Kind:         models.DocGenerated,
		CriterionKey: src.CriterionKey,
		FileName:     safeFileName(title, FormatPDF),
		MimeType:     loaders.Detect(data),
		Size:         int64(len(data)),
		ExhibitOrder: src.ExhibitOrder,
	}
	d.ObjectKey = models.DocumentObjectKey(d.CaseID, d.ID, d.FileName)
	if err := s.Objects.Put(ctx, d.ObjectKey, data, d.MimeType); err != nil {
		return nil, apperr.NewUnavailable(err, "文件存储暂时不可用")
	}
	if err := s.Store.CreateDocument(ctx, d); err != nil {
		// 并发的回调已经创建了同一个文档
		if apperr.Is(apperr.FromDB(err), apperr.Conflict) {
			return s.Store.GetDocument(ctx, docID)
		}
		return nil, apperr.FromDB(err)
	}
	return d, nil
}

// RemindStaleSignatures 提醒等待超过 ReminderAge 的签署请求，供定时任务调用。
// 返回成功处理的请求数，各请求的错误汇总后返回。
func (s *Service) RemindStaleSignatures(ctx context.Context) (int, error) {
	stale, err := s.Store.ListStaleSignatureRequests(ctx, s.now().Add(-s.opts.ReminderAge))
	if err != nil {
		return 0, apperr.FromDB(err)
	}
	var (
		merr *multierror.Error
		n    int
	)
	for i := range stale {
		if _, err := s.resend(ctx, &stale[i]); err != nil {
			if apperr.Is(err, apperr.Conflict) {
				continue
			}
			merr = multierror.Append(merr, fmt.Errorf("signature request %s: %w", stale[i].ID, err))
			continue
		}
		n++
	}
	return n, merr.ErrorOrNil()
}
