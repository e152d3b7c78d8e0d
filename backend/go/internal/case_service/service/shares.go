package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/internal/email"
	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// maxShareHours 是分享链接的最长有效期（90 天）。
const maxShareHours = 90 * 24

type ShareInput struct {
	Email          string                 `json:"email" binding:"required,email"`
	Name           string                 `json:"name" binding:"max=255"`
	Permission     models.SharePermission `json:"permission"`
	ExpiresInHours int                    `json:"expires_in_hours" binding:"gte=0"`
}

// ShareResult 是创建分享的结果。邮件发送失败时分享仍然创建，EmailSent 为 false。
type ShareResult struct {
	Share     *models.DocumentShare `json:"share"`
	Link      string                `json:"link"`
	EmailSent bool                  `json:"email_sent"`
}

// SharedDocument 是公开分享链接返回的内容。
type SharedDocument struct {
	Document   *models.Document       `json:"document"`
	Permission models.SharePermission `json:"permission"`
	ExpiresAt  time.Time              `json:"expires_at"`
	Download   *DownloadLink          `json:"download,omitempty"`
	Content    string                 `json:"content,omitempty"`
}

func (s *Service) shareLink(token string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/shared/" + token
}

// CreateShare 为文档创建外部分享。同一文档同一收件人已有有效分享时返回 409。
func (s *Service) CreateShare(ctx context.Context, userID uint, senderName, docID string, in ShareInput) (*ShareResult, error) {
	d, err := s.loadDocument(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil {
		return nil, apperr.NewValidation("邮箱格式不正确")
	}
	perm := in.Permission
	if perm == "" {
		perm = models.ShareView
	}
	if !perm.Valid() {
		return nil, apperr.NewValidation("未知的分享权限: %s", perm)
	}
	ttl := s.opts.ShareTTL
	if in.ExpiresInHours > 0 {
		if in.ExpiresInHours > maxShareHours {
			return nil, apperr.NewValidation("分享有效期不能超过 %d 小时", maxShareHours)
		}
		ttl = time.Duration(in.ExpiresInHours) * time.Hour
	}

	now := s.now()
	share := &models.DocumentShare{
		DocumentID:     d.ID,
		CaseID:         d.CaseID,
		SharedByID:     userID,
		RecipientEmail: strings.ToLower(addr.Address),
		RecipientName:  strings.TrimSpace(in.Name),
		Permission:     perm,
		ExpiresAt:      now.Add(ttl),
	}
	if err := s.Store.CreateShare(ctx, share, now); err != nil {
		return nil, dbErr(err, "文档")
	}

	token, err := s.Tokens.IssueShare(share.ID, share.TokenID, share.ExpiresAt)
	if err != nil {
		return nil, err
	}
	res := &ShareResult{Share: share, Link: s.shareLink(token)}

	msg, err := email.RenderShareInvite(share.RecipientEmail, email.ShareInvite{
		RecipientName: share.RecipientName,
		SenderName:    senderName,
		DocumentTitle: d.Title,
		Permission:    string(perm),
		Link:          res.Link,
		ExpiresAt:     share.ExpiresAt,
	})
	if err == nil {
		err = s.Mailer.Send(ctx, msg)
	}
	metrics.ObserveEmail("share_invite", err)
	if err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"share_id": share.ID}).Warn("failed to send share invite")
	} else {
		res.EmailSent = true
	}
	return res, nil
}

func (s *Service) ListShares(ctx context.Context, userID uint, docID string) ([]models.DocumentShare, error) {
	if _, err := s.loadDocument(ctx, userID, docID); err != nil {
		return nil, err
	}
	list, err := s.Store.ListShares(ctx, docID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if list == nil {
		list = []models.DocumentShare{}
	}
	return list, nil
}

// RevokeShare 撤销分享，只有文档所有者可以操作。
func (s *Service) RevokeShare(ctx context.Context, userID uint, shareID string) error {
	share, err := s.Store.GetShare(ctx, shareID)
	if err != nil {
		return dbErr(err, "分享")
	}
	if _, err := s.loadDocument(ctx, userID, share.DocumentID); err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return apperr.NewNotFound("分享不存在")
		}
		return err
	}
	if err := s.Store.RevokeShare(ctx, shareID, s.now()); err != nil {
		return apperr.FromDB(err)
	}
	return nil
}

// OpenShare 处理公开分享链接：校验令牌、检查分享状态并记录访问。
// 未知的分享返回 404，已撤销或过期的分享返回 403。
func (s *Service) OpenShare(ctx context.Context, token string) (*SharedDocument, error) {
	shareID, jti, err := s.Tokens.ParseShare(token)
	expired := errors.Is(err, auth.ErrTokenExpired)
	if err != nil && !expired {
		return nil, apperr.NewNotFound("分享不存在")
	}
	share, err := s.Store.GetShare(ctx, shareID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && share.TokenID != jti) {
		return nil, apperr.NewNotFound("分享不存在")
	}
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	now := s.now()
	if expired || !share.Active(now) {
		return nil, apperr.NewForbidden("分享链接已失效")
	}
	d, err := s.Store.GetDocument(ctx, share.DocumentID)
	if err != nil {
		return nil, dbErr(err, "分享")
	}
	if err := s.Store.RecordShareAccess(ctx, share.ID, now); err != nil {
		return nil, apperr.FromDB(err)
	}

	out := &SharedDocument{Document: d, Permission: share.Permission, ExpiresAt: share.ExpiresAt}
	if d.ObjectKey != "" {
		if out.Download, err = s.presign(ctx, d); err != nil {
			return nil, err
		}
	} else {
		out.Content = d.Content
	}
	// 外部访问者不应看到内部字段
	safe := *d
	safe.Content, safe.ObjectKey, safe.IngestError = "", "", ""
	out.Document = &safe

	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventShareAccessed, CaseID: d.CaseID, UserID: d.OwnerID, DocumentID: d.ID,
		Payload: map[string]interface{}{"share_id": share.ID, "recipient": share.RecipientEmail},
	})
	return out, nil
}

// ExpireShares 把过期的分享标记为撤销，供定时任务调用。
func (s *Service) ExpireShares(ctx context.Context) (int, error) {
	n, err := s.Store.ExpireShares(ctx, s.now())
	return int(n), apperr.FromDB(err)
}
