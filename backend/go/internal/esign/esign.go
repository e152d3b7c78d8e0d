// Package esign 封装电子签名服务商的 REST 接口和 webhook 校验。
package esign

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CaseForAI/backend/go/internal/config"
	pkghttp "CaseForAI/backend/go/pkg/http"
)

// ErrInvalidSignature 表示 webhook 签名校验失败。
var ErrInvalidSignature = errors.New("esign: invalid webhook signature")

// Signer 是提交给服务商的签署人。
type Signer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// CreateRequest 是创建签署请求的参数，服务商通过 DocumentURL 下载待签文件。
type CreateRequest struct {
	Title       string            `json:"title"`
	Subject     string            `json:"subject"`
	Message     string            `json:"message"`
	DocumentURL string            `json:"document_url"`
	FileName    string            `json:"file_name"`
	Signers     []Signer          `json:"signers"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Webhook 事件类型
const (
	EventSignerViewed     = "signer.viewed"
	EventSignerSigned     = "signer.signed"
	EventSignerDeclined   = "signer.declined"
	EventRequestCompleted = "request.completed"
	EventRequestExpired   = "request.expired"
)

// WebhookEvent 是服务商回调的事件体。
type WebhookEvent struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id"`
	SignerMail string    `json:"signer_email,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Provider 是电子签名服务商的抽象。
type Provider interface {
	CreateRequest(ctx context.Context, req CreateRequest) (providerRequestID string, err error)
	Remind(ctx context.Context, providerRequestID, signerEmail string) error
	Cancel(ctx context.Context, providerRequestID string) error
	DownloadSigned(ctx context.Context, providerRequestID string) ([]byte, error)
	VerifyWebhook(body []byte, signature string) error
}

// RESTProvider 通过 HTTP JSON 接口调用服务商，请求经过熔断 HTTP 客户端。
type RESTProvider struct {
	http          *pkghttp.Client
	baseURL       string
	apiKey        string
	webhookSecret []byte
}

// NewRESTProvider 创建 RESTProvider。
func NewRESTProvider(cfg config.ESignConfig, httpClient *pkghttp.Client) *RESTProvider {
	return &RESTProvider{
		http:          httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: []byte(cfg.WebhookSecret),
	}
}

func (p *RESTProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *RESTProvider) requestURL(id string, parts ...string) string {
	u := p.baseURL + "/signature_requests/" + url.PathEscape(id)
	for _, part := range parts {
		u += "/" + part
	}
	return u
}

// CreateRequest 创建签署请求并返回服务商侧的请求 ID。
func (p *RESTProvider) CreateRequest(ctx context.Context, req CreateRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.http.DoJSON(ctx, http.MethodPost, p.baseURL+"/signature_requests", p.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("esign: create request: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("esign: provider returned empty request id")
	}
	return resp.ID, nil
}

// Remind 让服务商再次通知一个签署人。
func (p *RESTProvider) Remind(ctx context.Context, providerRequestID, signerEmail string) error {
	body := map[string]string{"email": signerEmail}
	if err := p.http.DoJSON(ctx, http.MethodPost, p.requestURL(providerRequestID, "remind"), p.headers(), body, nil); err != nil {
		return fmt.Errorf("esign: remind %s: %w", signerEmail, err)
	}
	return nil
}

// Cancel 取消签署请求。
func (p *RESTProvider) Cancel(ctx context.Context, providerRequestID string) error {
	if err := p.http.DoJSON(ctx, http.MethodPost, p.requestURL(providerRequestID, "cancel"), p.headers(), nil, nil); err != nil {
		return fmt.Errorf("esign: cancel: %w", err)
	}
	return nil
}

// DownloadSigned 下载签署完成的 PDF。
func (p *RESTProvider) DownloadSigned(ctx context.Context, providerRequestID string) ([]byte, error) {
	data, err := p.http.Download(ctx, p.requestURL(providerRequestID, "files"), p.headers(), 50<<20)
	if err != nil {
		return nil, fmt.Errorf("esign: download signed file: %w", err)
	}
	return data, nil
}

// VerifyWebhook 校验 X-Signature 头：请求体的 HMAC-SHA256 十六进制值，可带 "sha256=" 前缀。
func (p *RESTProvider) VerifyWebhook(body []byte, signature string) error {
	return VerifySignature(p.webhookSecret, body, signature)
}

// Sign 计算请求体的签名，测试和本地模拟回调时使用。
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature 以常量时间比较签名。
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseWebhook 解析事件体。
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("esign: parse webhook: %w", err)
	}
	if ev.Type == "" || ev.RequestID == "" {
		return ev, errors.New("esign: webhook missing type or request_id")
	}
	return ev, nil
}

var _ Provider = (*RESTProvider)(nil)
