// Package email 通过服务商的 REST 接口发送事务邮件。
package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"CaseForAI/backend/go/internal/config"
	pkghttp "CaseForAI/backend/go/pkg/http"
)

// ErrNotConfigured 表示没有配置邮件服务商。
var ErrNotConfigured = errors.New("email provider is not configured")

// Message 是一封待发送的邮件。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Sender 发送邮件。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client 调用 <base>/emails 接口发送邮件。熔断打开时返回 circuitbreaker.ErrCircuitOpen。
type Client struct {
	http    *pkghttp.Client
	baseURL string
	apiKey  string
	from    string
}

// NewClient 创建邮件客户端。
func NewClient(cfg config.EmailConfig, httpClient *pkghttp.Client) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.From,
	}
}

type sendRequest struct {
	From string `json:"from"`
	Message
}

// Send 发送一封邮件，非 2xx 响应视为失败。
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	if msg.To == "" || msg.Subject == "" {
		return fmt.Errorf("email: recipient and subject are required")
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/emails", headers, sendRequest{From: c.from, Message: msg}, nil); err != nil {
		return fmt.Errorf("email: send to %s: %w", msg.To, err)
	}
	return nil
}

var _ Sender = (*Client)(nil)
