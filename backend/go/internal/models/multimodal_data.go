package models

import "time"

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerSystem    SpeakerRole = "system"    // 系统提示词。
	SpeakerUser      SpeakerRole = "user"      // 用户角色。
	SpeakerAssistant SpeakerRole = "assistant" // 助手角色。
	SpeakerModel     SpeakerRole = "model"     // 模型角色。
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	// 可选。构成单个消息的部分列表。
	Parts []*Part `json:"parts,omitempty"`
	// 可选。内容的生产者。
	Role SpeakerRole `json:"role,omitempty"`
}

// GenerateContentRequest 定义了生成内容的请求结构。
type GenerateContentRequest struct {
	// SystemInstruction 是提示词的 system 部分，为空时不发送。
	SystemInstruction string `json:"systemInstruction,omitempty"`
	// Content 请求的内容列表。
	Content []Content `json:"content,omitempty"`
	// Model 覆盖客户端默认模型，为空时使用默认模型。
	Model string `json:"model,omitempty"`
	// Temperature 为 0 时使用服务商默认值。
	Temperature float32 `json:"temperature,omitempty"`
	// JSONOutput 要求模型只返回 JSON。
	JSONOutput bool `json:"jsonOutput,omitempty"`
}

// NewTextRequest 构造只包含一条用户文本消息的请求。
func NewTextRequest(system, user string) *GenerateContentRequest {
	return &GenerateContentRequest{
		SystemInstruction: system,
		Content: []Content{{
			Role:  SpeakerUser,
			Parts: []*Part{{Text: user}},
		}},
	}
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`      // 响应的内容列表。
	CreateTime   time.Time `json:"createTime,omitempty"`   // 响应创建时间。
	ResponseID   string    `json:"responseId,omitempty"`   // 响应ID。
	ModelVersion string    `json:"modelVersion,omitempty"` // 模型版本。
}

// Text 拼接响应中所有文本部分。
func (r *GenerateContentResponse) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Content {
		for _, p := range c.Parts {
			if p != nil {
				out += p.Text
			}
		}
	}
	return out
}

// Part 定义了消息的单个部分。
type Part struct {
	// 可选。内联字节数据。
	InlineData *Blob `json:"inlineData,omitempty"`
	// 可选。文本部分。
	Text string `json:"text,omitempty"`
}

// Blob 包含了内联的二进制数据。
type Blob struct {
	// 必填。原始字节数据。
	Data []byte `json:"data,omitempty"`
	// 必填。源数据的 IANA 标准 MIME 类型。
	MIMEType string `json:"mimeType,omitempty"`
}
