package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

// ShareInvite 是文档分享邮件的内容。
type ShareInvite struct {
	RecipientName string
	SenderName    string
	DocumentTitle string
	Permission    string
	Link          string
	ExpiresAt     time.Time
}

// SignatureReminder 是签署提醒邮件的内容。
type SignatureReminder struct {
	SignerName string
	Subject    string
	Message    string
	Reminder   int
}

var (
	shareHTML = htmltemplate.Must(htmltemplate.New("share").Parse(`<p>Hello{{if .RecipientName}} {{.RecipientName}}{{end}},</p>
<p>{{if .SenderName}}{{.SenderName}}{{else}}A case team member{{end}} shared <strong>{{.DocumentTitle}}</strong> with you ({{.Permission}} access).</p>
<p><a href="{{.Link}}">Open the document</a></p>
<p>This link expires on {{.ExpiresAt.Format "January 2, 2006"}}.</p>`))

	shareText = template.Must(template.New("share").Parse(`Hello{{if .RecipientName}} {{.RecipientName}}{{end}},

{{if .SenderName}}{{.SenderName}}{{else}}A case team member{{end}} shared "{{.DocumentTitle}}" with you ({{.Permission}} access).

Open it here: {{.Link}}

This link expires on {{.ExpiresAt.Format "January 2, 2006"}}.
`))

	reminderHTML = htmltemplate.Must(htmltemplate.New("reminder").Parse(`<p>Hello{{if .SignerName}} {{.SignerName}}{{end}},</p>
<p>This is a friendly reminder that <strong>{{.Subject}}</strong> is still waiting for your signature.</p>
{{if .Message}}<blockquote>{{.Message}}</blockquote>{{end}}
<p>Please check the signing invitation from our e-signature provider.</p>`))

	reminderText = template.Must(template.New("reminder").Parse(`Hello{{if .SignerName}} {{.SignerName}}{{end}},

This is a friendly reminder that "{{.Subject}}" is still waiting for your signature.
{{if .Message}}
{{.Message}}
{{end}}
Please check the signing invitation from our e-signature provider.
`))
)

// RenderShareInvite 渲染分享邮件。
func RenderShareInvite(to string, data ShareInvite) (Message, error) {
	html, text, err := render(shareHTML, shareText, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s shared with you", data.DocumentTitle),
		HTML:    html,
		Text:    text,
	}, nil
}

// RenderSignatureReminder 渲染签署提醒邮件。
func RenderSignatureReminder(to string, data SignatureReminder) (Message, error) {
	html, text, err := render(reminderHTML, reminderText, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Reminder: " + data.Subject,
		HTML:    html,
		Text:    text,
	}, nil
}

func render(h *htmltemplate.Template, t *template.Template, data interface{}) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := h.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}
	if err := t.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}
	return hb.String(), tb.String(), nil
}
