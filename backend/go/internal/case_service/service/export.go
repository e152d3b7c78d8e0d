package service

import (
	"bytes"
	"fmt"
	"strings"

	"CaseForAI/backend/go/internal/pdfkit"

	"github.com/unidoc/unioffice/v2/document"
	"github.com/unidoc/unioffice/v2/measurement"
)

// 导出格式
const (
	FormatDOCX = "docx"
	FormatPDF  = "pdf"
)

const mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// renderDOCX 把 Markdown 草稿写成 Word 文档。标题行 (#) 加粗，其余按段落输出。
func renderDOCX(title, body string) ([]byte, error) {
	doc := document.New()
	defer doc.Close()

	head := doc.AddParagraph().AddRun()
	head.Properties().SetBold(true)
	head.Properties().SetSize(16 * measurement.Point)
	head.AddText(title)

	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		run := doc.AddParagraph().AddRun()
		if h := strings.TrimLeft(trimmed, "#"); len(h) < len(trimmed) {
			run.Properties().SetBold(true)
			run.AddText(strings.TrimSpace(h))
			continue
		}
		run.AddText(trimmed)
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, fmt.Errorf("failed to write docx: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPDF(title, body string) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdfkit.RenderText(title, body, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// safeFileName 把标题转换成可以作为下载文件名的字符串。
func safeFileName(title, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "document"
	}
	return name + "." + ext
}
