package loaders

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
	"github.com/unidoc/unioffice/v2/document"
)

// DocxLoader 实现了用于读取 Word (.docx) 文件的 Loader 接口。
type DocxLoader struct{}

// NewDocxLoader 创建一个新的 DocxLoader。
func NewDocxLoader() *DocxLoader {
	return &DocxLoader{}
}

// Load 读取 .docx 内容，每个段落一行，表格按行输出，返回一个 Document。
func (l *DocxLoader) Load(ctx context.Context, name string, data []byte) ([]*schema.Document, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx %s: %w", name, err)
	}
	defer doc.Close()

	var textBuilder strings.Builder
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs() {
			textBuilder.WriteString(r.Text())
		}
		textBuilder.WriteString("\n")
	}
	// 表格中的段落不在 Paragraphs() 中
	for _, t := range doc.Tables() {
		for _, row := range t.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				var cb strings.Builder
				for _, p := range cell.Paragraphs() {
					for _, r := range p.Runs() {
						cb.WriteString(r.Text())
					}
				}
				cells = append(cells, cb.String())
			}
			textBuilder.WriteString(strings.Join(cells, " | "))
			textBuilder.WriteString("\n")
		}
	}

	return []*schema.Document{{
		ID:   uuid.NewString(),
		Text: textBuilder.String(),
		Metadata: map[string]interface{}{
			schema.MetadataKeyFileName: filepath.Base(name),
		},
	}}, nil
}

// 编译时检查，确保 DocxLoader 实现了 Loader 接口
var _ interfaces.Loader = (*DocxLoader)(nil)
