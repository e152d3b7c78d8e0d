package loaders

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeHTML = "text/html"
	MimeText = "text/plain"
)

// ErrUnsupported 表示没有可以处理该文件的 Loader。
type ErrUnsupported struct {
	Name string
	MIME string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("unsupported file type %s (%s)", e.Name, e.MIME)
}

// Detect sniffs the MIME type of data, returning the type without parameters.
func Detect(data []byte) string {
	detected := mimetype.Detect(data).String()
	if mt, _, err := mime.ParseMediaType(detected); err == nil {
		return mt
	}
	return detected
}

// Allowed reports whether the sniffed type of data matches one of the allowed MIME types.
func Allowed(data []byte, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	mtype := mimetype.Detect(data)
	for _, a := range allowed {
		if mtype.Is(a) {
			return true
		}
	}
	return false
}

// ForFile picks a Loader by sniffed MIME type, falling back to the file extension
// for text formats the sniffer cannot tell apart.
func ForFile(name string, data []byte) (interfaces.Loader, error) {
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is(MimePDF):
		return NewPdfLoader(), nil
	case mtype.Is(MimeDOCX):
		return NewDocxLoader(), nil
	case mtype.Is(MimeXLSX):
		return NewXlsxLoader(), nil
	case mtype.Is(MimeHTML):
		return NewHTMLLoader(), nil
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return NewHTMLLoader(), nil
	case ".txt", ".md", ".markdown", ".csv":
		return NewTxtLoader(), nil
	}
	for p := mtype; p != nil; p = p.Parent() {
		if p.Is(MimeText) {
			return NewTxtLoader(), nil
		}
	}
	return nil, &ErrUnsupported{Name: name, MIME: mtype.String()}
}

// LoadFile is ForFile followed by Load.
func LoadFile(ctx context.Context, name string, data []byte) ([]*schema.Document, error) {
	loader, err := ForFile(name, data)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, name, data)
}

// JoinText concatenates the text of loaded pages with paragraph breaks.
func JoinText(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
