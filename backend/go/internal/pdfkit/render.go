package pdfkit

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	margin     = 72.0 // 1 inch
	bodyFont   = 11.0
	lineHeight = 15.0
)

// CoverInfo 是封面页的内容。
type CoverInfo struct {
	Title           string
	ApplicationType string
	Beneficiary     string
	Field           string
	Version         int
	PreparedAt      time.Time
}

// ExhibitEntry 是证据目录中的一行。
type ExhibitEntry struct {
	Number    string // 例如 "A-1"
	Title     string
	Criterion string
	Pages     int  // 合并后的起始页，0 表示不在合并文件中
	Separate  bool // 非 PDF 材料，单独提供
}

func newDoc() (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCreator("case-for-ai", true)
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

func output(pdf *fpdf.Fpdf, out io.Writer) error {
	if err := pdf.Output(out); err != nil {
		return fmt.Errorf("pdfkit: render: %w", err)
	}
	return nil
}

// RenderText 把纯文本渲染成 US Letter 页面，空行分段，段落自动换行。
func RenderText(title, body string, out io.Writer) error {
	pdf, tr := newDoc()
	pdf.SetTitle(title, true)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Helvetica", "B", 16)
		pdf.MultiCell(0, 20, tr(title), "", "L", false)
		pdf.Ln(lineHeight)
	}

	pdf.SetFont("Times", "", bodyFont)
	for i, para := range paragraphs(body) {
		if i > 0 {
			pdf.Ln(lineHeight / 2)
		}
		pdf.MultiCell(0, lineHeight, tr(para), "", "L", false)
	}
	return output(pdf, out)
}

// paragraphs 以空行分段，段内换行合并为空格。
func paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(body, "\n\n") {
		lines := strings.Fields(strings.ReplaceAll(block, "\n", " "))
		if len(lines) == 0 {
			continue
		}
		out = append(out, strings.Join(lines, " "))
	}
	if len(out) == 0 {
		out = append(out, " ")
	}
	return out
}

// CoverPage 渲染案件打包的封面页。
func CoverPage(info CoverInfo, out io.Writer) error {
	pdf, tr := newDoc()
	pdf.AddPage()

	pdf.SetY(220)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.MultiCell(0, 30, tr(info.Title), "", "C", false)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 14)
	if info.ApplicationType != "" {
		pdf.MultiCell(0, 20, tr("Petition for "+info.ApplicationType), "", "C", false)
	}
	if info.Beneficiary != "" {
		pdf.MultiCell(0, 20, tr("Beneficiary: "+info.Beneficiary), "", "C", false)
	}
	if info.Field != "" {
		pdf.MultiCell(0, 20, tr("Field of expertise: "+info.Field), "", "C", false)
	}

	pdf.SetY(-margin - 40)
	pdf.SetFont("Helvetica", "I", 10)
	prepared := info.PreparedAt
	if prepared.IsZero() {
		prepared = time.Now()
	}
	footer := fmt.Sprintf("Package version %d, prepared %s", info.Version, prepared.Format("January 2, 2006"))
	pdf.MultiCell(0, 14, tr(footer), "", "C", false)
	return output(pdf, out)
}

// ExhibitIndex 渲染证据目录页。
func ExhibitIndex(entries []ExhibitEntry, out io.Writer) error {
	pdf, tr := newDoc()
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 24, "Exhibit Index", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	w, _ := pdf.GetPageSize()
	usable := w - 2*margin
	cols := []float64{50, usable - 50 - 140 - 60, 140, 60}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	for i, h := range []string{"Exhibit", "Document", "Criterion", "Page"} {
		pdf.CellFormat(cols[i], 18, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, e := range entries {
		page := "-"
		switch {
		case e.Separate:
			page = "separate"
		case e.Pages > 0:
			page = fmt.Sprint(e.Pages)
		}
		title := e.Title
		if e.Separate {
			title += " (provided separately)"
		}
		pdf.CellFormat(cols[0], 18, tr(e.Number), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[1], 18, tr(truncate(pdf, title, cols[1]-4)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[2], 18, tr(truncate(pdf, e.Criterion, cols[2]-4)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(cols[3], 18, page, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}
	if len(entries) == 0 {
		pdf.CellFormat(usable, 18, "No exhibits.", "1", 1, "C", false, 0, "")
	}
	return output(pdf, out)
}

// truncate 截断超出单元格宽度的文本。
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
