package loaders

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/rag/schema"
	pkghttp "CaseForAI/backend/go/pkg/http"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestForFile_Dispatch(t *testing.T) {
	l, err := ForFile("notes.txt", []byte("plain notes"))
	require.NoError(t, err)
	assert.IsType(t, &TxtLoader{}, l)

	l, err = ForFile("readme.md", []byte("# Title\n\nbody"))
	require.NoError(t, err)
	assert.IsType(t, &TxtLoader{}, l)

	l, err = ForFile("page.bin", []byte("<!DOCTYPE html><html><body><p>x</p></body></html>"))
	require.NoError(t, err)
	assert.IsType(t, &HTMLLoader{}, l)

	l, err = ForFile("doc.pdf", []byte("%PDF-1.4\n"))
	require.NoError(t, err)
	assert.IsType(t, &PdfLoader{}, l)

	_, err = ForFile("photo.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	var unsupported *ErrUnsupported
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "image/png", unsupported.MIME)
}

func TestDetectAndAllowed(t *testing.T) {
	assert.Equal(t, "text/plain", Detect([]byte("hello")))
	assert.True(t, Allowed([]byte("%PDF-1.4\n"), []string{MimePDF}))
	assert.False(t, Allowed([]byte("hello"), []string{MimePDF}))
	assert.True(t, Allowed([]byte("hello"), nil))
}

func TestHTMLLoader(t *testing.T) {
	docs, err := NewHTMLLoader().Load(context.Background(), "award.html",
		[]byte("<html><body><h1>Award</h1><p>Dr. Chen <strong>won</strong>.</p></body></html>"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "# Award")
	assert.Contains(t, docs[0].Text, "**won**")
	assert.Equal(t, "award.html", docs[0].Metadata[schema.MetadataKeyFileName])
}

func TestXlsxLoader(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Journal", "Year"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Nature", 2021}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	docs, err := LoadFile(context.Background(), "citations.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "| Journal | Year |\n| --- | --- |\n| Nature | 2021 |\n", docs[0].Text)
	assert.Equal(t, "Sheet1", docs[0].Metadata[schema.MetadataKeyPageLabel])
}

func TestPdfLoader(t *testing.T) {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 12)
	pdf.AddPage()
	pdf.Cell(40, 10, "FirstPage")
	pdf.AddPage()
	pdf.Cell(40, 10, "SecondPage")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	docs, err := LoadFile(context.Background(), "letter.pdf", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0].Text, "FirstPage")
	assert.Equal(t, "2", docs[1].Metadata[schema.MetadataKeyPageLabel])
}

func TestWebLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h2>Press</h2><p>Coverage</p></body></html>"))
	}))
	defer srv.Close()

	client, err := pkghttp.NewClient(config.CircuitBreakerConfig{Enabled: false}, time.Second)
	require.NoError(t, err)
	loader := NewWebLoader(client)

	docs, err := loader.Load(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Text, "## Press")
	assert.Equal(t, srv.URL+"/article", docs[0].Metadata[schema.MetadataKeySourceURL])

	_, err = loader.Fetch(context.Background(), "file:///etc/passwd")
	assert.Error(t, err)
}

func TestPublicWebLoaderRefusesInternalAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>INTERNAL-SECRET-admin-panel</body></html>"))
	}))
	defer srv.Close()

	loader, err := NewPublicWebLoader(time.Second)
	require.NoError(t, err)

	docs, err := loader.Load(context.Background(), srv.URL+"/internal")
	assert.ErrorIs(t, err, pkghttp.ErrForbiddenAddress)
	assert.Empty(t, docs)

	_, err = loader.Fetch(context.Background(), "http://169.254.169.254/latest/meta-data/")
	assert.ErrorIs(t, err, pkghttp.ErrForbiddenAddress)
}

func TestJoinText(t *testing.T) {
	docs := []*schema.Document{{Text: " a "}, {Text: ""}, {Text: "b"}}
	assert.Equal(t, "a\n\nb", JoinText(docs))
}
