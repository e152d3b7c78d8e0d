package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"CaseForAI/backend/go/internal/pdfkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	body := strings.Repeat(strings.Repeat("evidence ", 300)+"\n\n", 6)
	require.NoError(t, pdfkit.RenderText("Exhibit A", body, &buf))
	return buf.Bytes()
}

func TestChunkPrintsChunks(t *testing.T) {
	text := strings.Repeat("The petitioner received a national award. ", 10)
	path := writeFile(t, "notes.txt", []byte(text))

	out, err := run(t, "chunk", path, "--size", "120", "--overlap", "20", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "--- chunk 1 (")
	assert.Contains(t, out, "--- chunk 2 (")
	assert.Contains(t, out, "chunks from")
}

func TestChunkJSON(t *testing.T) {
	path := writeFile(t, "notes.md", []byte(strings.Repeat("judging panels ", 40)))

	out, err := run(t, "chunk", path, "--size", "100", "--overlap", "0", "--json")
	require.NoError(t, err)
	var chunks []string
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
	}
}

func TestChunkRejectsBadOverlap(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("short text"))

	_, err := run(t, "chunk", path, "--size", "50", "--overlap", "50", "--json=false")
	assert.Error(t, err)
}

func TestPDFPagesAndNumber(t *testing.T) {
	data := samplePDF(t)
	in := writeFile(t, "in.pdf", data)
	n, err := pdfkit.PageCount(bytes.NewReader(data))
	require.NoError(t, err)

	out, err := run(t, "pdf", "pages", in)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(n), strings.TrimSpace(out))

	dst := filepath.Join(t.TempDir(), "numbered.pdf")
	out, err = run(t, "pdf", "number", in, dst, "--position", "br", "--format", "%p / %P")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+dst)

	numbered, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.NoError(t, pdfkit.Validate(numbered))
	m, err := pdfkit.PageCount(bytes.NewReader(numbered))
	require.NoError(t, err)
	assert.Equal(t, n, m)
}

func TestPDFNumberRejectsUnknownPosition(t *testing.T) {
	in := writeFile(t, "in.pdf", samplePDF(t))

	_, err := run(t, "pdf", "number", in, filepath.Join(t.TempDir(), "out.pdf"), "--position", "middle")
	assert.ErrorContains(t, err, "unknown position")
}

func TestPDFPagesRejectsNonPDF(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("not a pdf"))

	_, err := run(t, "pdf", "pages", path)
	assert.Error(t, err)
}

func TestMigrateNeedsConfig(t *testing.T) {
	_, err := run(t, "migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "load config")
}
