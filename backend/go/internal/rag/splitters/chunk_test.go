package splitters

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = `Dr. Ada Chen is a leading researcher in   computational biology.	Her work on protein folding has been cited over 4,000 times!

She has served as a reviewer for Nature, Science and Cell.
She received the 2021 Breakthrough Award.   Is this extraordinary? Yes.


中文段落：陈博士在蛋白质折叠领域做出了重要贡献。她的研究被广泛引用。

Final paragraph with a verylongwordthatcannotbebrokenanywhereatallbecauseithasnospaces in it.`

func TestNormalize(t *testing.T) {
	got := Normalize("  a  b\r\n\r\n\r\n c\t\td \n\n\n\ne  ")
	assert.Equal(t, "a b\n\nc d\n\ne", got)
	assert.Equal(t, "", Normalize(" \n\t\n "))
}

func TestChunkText_InvalidArguments(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
		want          error
	}{
		{"zero size", 0, 0, ErrInvalidSize},
		{"negative size", -5, 0, ErrInvalidSize},
		{"negative overlap", 10, -1, ErrInvalidOverlap},
		{"overlap equals size", 10, 10, ErrInvalidOverlap},
		{"overlap larger than size", 10, 11, ErrInvalidOverlap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ChunkText("some text", tc.size, tc.overlap)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestChunkText_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t"} {
		chunks, err := ChunkText(in, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestChunkText_ShortTextIsSingleChunk(t *testing.T) {
	chunks, err := ChunkText("hello   world\t!", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world !"}, chunks)
}

func TestChunkText_PrefersParagraphBreak(t *testing.T) {
	chunks, err := ChunkText("aaaa bbbb.\n\ncccc dddd", 15, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa bbbb.", "cccc dddd"}, chunks)
}

func TestChunkText_PrefersSentenceOverSpace(t *testing.T) {
	chunks, err := ChunkText("One two. Three four five", 12, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"One two.", "Three four", "five"}, chunks)
}

func TestChunkText_HardCutWithOverlap(t *testing.T) {
	chunks, err := ChunkText("abcdefghij", 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "defg", "ghij"}, chunks)
}

func TestChunkText_CountsRunes(t *testing.T) {
	chunks, err := ChunkText("陈博士在蛋白质折叠领域做出了重要贡献", 5, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 5)
	}
	assert.Equal(t, "陈博士在蛋", chunks[0])
}

func TestChunkSpans_Invariants(t *testing.T) {
	for size := 3; size <= 60; size++ {
		for _, overlap := range []int{0, 1, size / 4, size / 2, size - 1} {
			if overlap >= size {
				continue
			}
			normalized, spans, err := ChunkSpans(sampleText, size, overlap)
			require.NoError(t, err)
			require.NotEmpty(t, spans)
			r := []rune(normalized)

			assert.Equal(t, 0, spans[0].Start)
			assert.Equal(t, len(r), spans[len(spans)-1].End)

			var rebuilt strings.Builder
			prevEnd := 0
			for i, s := range spans {
				assert.NotEmpty(t, s.Text)
				assert.Equal(t, strings.TrimSpace(s.Text), s.Text)
				assert.LessOrEqual(t, utf8.RuneCountInString(s.Text), size, "size=%d overlap=%d chunk=%d", size, overlap, i)
				assert.Equal(t, strings.TrimSpace(string(r[s.Start:s.End])), s.Text)
				if i > 0 {
					assert.Equal(t, prevEnd-overlap, s.Start, "size=%d overlap=%d chunk=%d", size, overlap, i)
					assert.Greater(t, s.End, prevEnd)
				}
				// 去掉与上一块重叠的部分后拼接
				rebuilt.WriteString(string(r[prevEnd:s.End]))
				prevEnd = s.End
			}
			assert.Equal(t, normalized, rebuilt.String(), "size=%d overlap=%d", size, overlap)
		}
	}
}

func TestChunkText_TinySizesStillProgress(t *testing.T) {
	chunks, err := ChunkText("a b", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, chunks)
}

func TestTextSplitter_Split(t *testing.T) {
	_, err := NewTextSplitter(10, 10)
	require.ErrorIs(t, err, ErrInvalidOverlap)

	s, err := NewTextSplitter(12, 0)
	require.NoError(t, err)

	docs := []*schema.Document{
		{ID: "p1", Text: "One two. Three four five", Metadata: map[string]interface{}{
			schema.MetadataKeyPageLabel:  "1",
			schema.MetadataKeyCaseID:     "case-1",
			schema.MetadataKeyDocumentID: "doc-1",
		}},
		{ID: "p2", Text: "six", Metadata: map[string]interface{}{schema.MetadataKeyPageLabel: "2"}},
	}
	chunks, err := s.Split(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "One two.", chunks[0].Text)
	assert.Equal(t, "p1", chunks[0].Metadata[schema.MetadataKeyOriginalDocID])
	assert.Equal(t, 1, chunks[0].Metadata[schema.MetadataKeyChunkNumber])
	assert.Equal(t, "case-1", chunks[0].Metadata[schema.MetadataKeyCaseID])
	assert.Equal(t, "doc-1", chunks[2].Metadata[schema.MetadataKeyDocumentID])
	assert.Equal(t, "2", chunks[3].Metadata[schema.MetadataKeyPageLabel])
	assert.Equal(t, 4, chunks[3].Metadata[schema.MetadataKeyChunkNumber])
	assert.NotEqual(t, chunks[0].ID, chunks[1].ID)
	// 原始文档的元数据不应被修改
	assert.NotContains(t, docs[0].Metadata, schema.MetadataKeyChunkNumber)
}
