package splitters

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrInvalidSize 表示块大小不合法。
	ErrInvalidSize = errors.New("chunk size must be positive")
	// ErrInvalidOverlap 表示重叠长度不合法。
	ErrInvalidOverlap = errors.New("chunk overlap must be >= 0 and smaller than size")
)

// Span 描述一个块在规范化文本中的位置（以 rune 计）。
// Text 是该窗口去除首尾空白后的内容。
type Span struct {
	Start int
	End   int
	Text  string
}

// ChunkText 将文本切分为不超过 size 个 rune 的块，相邻块之间重叠 overlap 个 rune。
func ChunkText(text string, size, overlap int) ([]string, error) {
	_, spans, err := ChunkSpans(text, size, overlap)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		out = append(out, s.Text)
	}
	return out, nil
}

// ChunkSpans 与 ChunkText 相同，但同时返回规范化后的文本和每个块的位置。
func ChunkSpans(text string, size, overlap int) (string, []Span, error) {
	if size <= 0 {
		return "", nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return "", nil, ErrInvalidOverlap
	}

	normalized := Normalize(text)
	r := []rune(normalized)
	n := len(r)
	if n == 0 {
		return normalized, nil, nil
	}

	minStep := size / 2
	if minStep < overlap+1 {
		minStep = overlap + 1
	}

	var spans []Span
	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			// 窗口内至少要包含一个非空白字符
			first := start
			for first < n && unicode.IsSpace(r[first]) {
				first++
			}
			minEnd := start + minStep
			if minEnd < first+1 {
				minEnd = first + 1
			}
			if minEnd <= end {
				end = breakPoint(r, start, end, minEnd)
			}
		}

		if chunk := strings.TrimSpace(string(r[start:end])); chunk != "" {
			spans = append(spans, Span{Start: start, End: end, Text: chunk})
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return normalized, spans, nil
}

// breakPoint 在 [minEnd, end] 中从后向前寻找切分点，返回值为块的结束位置（不含）。
// 优先级：段落 > 换行 > 句末 > 空格 > 硬切。
func breakPoint(r []rune, start, end, minEnd int) int {
	for b := end; b >= minEnd; b-- {
		if b-2 >= start && r[b-1] == '\n' && r[b-2] == '\n' {
			return b
		}
	}
	for b := end; b >= minEnd; b-- {
		if r[b-1] == '\n' {
			return b
		}
	}
	for b := end; b >= minEnd; b-- {
		if isSentenceEnd(r[b-1]) && b < len(r) && (r[b] == ' ' || r[b] == '\n') {
			return b
		}
	}
	for b := end; b >= minEnd; b-- {
		if r[b-1] == ' ' {
			return b
		}
	}
	return end
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

// Normalize 规范化空白：统一换行符，折叠行内连续空白，去掉每行首尾空白，
// 连续空行合并为一个段落分隔 ("\n\n")。
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, isInlineSpace), " ")
		if line == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func isInlineSpace(c rune) bool {
	return c != '\n' && unicode.IsSpace(c)
}
