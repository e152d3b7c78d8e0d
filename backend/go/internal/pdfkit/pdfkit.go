// Package pdfkit 提供案件打包用到的 PDF 工具：渲染、合并、计页和页码。
package pdfkit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoInput 表示没有可合并的 PDF。
var ErrNoInput = errors.New("pdfkit: no input documents")

// Position 是页码在页面上的位置，取值与 pdfcpu 的锚点一致。
type Position string

const (
	BottomCenter Position = "bc"
	BottomRight  Position = "br"
	BottomLeft   Position = "bl"
	TopCenter    Position = "tc"
	TopRight     Position = "tr"
)

// NumberOptions 控制页码格式，%p 为当前页，%P 为总页数。
type NumberOptions struct {
	Format   string
	Position Position
	FontSize int
}

func (o NumberOptions) withDefaults() NumberOptions {
	if o.Format == "" {
		o.Format = "Page %p of %P"
	}
	if o.Position == "" {
		o.Position = BottomCenter
	}
	if o.FontSize <= 0 {
		o.FontSize = 9
	}
	return o
}

func (o NumberOptions) description() string {
	offset := "0 18"
	if strings.HasPrefix(string(o.Position), "t") {
		offset = "0 -18"
	}
	return fmt.Sprintf("font:Helvetica, points:%d, pos:%s, off:%s, scale:1.0 abs, rot:0, fillcolor:#404040", o.FontSize, o.Position, offset)
}

func init() {
	// 不读写用户目录下的 pdfcpu 配置
	api.DisableConfigDir()
}

func conf() *model.Configuration {
	c := model.NewDefaultConfiguration()
	c.ValidationMode = model.ValidationRelaxed
	return c
}

// PageCount 返回 PDF 的页数。
func PageCount(r io.ReadSeeker) (int, error) {
	n, err := api.PageCount(r, conf())
	if err != nil {
		return 0, fmt.Errorf("pdfkit: count pages: %w", err)
	}
	return n, nil
}

// NumberPages 在每一页上盖上页码。
func NumberPages(in io.ReadSeeker, out io.Writer, opts NumberOptions) error {
	opts = opts.withDefaults()
	c := conf()
	wm, err := api.TextWatermark(opts.Format, opts.description(), true, false, c.Unit)
	if err != nil {
		return fmt.Errorf("pdfkit: page number stamp: %w", err)
	}
	if err := api.AddWatermarks(in, out, nil, wm, c); err != nil {
		return fmt.Errorf("pdfkit: number pages: %w", err)
	}
	return nil
}

// Merge 按顺序合并多个 PDF。
func Merge(ins []io.ReadSeeker, out io.Writer) error {
	switch len(ins) {
	case 0:
		return ErrNoInput
	case 1:
		if _, err := ins[0].Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := io.Copy(out, ins[0])
		return err
	}
	if err := api.MergeRaw(ins, out, false, conf()); err != nil {
		return fmt.Errorf("pdfkit: merge: %w", err)
	}
	return nil
}

// Validate 检查数据是否为可以解析的 PDF。
func Validate(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), conf()); err != nil {
		return fmt.Errorf("pdfkit: invalid pdf: %w", err)
	}
	return nil
}

// Readers 把多个字节切片包装为 ReadSeeker。
func Readers(docs [][]byte) []io.ReadSeeker {
	out := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		out[i] = bytes.NewReader(d)
	}
	return out
}
