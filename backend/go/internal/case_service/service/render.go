package service

import (
	"bytes"
	"strings"
	"text/template"

	"CaseForAI/backend/go/internal/apperr"
)

var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"inc":   func(i int) int { return i + 1 },
}

// parseTemplate 解析 text/template，语法错误返回 400。
func parseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(templateFuncs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "模板语法错误: "+err.Error())
	}
	return t, nil
}

// renderTemplate 解析并执行模板。
func renderTemplate(name, text string, data interface{}) (string, error) {
	t, err := parseTemplate(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", apperr.Wrap(apperr.Validation, err, "模板渲染失败: "+err.Error())
	}
	return strings.TrimSpace(buf.String()), nil
}
