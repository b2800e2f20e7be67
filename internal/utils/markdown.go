package utils

import (
	"bytes"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithXHTML(),
		),
	)
	policy      = bluemonday.UGCPolicy()
	stripPolicy = bluemonday.StrictPolicy()
)

func init() {
	// Force links to open in new tab
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)
}

// RenderMarkdown 渲染评论 Markdown 并过滤 HTML
func RenderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source) // Fallback
	}
	return policy.Sanitize(buf.String())
}

// StripHTML 去掉所有标签，用于抓取到的元信息
func StripHTML(s string) string {
	return html.UnescapeString(stripPolicy.Sanitize(s))
}
