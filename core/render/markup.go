package render

import (
	"bytes"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

var sanitizer = bluemonday.UGCPolicy()

// markdown converts markdown to sanitized HTML.
func markdown(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return html.EscapeString(content)
	}
	return strings.TrimSpace(sanitizer.Sanitize(buf.String()))
}

// safeURL drops URLs the sanitizer would not keep in a link (javascript:, etc).
func safeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:image/") || strings.HasPrefix(raw, "data:video/") {
		return raw
	}
	out := sanitizer.Sanitize(`<a href="` + html.EscapeString(raw) + `">x</a>`)
	if !strings.Contains(out, "href=") {
		return ""
	}
	return raw
}
