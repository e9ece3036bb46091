package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Raw HTML in the source is not rendered (no html.WithUnsafe).
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Footnote),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Markdown converts GFM source into a complete HTML document.
func Markdown(src []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert(src, &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	return execute("document.html", documentData{
		Title: "Document",
		Body:  template.HTML(body.String()),
	})
}
