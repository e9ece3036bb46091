package domain

import (
	"context"
	"io"
	"strconv"
)

// Content types the gateway relays.
const (
	ContentTypeHTML = "text/html"
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

// File is one multipart file part sent to the engine.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// PageOptions are paper dimensions and margins in inches. The zero value
// leaves every option to the engine defaults.
type PageOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	MarginTop       float64
	MarginBottom    float64
	MarginLeft      float64
	MarginRight     float64
	PrintBackground bool
}

// IsZero reports whether no option is set.
func (o PageOptions) IsZero() bool { return o == PageOptions{} }

// Fields renders the options as engine form fields. Once any option is set,
// margins are always sent so that zero means no margin; paper sizes are sent
// only when positive.
func (o PageOptions) Fields() map[string]string {
	out := make(map[string]string)
	if o.IsZero() {
		return out
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	if o.PaperWidth > 0 {
		out["paperWidth"] = format(o.PaperWidth)
	}
	if o.PaperHeight > 0 {
		out["paperHeight"] = format(o.PaperHeight)
	}
	out["marginTop"] = format(o.MarginTop)
	out["marginBottom"] = format(o.MarginBottom)
	out["marginLeft"] = format(o.MarginLeft)
	out["marginRight"] = format(o.MarginRight)
	if o.PrintBackground {
		out["printBackground"] = "true"
	}
	return out
}

// HTMLDocument is an index.html with the files it references by name.
type HTMLDocument struct {
	Index  []byte
	Assets []File
	Page   PageOptions
}

// Engine converts documents to PDF. Returned readers must be closed by the caller.
type Engine interface {
	ConvertHTML(ctx context.Context, doc HTMLDocument) (io.ReadCloser, error)
	ConvertURL(ctx context.Context, url string, page PageOptions) (io.ReadCloser, error)
	Merge(ctx context.Context, files []File) (io.ReadCloser, error)
	Ping(ctx context.Context) error
}
