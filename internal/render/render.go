// Package render builds the HTML documents handed to the conversion engine.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// GeneratedLayout is the timestamp format printed on tabular reports.
const GeneratedLayout = "2006-01-02 15:04:05"

var templates = template.Must(template.New("render").Funcs(template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"lines": func(s string) []string {
		if s == "" {
			return nil
		}
		return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	},
}).ParseFS(templateFS, "templates/*.html"))

type tableData struct {
	Title     string
	Generated string
	Header    []string
	Rows      [][]string
}

type documentData struct {
	Title string
	Body  template.HTML
}

func execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func table(title string, header []string, rows [][]string, now time.Time) ([]byte, error) {
	return execute("table.html", tableData{
		Title:     title,
		Generated: now.Format(GeneratedLayout),
		Header:    header,
		Rows:      rows,
	})
}

// ImageWrapper returns a page showing the image referenced by filename.
func ImageWrapper(filename string) ([]byte, error) {
	return execute("image.html", filename)
}
