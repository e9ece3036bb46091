package handlers

import (
	"bytes"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"

	"pdfgateway/internal/domain"
	"pdfgateway/internal/infra/cache"
	"pdfgateway/internal/infra/logging"
	"pdfgateway/internal/render"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// convertHTML sends doc to the engine and answers with the PDF.
func (s *Service) convertHTML(c *fiber.Ctx, out output, doc domain.HTMLDocument) error {
	if hit, err := s.cached(c, out); hit {
		return err
	}
	rc, err := s.engine.ConvertHTML(c.UserContext(), doc)
	if err != nil {
		return s.fail(c, out.route, err)
	}
	return s.respond(c, out, rc)
}

// HandleInvoice renders an invoice JSON document.
func (s *Service) HandleInvoice(c *fiber.Ctx) error {
	inv, err := domain.DecodeInvoice(c.Body())
	if err != nil {
		return s.fail(c, "invoice", err)
	}
	html, err := render.Invoice(inv)
	if err != nil {
		return s.fail(c, "invoice", err)
	}

	return s.convertHTML(c, output{
		route:    "invoice",
		filename: "invoice_" + inv.InvoiceNumber + ".pdf",
		cacheKey: s.cacheKey("invoice", html),
	}, domain.HTMLDocument{Index: html})
}

// HandleCSV renders an uploaded CSV file as a table report.
func (s *Service) HandleCSV(c *fiber.Ctx) error {
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	data, err := s.readUpload(fh)
	if err != nil {
		return s.fail(c, "csv", err)
	}
	html, err := render.CSVReport(bytes.NewReader(data), s.now())
	if err != nil {
		return s.fail(c, "csv", err)
	}

	return s.convertHTML(c, output{
		route:    "csv",
		filename: "csv_report.pdf",
		cacheKey: s.cacheKey("csv", data),
	}, domain.HTMLDocument{Index: html})
}

// HandleXLSX renders the first or the named worksheet of an uploaded workbook.
func (s *Service) HandleXLSX(c *fiber.Ctx) error {
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	data, err := s.readUpload(fh)
	if err != nil {
		return s.fail(c, "xlsx", err)
	}
	if !mimetype.Detect(data).Is(mimeXLSX) {
		return fiber.NewError(fiber.StatusBadRequest, "Only XLSX workbooks are supported")
	}
	sheet := c.FormValue("sheet")
	html, err := render.XLSXReport(bytes.NewReader(data), sheet, s.now())
	if err != nil {
		return s.fail(c, "xlsx", err)
	}

	return s.convertHTML(c, output{
		route:    "xlsx",
		filename: "xlsx_report.pdf",
		cacheKey: s.cacheKey("xlsx", []byte(sheet), data),
	}, domain.HTMLDocument{Index: html})
}

// HandleMarkdown renders Markdown from a "file" upload or the raw body.
func (s *Service) HandleMarkdown(c *fiber.Ctx) error {
	var src []byte
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		fh, err := formFile(c, "file")
		if err != nil {
			return err
		}
		if src, err = s.readUpload(fh); err != nil {
			return s.fail(c, "markdown", err)
		}
	} else {
		src = c.Body()
	}
	if len(bytes.TrimSpace(src)) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Markdown document is empty")
	}
	html, err := render.Markdown(src)
	if err != nil {
		return s.fail(c, "markdown", err)
	}

	return s.convertHTML(c, output{
		route:    "markdown",
		filename: "document.pdf",
		cacheKey: s.cacheKey("markdown", html),
	}, domain.HTMLDocument{Index: html})
}

// HandleTemplate converts the configured report template and its assets.
func (s *Service) HandleTemplate(c *fiber.Ctx) error {
	tpl := s.cfg.Templates
	index, err := os.ReadFile(filepath.Join(tpl.Dir, tpl.Index))
	if errors.Is(err, fs.ErrNotExist) {
		return fiber.NewError(fiber.StatusNotFound, "Template file not found")
	}
	if err != nil {
		return s.fail(c, "html", err)
	}

	parts := [][]byte{index}
	doc := domain.HTMLDocument{
		Index: index,
		Page: domain.PageOptions{
			PaperWidth:   tpl.Page.PaperWidth,
			PaperHeight:  tpl.Page.PaperHeight,
			MarginTop:    tpl.Page.MarginTop,
			MarginBottom: tpl.Page.MarginBottom,
			MarginLeft:   tpl.Page.MarginLeft,
			MarginRight:  tpl.Page.MarginRight,
		},
	}
	for _, name := range tpl.Assets {
		data, err := os.ReadFile(filepath.Join(tpl.Dir, name))
		if err != nil {
			logging.Warn("Template asset not found", "asset", name, "error", err)
			continue
		}
		doc.Assets = append(doc.Assets, domain.File{
			Name:        filepath.Base(name),
			ContentType: mimetype.Detect(data).String(),
			Data:        data,
		})
		parts = append(parts, []byte(name), data)
	}

	return s.convertHTML(c, output{
		route:    "html",
		filename: "report.pdf",
		cacheKey: s.cacheKey("html", parts...),
	}, doc)
}

// HandleURL prints a remote http(s) page.
func (s *Service) HandleURL(c *fiber.Ctx) error {
	target := c.FormValue("url")
	if target == "" {
		target = c.Query("url")
	}
	if target == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid URL: missing")
	}
	parsed, err := url.ParseRequestURI(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid URL: must be HTTP or HTTPS")
	}

	out := output{route: "url", filename: "page.pdf", cacheKey: s.cacheKey("url", []byte(target))}
	if hit, err := s.cached(c, out); hit {
		return err
	}
	rc, err := s.engine.ConvertURL(c.UserContext(), target, domain.PageOptions{})
	if err != nil {
		return s.fail(c, out.route, err)
	}
	return s.respond(c, out, rc)
}

// HandleImage wraps one JPEG or PNG upload into a page.
func (s *Service) HandleImage(c *fiber.Ctx) error {
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	data, err := s.readUpload(fh)
	if err != nil {
		return s.fail(c, "image", err)
	}
	img, err := imageFile(fh.Filename, data)
	if err != nil {
		return err
	}
	doc, err := imageDocument(img)
	if err != nil {
		return s.fail(c, "image", err)
	}

	return s.convertHTML(c, output{
		route:    "image",
		filename: img.Name + ".pdf",
		cacheKey: s.cacheKey("image", []byte(img.Name), data),
	}, doc)
}

// imageFile sniffs data and names it after the upload.
func imageFile(filename string, data []byte) (domain.File, error) {
	mt := mimetype.Detect(data)
	if !mt.Is(domain.ContentTypeJPEG) && !mt.Is(domain.ContentTypePNG) {
		return domain.File{}, fiber.NewError(fiber.StatusBadRequest, "Only JPEG and PNG images are supported")
	}
	name := filepath.Base(filename)
	switch name {
	case ".", string(filepath.Separator), "index.html":
		name = "image" + mt.Extension()
	default:
		name = SafeFilename(name)
	}
	return domain.File{Name: name, ContentType: mt.String(), Data: data}, nil
}

func imageDocument(img domain.File) (domain.HTMLDocument, error) {
	html, err := render.ImageWrapper(img.Name)
	if err != nil {
		return domain.HTMLDocument{}, err
	}
	return domain.HTMLDocument{Index: html, Assets: []domain.File{img}}, nil
}

// cacheKey is empty when caching is disabled.
func (s *Service) cacheKey(route string, parts ...[]byte) string {
	if s.cache == nil || !s.cfg.Cache.PDFCacheEnabled {
		return ""
	}
	return cache.Key(route, parts...)
}
