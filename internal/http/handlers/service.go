// Package handlers implements the conversion and ops routes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"os"
	"regexp"
	"time"

	"github.com/gofiber/fiber/v2"

	"pdfgateway/internal/config"
	"pdfgateway/internal/domain"
	"pdfgateway/internal/infra/archive"
	"pdfgateway/internal/infra/cache"
	"pdfgateway/internal/infra/logging"
	"pdfgateway/internal/infra/staging"
)

// EngineInfo describes the configured conversion engine for /ops/engine.
type EngineInfo struct {
	Driver  string
	Address string
}

type Deps struct {
	Config  config.Config
	Engine  domain.Engine
	Info    EngineInfo
	Stager  *staging.Stager
	Cache   *cache.PDFCache
	Archive archive.Archiver
	Now     func() time.Time
}

// Service bundles configuration and dependencies of the routes.
type Service struct {
	cfg     config.Config
	engine  domain.Engine
	info    EngineInfo
	stager  *staging.Stager
	cache   *cache.PDFCache
	archive archive.Archiver
	now     func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		cfg:     d.Config,
		engine:  d.Engine,
		info:    d.Info,
		stager:  d.Stager,
		cache:   d.Cache,
		archive: d.Archive,
		now:     d.Now,
	}
	if s.archive == nil {
		s.archive = archive.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register mounts every route on r.
func (s *Service) Register(r fiber.Router) {
	r.Post("/convert/invoice", s.HandleInvoice)
	r.Post("/convert/csv", s.HandleCSV)
	r.Post("/convert/xlsx", s.HandleXLSX)
	r.Post("/convert/markdown", s.HandleMarkdown)
	r.Post("/convert/html", s.HandleTemplate)
	r.Post("/convert/url", s.HandleURL)
	r.Post("/convert/image", s.HandleImage)
	r.Post("/merge-pdfs", s.HandleMerge)
	r.Get("/ops/engine", s.HandleEngineInfo)
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeFilename restricts a download name to [A-Za-z0-9_.-].
func SafeFilename(name string) string {
	name = unsafeFilename.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "document.pdf"
	}
	return name
}

// output describes where a conversion result goes.
type output struct {
	route    string
	filename string
	cacheKey string
}

// cached answers from the PDF cache when possible.
func (s *Service) cached(c *fiber.Ctx, out output) (bool, error) {
	if out.cacheKey == "" {
		return false, nil
	}
	data, ok := s.cache.Get(c.UserContext(), out.cacheKey)
	if !ok {
		return false, nil
	}
	setPDFHeaders(c, out.filename)
	return true, c.Send(data)
}

// respond stages the engine result and streams it back. The staged file is
// removed once the body is written.
func (s *Service) respond(c *fiber.Ctx, out output, rc io.ReadCloser) error {
	f, err := s.stage(out.route, rc)
	if err != nil {
		return s.fail(c, out.route, err)
	}

	if out.cacheKey != "" && s.cache != nil {
		if data, err := f.ReadAll(); err == nil {
			s.cache.Set(c.UserContext(), out.cacheKey, data)
		}
	}
	s.store(c.UserContext(), out.route, f)

	body, err := f.Open()
	if err != nil {
		_ = f.Remove()
		return s.fail(c, out.route, err)
	}

	logging.Info("PDF generated", "route", out.route, "filename", out.filename, "bytes", f.Size,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID))
	setPDFHeaders(c, out.filename)
	return c.SendStream(body, int(f.Size))
}

// stage copies an engine response to disk, enforcing the size limits.
func (s *Service) stage(prefix string, rc io.ReadCloser) (*staging.File, error) {
	defer rc.Close()

	limit := int64(s.cfg.Limits.MaxPDFBytes)
	f, err := s.stager.Stage(prefix, io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if f.Size > limit {
		_ = f.Remove()
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, "PDF exceeds allowed size")
	}
	if f.Size == 0 {
		_ = f.Remove()
		return nil, domain.ErrEmptyPDF
	}
	return f, nil
}

// store archives f; failures are logged only.
func (s *Service) store(ctx context.Context, route string, f *staging.File) {
	if _, ok := s.archive.(archive.Nop); ok {
		return
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		logging.Warn("PDF archive failed", "route", route, "error", err)
		return
	}
	defer fh.Close()

	key, err := s.archive.Store(ctx, route, fh, f.Size)
	if err != nil {
		logging.Warn("PDF archive failed", "route", route, "error", err)
		return
	}
	logging.Debug("PDF archived", "route", route, "key", key)
}

func setPDFHeaders(c *fiber.Ctx, filename string) {
	c.Set(fiber.HeaderContentType, domain.ContentTypePDF)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+SafeFilename(filename))
}

// fail maps conversion errors to HTTP errors.
func (s *Service) fail(c *fiber.Ctx, route string, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return fiber.NewError(fiber.StatusBadRequest, ve.Error())
	}

	requestID := c.GetRespHeader(fiber.HeaderXRequestID)
	var ne net.Error
	switch {
	case errors.Is(err, domain.ErrEngineRejected):
		logging.Error("Conversion engine rejected request", "route", route, "error", err, "request_id", requestID)
		return fiber.NewError(fiber.StatusInternalServerError, "PDF generation failed")
	case errors.Is(err, domain.ErrEmptyPDF):
		logging.Error("Conversion engine returned no content", "route", route, "request_id", requestID)
		return fiber.NewError(fiber.StatusInternalServerError, domain.ErrEmptyPDF.Error())
	case errors.Is(err, domain.ErrUnsupported):
		return fiber.NewError(fiber.StatusNotImplemented, fmt.Sprintf("%s: %v", route, err))
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		logging.Error("Conversion engine timeout", "route", route, "error", err, "request_id", requestID)
		return fiber.NewError(fiber.StatusGatewayTimeout, "Conversion engine timed out")
	}
	logging.Error("PDF conversion failed", "route", route, "error", err, "request_id", requestID)
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

// formFile returns the named upload.
func formFile(c *fiber.Ctx, field string) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("missing %q file upload", field))
	}
	return fh, nil
}

// readUpload reads fh, rejecting uploads above limits.max_upload_bytes.
func (s *Service) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	limit := int64(s.cfg.Limits.MaxUploadBytes)
	if fh.Size > limit {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload %q exceeds %d bytes", fh.Filename, limit))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}
