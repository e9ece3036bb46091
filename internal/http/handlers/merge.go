package handlers

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"

	"pdfgateway/internal/domain"
	"pdfgateway/internal/infra/staging"
)

// mergeName numbers inputs so the engine's alphanumeric ordering keeps the
// upload order.
func mergeName(i int) string { return fmt.Sprintf("file_%03d.pdf", i+1) }

// HandleMerge merges the uploaded PDFs and images in upload order.
func (s *Service) HandleMerge(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, `missing "files" file upload`)
	}
	uploads := form.File["files"]
	if len(uploads) < 2 {
		return fiber.NewError(fiber.StatusBadRequest, "At least two files are required for merging")
	}
	if len(uploads) > s.cfg.Limits.MaxMergeFiles {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("At most %d files can be merged", s.cfg.Limits.MaxMergeFiles))
	}

	names := make([]string, len(uploads))
	inputs := make([][]byte, len(uploads))
	for i, fh := range uploads {
		if inputs[i], err = s.readUpload(fh); err != nil {
			return s.fail(c, "merge", err)
		}
		names[i] = fh.Filename
	}

	out := output{route: "merge", filename: "merged.pdf", cacheKey: s.cacheKey("merge", inputs...)}
	if hit, err := s.cached(c, out); hit {
		return err
	}

	var staged []*staging.File
	defer func() {
		for _, f := range staged {
			_ = f.Remove()
		}
	}()
	for i, data := range inputs {
		f, err := s.stageInput(c.UserContext(), names[i], data)
		if err != nil {
			return s.fail(c, "merge", err)
		}
		staged = append(staged, f)
	}

	files := make([]domain.File, 0, len(staged))
	for i, f := range staged {
		data, err := f.ReadAll()
		if err != nil {
			return s.fail(c, "merge", err)
		}
		files = append(files, domain.File{Name: mergeName(i), ContentType: domain.ContentTypePDF, Data: data})
	}

	rc, err := s.engine.Merge(c.UserContext(), files)
	if err != nil {
		return s.fail(c, "merge", err)
	}
	return s.respond(c, out, rc)
}

// stageInput stages a PDF as is and converts an image to PDF first.
func (s *Service) stageInput(ctx context.Context, filename string, data []byte) (*staging.File, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(domain.ContentTypePDF):
		return s.stager.Stage("original", bytes.NewReader(data))
	case mt.Is(domain.ContentTypeJPEG), mt.Is(domain.ContentTypePNG):
		img, err := imageFile(filename, data)
		if err != nil {
			return nil, err
		}
		doc, err := imageDocument(img)
		if err != nil {
			return nil, err
		}
		rc, err := s.engine.ConvertHTML(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("convert image %s: %w", filename, err)
		}
		return s.stage("converted", rc)
	}
	return nil, fiber.NewError(fiber.StatusBadRequest, "Unsupported file type: "+mt.String())
}
