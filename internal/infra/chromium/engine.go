// Package chromium renders PDFs with a local headless Chrome through chromedp.
// It backs the engine interface when no Gotenberg instance is available.
package chromium

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"pdfgateway/internal/domain"
)

type Options struct {
	ExecPath  string
	NoSandbox bool
	Timeout   time.Duration
}

// Engine starts one browser per conversion.
type Engine struct {
	opts Options
}

var _ domain.Engine = (*Engine)(nil)

func New(opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Engine{opts: opts}
}

// ExecPath returns the configured browser binary, empty when chromedp looks it up.
func (e *Engine) ExecPath() string { return e.opts.ExecPath }

// ConvertHTML writes the document into a scratch directory so relative asset
// references resolve, then prints index.html.
func (e *Engine) ConvertHTML(ctx context.Context, doc domain.HTMLDocument) (io.ReadCloser, error) {
	dir, err := os.MkdirTemp("", "pdfgateway-html-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create document dir: %w", err)
	}
	defer os.RemoveAll(dir)

	index, err := writeDocument(dir, doc)
	if err != nil {
		return nil, err
	}
	target := (&url.URL{Scheme: "file", Path: index}).String()
	return e.print(ctx, target, doc.Page)
}

func (e *Engine) ConvertURL(ctx context.Context, target string, opts domain.PageOptions) (io.ReadCloser, error) {
	return e.print(ctx, target, opts)
}

// Merge needs a PDF engine; Chrome only prints.
func (e *Engine) Merge(context.Context, []domain.File) (io.ReadCloser, error) {
	return nil, domain.ErrUnsupported
}

// browserNames are looked up on PATH when no binary is configured.
var browserNames = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// Ping checks that a browser binary is available. It does not launch it.
func (e *Engine) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.opts.ExecPath != "" {
		if _, err := exec.LookPath(e.opts.ExecPath); err != nil {
			return fmt.Errorf("browser not available: %w", err)
		}
		return nil
	}
	for _, name := range browserNames {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no browser found on PATH (tried %s)", strings.Join(browserNames, ", "))
}

func (e *Engine) print(ctx context.Context, target string, opts domain.PageOptions) (io.ReadCloser, error) {
	browserCtx, cancel, err := e.browser(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var buf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = printParams(opts).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, domain.ErrEmptyPDF
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// browser returns a chromedp context with a throwaway profile. cancel tears
// down the browser and the profile directory.
func (e *Engine) browser(ctx context.Context) (context.Context, context.CancelFunc, error) {
	profile, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profile),
		// Software rendering for minimal containers.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	if e.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.opts.ExecPath))
	}
	if e.opts.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, e.opts.Timeout)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(timeoutCtx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	return browserCtx, func() {
		cancelBrowser()
		cancelAlloc()
		cancelTimeout()
		_ = os.RemoveAll(profile)
	}, nil
}

func printParams(o domain.PageOptions) *page.PrintToPDFParams {
	p := page.PrintToPDF().WithPrintBackground(o.PrintBackground)
	if o.PaperWidth > 0 {
		p = p.WithPaperWidth(o.PaperWidth)
	}
	if o.PaperHeight > 0 {
		p = p.WithPaperHeight(o.PaperHeight)
	}
	if !o.IsZero() {
		p = p.WithMarginTop(o.MarginTop).
			WithMarginBottom(o.MarginBottom).
			WithMarginLeft(o.MarginLeft).
			WithMarginRight(o.MarginRight)
	}
	return p
}

// writeDocument stores index.html and the assets flat in dir and returns the
// index path. Asset names are reduced to their base name.
func writeDocument(dir string, doc domain.HTMLDocument) (string, error) {
	index := filepath.Join(dir, "index.html")
	if err := os.WriteFile(index, doc.Index, 0o600); err != nil {
		return "", err
	}
	for _, a := range doc.Assets {
		name := filepath.Base(a.Name)
		if name == "." || name == string(filepath.Separator) || name == "index.html" {
			return "", &domain.ValidationError{Field: "assets", Reason: fmt.Sprintf("invalid asset name %q", a.Name)}
		}
		if err := os.WriteFile(filepath.Join(dir, name), a.Data, 0o600); err != nil {
			return "", err
		}
	}
	return index, nil
}
