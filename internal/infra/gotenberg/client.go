// Package gotenberg relays conversion requests to a Gotenberg-compatible
// engine as multipart forms.
package gotenberg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"pdfgateway/internal/domain"
)

// Engine endpoints.
const (
	RouteConvertHTML = "/forms/chromium/convert/html"
	RouteConvertURL  = "/forms/chromium/convert/url"
	RouteMerge       = "/forms/pdfengines/merge"
	RouteHealth      = "/health"
)

// Options configure a Client.
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Username string
	Password string
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client implements domain.Engine over HTTP.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

var _ domain.Engine = (*Client)(nil)

// New creates a client pointing at the given base URL.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		username: opts.Username,
		password: opts.Password,
		http:     hc,
	}
}

// BaseURL returns the engine address.
func (c *Client) BaseURL() string { return c.baseURL }

// ConvertHTML sends index.html and its assets to the chromium HTML route.
func (c *Client) ConvertHTML(ctx context.Context, doc domain.HTMLDocument) (io.ReadCloser, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if err := writeFields(w, doc.Page.Fields()); err != nil {
		return nil, err
	}
	if err := addFilePart(w, "index.html", domain.ContentTypeHTML, doc.Index); err != nil {
		return nil, err
	}
	for _, a := range doc.Assets {
		if err := addFilePart(w, a.Name, a.ContentType, a.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return c.post(ctx, "convert html", RouteConvertHTML, body, w.FormDataContentType())
}

// ConvertURL asks the engine to load and print a remote page.
func (c *Client) ConvertURL(ctx context.Context, url string, page domain.PageOptions) (io.ReadCloser, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fields := page.Fields()
	fields["url"] = url
	if err := writeFields(w, fields); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return c.post(ctx, "convert url", RouteConvertURL, body, w.FormDataContentType())
}

// Merge combines PDFs. The engine orders them alphanumerically by filename.
func (c *Client) Merge(ctx context.Context, files []domain.File) (io.ReadCloser, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = domain.ContentTypePDF
		}
		if err := addFilePart(w, f.Name, ct, f.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return c.post(ctx, "merge", RouteMerge, body, w.FormDataContentType())
}

// Ping checks the engine health route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+RouteHealth, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("engine health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &domain.EngineError{Op: "health", StatusCode: resp.StatusCode}
	}
	return nil
}

// post sends the form and hands back the open response body on 200.
func (c *Client) post(ctx context.Context, op, path string, body io.Reader, contentType string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &domain.EngineError{Op: op, StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	return resp.Body, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

func writeFields(w *multipart.Writer, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	return nil
}

// addFilePart adds a "files" part carrying its own content type.
func addFilePart(w *multipart.Writer, filename, mimeType string, content []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(filename)))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", filename, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write part %s: %w", filename, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
