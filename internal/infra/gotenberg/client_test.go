package gotenberg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfgateway/internal/domain"
)

type capturedPart struct {
	filename    string
	contentType string
	data        string
}

type captured struct {
	path   string
	fields map[string]string
	files  []capturedPart
	user   string
}

func newEngine(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{fields: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.user, _, _ = r.BasicAuth()
		if r.Method == http.MethodPost {
			mr, err := r.MultipartReader()
			if err != nil {
				t.Errorf("multipart reader: %v", err)
				return
			}
			for {
				p, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					t.Errorf("next part: %v", err)
					return
				}
				data, _ := io.ReadAll(p)
				if p.FileName() == "" {
					got.fields[p.FormName()] = string(data)
					continue
				}
				got.files = append(got.files, capturedPart{
					filename:    p.FileName(),
					contentType: p.Header.Get("Content-Type"),
					data:        string(data),
				})
			}
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestConvertHTML_SendsIndexAssetsAndPageFields(t *testing.T) {
	srv, got := newEngine(t, http.StatusOK, "%PDF-1.7 fake")
	c := New(Options{BaseURL: srv.URL + "/", Username: "u", Password: "p"})

	rc, err := c.ConvertHTML(context.Background(), domain.HTMLDocument{
		Index:  []byte("<html>hi</html>"),
		Assets: []domain.File{{Name: "chart.png", ContentType: "image/png", Data: []byte("PNG")}},
		Page:   domain.PageOptions{PaperWidth: 8.27, PaperHeight: 11.7, MarginTop: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 fake", readAll(t, rc))

	assert.Equal(t, RouteConvertHTML, got.path)
	assert.Equal(t, "u", got.user)
	assert.Equal(t, "8.27", got.fields["paperWidth"])
	assert.Equal(t, "11.7", got.fields["paperHeight"])
	assert.Equal(t, "0.5", got.fields["marginTop"])
	require.Len(t, got.files, 2)
	assert.Equal(t, capturedPart{"index.html", "text/html", "<html>hi</html>"}, got.files[0])
	assert.Equal(t, capturedPart{"chart.png", "image/png", "PNG"}, got.files[1])
}

func TestConvertURL_SendsURLField(t *testing.T) {
	srv, got := newEngine(t, http.StatusOK, "%PDF")
	c := New(Options{BaseURL: srv.URL})

	rc, err := c.ConvertURL(context.Background(), "https://example.com", domain.PageOptions{})
	require.NoError(t, err)
	_ = readAll(t, rc)

	assert.Equal(t, RouteConvertURL, got.path)
	assert.Equal(t, "https://example.com", got.fields["url"])
	assert.Empty(t, got.files)
	assert.Empty(t, got.user)
}

func TestMerge_KeepsNamesAndDefaultsContentType(t *testing.T) {
	srv, got := newEngine(t, http.StatusOK, "%PDF merged")
	c := New(Options{BaseURL: srv.URL})

	rc, err := c.Merge(context.Background(), []domain.File{
		{Name: "file_001.pdf", Data: []byte("one")},
		{Name: "file_002.pdf", ContentType: domain.ContentTypePDF, Data: []byte("two")},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF merged", readAll(t, rc))

	assert.Equal(t, RouteMerge, got.path)
	require.Len(t, got.files, 2)
	assert.Equal(t, "file_001.pdf", got.files[0].filename)
	assert.Equal(t, "application/pdf", got.files[0].contentType)
	assert.Equal(t, "two", got.files[1].data)
}

func TestNon200BecomesEngineError(t *testing.T) {
	srv, _ := newEngine(t, http.StatusBadRequest, "Invalid form data")
	c := New(Options{BaseURL: srv.URL})

	_, err := c.ConvertHTML(context.Background(), domain.HTMLDocument{Index: []byte("<html></html>")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineRejected)

	var ee *domain.EngineError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, http.StatusBadRequest, ee.StatusCode)
	assert.Contains(t, ee.Body, "Invalid form data")
}

func TestTimeoutSurfacesAsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Merge(ctx, []domain.File{{Name: "a.pdf"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPing(t *testing.T) {
	ok, got := newEngine(t, http.StatusOK, `{"status":"up"}`)
	assert.NoError(t, New(Options{BaseURL: ok.URL}).Ping(context.Background()))
	assert.Equal(t, RouteHealth, got.path)

	down, _ := newEngine(t, http.StatusServiceUnavailable, "")
	assert.ErrorIs(t, New(Options{BaseURL: down.URL}).Ping(context.Background()), domain.ErrEngineRejected)

	assert.Error(t, New(Options{BaseURL: "http://127.0.0.1:1"}).Ping(context.Background()))
}

func TestAddFilePart_EscapesQuotes(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, addFilePart(w, `we"ird.png`, "image/png", []byte("x")))
	require.NoError(t, w.Close())

	p, err := multipart.NewReader(&buf, w.Boundary()).NextPart()
	require.NoError(t, err)
	assert.Equal(t, `we"ird.png`, p.FileName())
	assert.Equal(t, "image/png", p.Header.Get("Content-Type"))
}
