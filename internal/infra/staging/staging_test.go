package staging

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_WritesNamedFile(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	f, err := s.Stage("invoice", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), f.Size)
	assert.Equal(t, s.Dir(), filepath.Dir(f.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(f.Path), "invoice_"))
	assert.True(t, strings.HasSuffix(f.Path, ".pdf"))

	data, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestStage_SanitizesPrefix(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	f, err := s.Stage("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, s.Dir(), filepath.Dir(f.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(f.Path), "etcpasswd_"))

	g, err := s.Stage("", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(g.Path), "document_"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("engine hung up") }

func TestStage_FailedCopyLeavesNothing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Stage("merged", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpen_CloseRemovesFile(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	f, err := s.Stage("csv", strings.NewReader("%PDF"))
	require.NoError(t, err)

	rc, err := f.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	require.NoError(t, rc.Close())

	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, f.Remove())
}

func TestSweep_RemovesOnlyExpiredPDFs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old_x.pdf")
	fresh := filepath.Join(dir, "fresh_x.pdf")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	sw, err := NewSweeper(dir, 15*time.Minute, "@every 1h")
	require.NoError(t, err)
	assert.Equal(t, 1, sw.Sweep())

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestSweeper_InvalidScheduleAndLifecycle(t *testing.T) {
	_, err := NewSweeper(t.TempDir(), time.Minute, "not a schedule")
	assert.Error(t, err)

	sw, err := NewSweeper(filepath.Join(t.TempDir(), "missing"), time.Minute, "@every 1h")
	require.NoError(t, err)
	assert.Equal(t, 0, sw.Sweep())

	sw.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sw.Stop(ctx)
}
