package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStorage_SaveAndLoad(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Save(ctx, "rec.json", strings.NewReader(`{"ok":true}`)))

	r, err := fs.Load(ctx, "rec.json")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(data))
}

func TestFileStorage_SaveFile(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "a.webm")
	require.NoError(t, os.WriteFile(artifact, []byte("media-bytes"), 0o644))

	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.SaveFile(context.Background(), "a.webm", artifact))

	r, err := fs.Load(context.Background(), "a.webm")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "media-bytes", string(data))
}

func TestFileStorage_ListByPrefix(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Save(ctx, "rec1_a.webm", strings.NewReader("x")))
	require.NoError(t, fs.Save(ctx, "rec1_b.opus", strings.NewReader("x")))
	require.NoError(t, fs.Save(ctx, "rec2_a.webm", strings.NewReader("x")))

	files, err := fs.List(ctx, "rec1_")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"rec1_a.webm", "rec1_b.opus"}, files)
}

func TestFileStorage_Delete(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, fs.Save(ctx, "gone.json", strings.NewReader("x")))
	require.NoError(t, fs.Delete(ctx, "gone.json"))

	_, err = fs.Load(ctx, "gone.json")
	require.Error(t, err)
}
