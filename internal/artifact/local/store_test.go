package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skyhookqa/skyhook/internal/artifact"
)

func TestSaveWritesFileAndReturnsURI(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, "runs")
	require.NoError(t, err)

	key := artifact.Key{Project: "proj", Run: "run-1", Name: "screenshots/home.png"}
	uri, err := store.Save(context.Background(), key, "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "runs", "proj", "run-1", "screenshots", "home.png"))
	require.NoError(t, err)
	require.Equal(t, []byte("png-bytes"), data)
}

func TestSaveRejectsIncompleteKey(t *testing.T) {
	store, err := New(t.TempDir(), "")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), artifact.Key{Project: "p"}, "image/png", nil)
	require.Error(t, err)
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New("  ", "")
	require.Error(t, err)
}
