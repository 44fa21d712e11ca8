package filestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/faqchat/internal/config"
	appErr "github.com/xxxsen/faqchat/internal/pkg/errors"
)

func TestLocalStore_SaveOpenDeleteList(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("payload")
	require.NoError(t, store.Save(ctx, "faq-embeddings/a.json", bytes.NewReader(data), int64(len(data))))
	require.NoError(t, store.Save(ctx, "other/b.json", bytes.NewReader(data), int64(len(data))))

	rc, err := store.Open(ctx, "faq-embeddings/a.json")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, data, got)

	items, err := store.List(ctx, "faq-embeddings/")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "faq-embeddings/a.json", items[0].Key)
	require.Equal(t, int64(len(data)), items[0].Size)

	require.NoError(t, store.Delete(ctx, "faq-embeddings/a.json"))
	require.NoError(t, store.Delete(ctx, "faq-embeddings/a.json"))
	_, err = store.Open(ctx, "faq-embeddings/a.json")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestLocalStore_SaveReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "k.json", bytes.NewReader([]byte("one")), 3))
	require.NoError(t, store.Save(ctx, "k.json", bytes.NewReader([]byte("two!")), 4))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	content, err := os.ReadFile(filepath.Join(dir, "k.json"))
	require.NoError(t, err)
	require.Equal(t, "two!", string(content))
}

func TestLocalStore_CancelledSaveKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	require.NoError(t, store.Save(context.Background(), "k.json", bytes.NewReader([]byte("old")), 3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.Save(ctx, "k.json", bytes.NewReader([]byte("new")), 3))
	content, err := os.ReadFile(filepath.Join(dir, "k.json"))
	require.NoError(t, err)
	require.Equal(t, "old", string(content))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	for _, key := range []string{"", "../x", "/abs", "a\\b", "a/../../x"} {
		_, err := store.Open(context.Background(), key)
		require.ErrorIs(t, err, appErr.ErrInvalid, key)
	}
}

func TestLocalStore_ListMissingDir(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "none"))
	items, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "ftp", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"bucket": "b"}})
	require.Error(t, err)
}

func TestBuildEndpoint(t *testing.T) {
	require.Equal(t, "https://minio:9000", buildEndpoint("minio:9000", true))
	require.Equal(t, "http://minio:9000", buildEndpoint("http://minio:9000/", true))
}
