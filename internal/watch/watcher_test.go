package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCorpusWatcher_DebouncedReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.csv")
	require.NoError(t, os.WriteFile(path, []byte("question,answer\n"), 0o644))

	var reloads atomic.Int32
	w, err := NewCorpusWatcher(path, 100*time.Millisecond, func(ctx context.Context) error {
		reloads.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("question,answer\na,b\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(1), reloads.Load())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNewCorpusWatcher_MissingDir(t *testing.T) {
	_, err := NewCorpusWatcher(filepath.Join(t.TempDir(), "nope", "faq.csv"), 0, func(ctx context.Context) error { return nil })
	require.Error(t, err)
}
