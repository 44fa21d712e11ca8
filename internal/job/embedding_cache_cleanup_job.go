package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/embedcache"
	"github.com/xxxsen/faqchat/internal/model"
)

// CurrentFunc reports the fingerprint of the serving generation.
type CurrentFunc func() (model.Fingerprint, bool)

type EmbeddingCacheCleanupJob struct {
	cache      embedcache.Cache
	current    CurrentFunc
	maxAgeDays int
	now        func() time.Time
}

func NewEmbeddingCacheCleanupJob(cache embedcache.Cache, current CurrentFunc, maxAgeDays int) *EmbeddingCacheCleanupJob {
	return &EmbeddingCacheCleanupJob{cache: cache, current: current, maxAgeDays: maxAgeDays, now: time.Now}
}

func (j *EmbeddingCacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

// Run removes cached generations older than the max age. The serving
// generation is always kept, and nothing is removed before one is serving.
func (j *EmbeddingCacheCleanupJob) Run(ctx context.Context) error {
	if j.cache == nil || j.current == nil {
		return nil
	}
	keep, ok := j.current()
	if !ok {
		logutil.GetLogger(ctx).Debug("no serving generation, skip cache cleanup")
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := j.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	removed, err := j.cache.Prune(ctx, keep, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache cleaned", zap.Int("removed", removed))
	return nil
}
