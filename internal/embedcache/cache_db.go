package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/model"
	"github.com/xxxsen/faqchat/internal/pkg/dbutil"
	"github.com/xxxsen/faqchat/internal/repo"
)

type dbCache struct {
	repo *repo.EmbeddingCacheRepo
}

// NewDBCache keeps embeddings as pgvector rows, one row per corpus entry.
func NewDBCache(cacheRepo *repo.EmbeddingCacheRepo) Cache {
	return &dbCache{repo: cacheRepo}
}

func (c *dbCache) Load(ctx context.Context, fp model.Fingerprint) (*Snapshot, bool) {
	logger := logutil.GetLogger(ctx).With(zap.String("fingerprint", fp.Key()))
	rows, err := c.repo.List(ctx, fp.Key())
	if err != nil {
		if dbutil.IsUndefinedTable(err) {
			logger.Warn("embedding cache table missing, run migrations")
		} else {
			logger.Warn("load embedding rows failed", zap.Error(err))
		}
		return nil, false
	}
	if len(rows) == 0 && fp.Rows > 0 {
		return nil, false
	}
	snap := &Snapshot{
		Vectors:   make([][]float32, len(rows)),
		Questions: make([]string, len(rows)),
	}
	for i, row := range rows {
		if row.Position != i || row.ModelName != fp.Model {
			logger.Warn("embedding rows inconsistent", zap.Int("position", row.Position), zap.String("model", row.ModelName))
			return nil, false
		}
		snap.Vectors[i] = row.Embedding
		snap.Questions[i] = row.Question
	}
	if err := validate(fp, snap.Vectors, snap.Questions); err != nil {
		logger.Warn("embedding rows rejected", zap.Error(err))
		return nil, false
	}
	logger.Debug("embedding cache hit (db)", zap.Int("rows", len(rows)))
	return snap, true
}

func (c *dbCache) Store(ctx context.Context, fp model.Fingerprint, vectors [][]float32, questions []string) error {
	if err := validate(fp, vectors, questions); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	now := time.Now().Unix()
	items := make([]model.EmbeddingCacheRow, len(vectors))
	for i := range vectors {
		items[i] = model.EmbeddingCacheRow{
			FingerprintKey: fp.Key(),
			Position:       i,
			ModelName:      fp.Model,
			Question:       questions[i],
			Embedding:      vectors[i],
			Ctime:          now,
		}
	}
	return c.repo.Replace(ctx, fp.Key(), items)
}

func (c *dbCache) Prune(ctx context.Context, keep model.Fingerprint, before time.Time) (int, error) {
	n, err := c.repo.DeleteStale(ctx, keep.Key(), before.Unix())
	return int(n), err
}
