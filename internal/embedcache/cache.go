package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/faqchat/internal/model"
)

// Snapshot is one generation of question vectors, aligned by position with
// the corpus entries.
type Snapshot struct {
	Vectors   [][]float32
	Questions []string
}

// Cache persists corpus embeddings keyed by fingerprint. Load reports a miss
// for absent, foreign or unreadable artifacts and never fails.
type Cache interface {
	Load(ctx context.Context, fp model.Fingerprint) (*Snapshot, bool)
	Store(ctx context.Context, fp model.Fingerprint, vectors [][]float32, questions []string) error
	Prune(ctx context.Context, keep model.Fingerprint, before time.Time) (int, error)
}

type nopCache struct{}

func NewNopCache() Cache {
	return nopCache{}
}

func (nopCache) Load(ctx context.Context, fp model.Fingerprint) (*Snapshot, bool) {
	return nil, false
}

func (nopCache) Store(ctx context.Context, fp model.Fingerprint, vectors [][]float32, questions []string) error {
	return nil
}

func (nopCache) Prune(ctx context.Context, keep model.Fingerprint, before time.Time) (int, error) {
	return 0, nil
}

// validate checks that a snapshot is complete for fp.
func validate(fp model.Fingerprint, vectors [][]float32, questions []string) error {
	if len(vectors) != len(questions) {
		return fmt.Errorf("vectors %d and questions %d differ", len(vectors), len(questions))
	}
	if len(vectors) != fp.Rows {
		return fmt.Errorf("snapshot has %d rows, fingerprint %d", len(vectors), fp.Rows)
	}
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}
