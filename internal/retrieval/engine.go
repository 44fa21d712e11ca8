package retrieval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/faqchat/internal/ai"
	"github.com/xxxsen/faqchat/internal/corpus"
	"github.com/xxxsen/faqchat/internal/embedcache"
	"github.com/xxxsen/faqchat/internal/index"
	"github.com/xxxsen/faqchat/internal/model"
)

var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

type generation struct {
	seq     uint64
	loadSeq uint64
	fp      model.Fingerprint
	key     string
	corpus  *model.Corpus
	index   *index.Index
	builtAt time.Time
}

// Status describes the generation currently serving queries.
type Status struct {
	Loaded      bool      `json:"loaded"`
	Entries     int       `json:"entries"`
	Fingerprint string    `json:"fingerprint"`
	Model       string    `json:"model"`
	Generation  uint64    `json:"generation"`
	BuiltAt     time.Time `json:"built_at"`
}

type Option func(*Engine)

func WithBuildTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.buildTimeout = d
	}
}

// Engine answers top-k queries against the current corpus. The loader is
// consulted on every call; a changed fingerprint triggers exactly one build
// while callers keep the previous generation until the new one is published.
type Engine struct {
	loader       corpus.Loader
	embedder     ai.IEmbedder
	cache        embedcache.Cache
	buildTimeout time.Duration

	current atomic.Pointer[generation]
	loads   atomic.Uint64
	group   singleflight.Group
}

func NewEngine(loader corpus.Loader, embedder ai.IEmbedder, cache embedcache.Cache, opts ...Option) *Engine {
	if cache == nil {
		cache = embedcache.NewNopCache()
	}
	e := &Engine{loader: loader, embedder: embedder, cache: cache}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Retrieve(ctx context.Context, query string, k int) (*model.RetrievalResult, error) {
	gen, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	res := &model.RetrievalResult{Fingerprint: gen.key, Matches: []model.Match{}}
	if gen.corpus.Len() == 0 || k <= 0 {
		return res, nil
	}
	vec, err := e.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalUnavailable, err)
	}
	hits, err := gen.index.Query(vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	for _, hit := range hits {
		res.Matches = append(res.Matches, model.Match{Entry: gen.corpus.Entries[hit.ID], Score: hit.Score})
	}
	return res, nil
}

// Reload re-reads the corpus and waits until its generation is serving.
func (e *Engine) Reload(ctx context.Context) (Status, error) {
	if _, err := e.ensure(ctx); err != nil {
		return e.Status(), err
	}
	return e.Status(), nil
}

func (e *Engine) Status() Status {
	gen := e.current.Load()
	if gen == nil {
		return Status{Model: e.embedder.ModelName()}
	}
	return Status{
		Loaded:      true,
		Entries:     gen.corpus.Len(),
		Fingerprint: gen.key,
		Model:       gen.fp.Model,
		Generation:  gen.seq,
		BuiltAt:     gen.builtAt,
	}
}

// Current returns the fingerprint of the serving generation.
func (e *Engine) Current() (model.Fingerprint, bool) {
	gen := e.current.Load()
	if gen == nil {
		return model.Fingerprint{}, false
	}
	return gen.fp, true
}

func (e *Engine) ensure(ctx context.Context) (*generation, error) {
	logger := logutil.GetLogger(ctx)
	cur := e.current.Load()
	c, err := e.loader.Load(ctx)
	if err != nil {
		if cur != nil {
			logger.Warn("load corpus failed, keep serving current generation", zap.Uint64("generation", cur.seq), zap.Error(err))
			return cur, nil
		}
		return nil, fmt.Errorf("%w: load corpus: %v", ErrRetrievalUnavailable, err)
	}
	loadSeq := e.loads.Add(1)
	fp := model.NewFingerprint(c, e.embedder.ModelName())
	key := fp.Key()
	if cur != nil && cur.key == key {
		return cur, nil
	}
	// The build runs detached from the caller so a cancelled caller neither
	// aborts it nor blocks the other waiters.
	ch := e.group.DoChan(key, func() (interface{}, error) {
		return e.build(context.WithoutCancel(ctx), c, fp, key, loadSeq)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if cur := e.current.Load(); cur != nil {
				logger.Warn("rebuild failed, keep serving current generation", zap.Uint64("generation", cur.seq), zap.Error(res.Err))
				return cur, nil
			}
			return nil, res.Err
		}
		return res.Val.(*generation), nil
	}
}

func (e *Engine) build(ctx context.Context, c *model.Corpus, fp model.Fingerprint, key string, loadSeq uint64) (*generation, error) {
	if cur := e.current.Load(); cur != nil && cur.key == key {
		return cur, nil
	}
	if e.buildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.buildTimeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("fingerprint", key), zap.Int("rows", c.Len()))
	start := time.Now()
	vectors, err := e.loadVectors(ctx, c, fp)
	if err != nil {
		return nil, err
	}
	idx, err := index.Build(vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: build index: %v", ErrRetrievalUnavailable, err)
	}
	gen := &generation{
		loadSeq: loadSeq,
		fp:      fp,
		key:     key,
		corpus:  c,
		index:   idx,
		builtAt: time.Now(),
	}
	if published := e.publish(gen); published != gen {
		logger.Info("newer generation already serving, drop build",
			zap.Uint64("load", loadSeq), zap.Uint64("serving_load", published.loadSeq))
		return published, nil
	}
	logger.Info("index generation published", zap.Uint64("generation", gen.seq), zap.Duration("cost", time.Since(start)))
	return gen, nil
}

// publish installs gen unless the serving generation comes from a later
// corpus load, and returns whichever generation serves afterwards.
func (e *Engine) publish(gen *generation) *generation {
	for {
		cur := e.current.Load()
		if cur != nil && cur.loadSeq > gen.loadSeq {
			return cur
		}
		gen.seq = 1
		if cur != nil {
			gen.seq = cur.seq + 1
		}
		if e.current.CompareAndSwap(cur, gen) {
			return gen
		}
	}
}

func (e *Engine) loadVectors(ctx context.Context, c *model.Corpus, fp model.Fingerprint) ([][]float32, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("fingerprint", fp.Key()))
	if c.Len() == 0 {
		return nil, nil
	}
	questions := c.Questions()
	if snap, ok := e.cache.Load(ctx, fp); ok {
		if slices.Equal(snap.Questions, questions) {
			return snap.Vectors, nil
		}
		logger.Warn("cached questions differ from corpus, recompute")
	}
	vectors, err := e.embedder.EmbedBatch(ctx, questions, ai.TaskRetrievalDocument)
	if err != nil {
		return nil, fmt.Errorf("%w: embed corpus: %v", ErrRetrievalUnavailable, err)
	}
	if len(vectors) != len(questions) {
		return nil, fmt.Errorf("%w: got %d vectors for %d questions", ErrRetrievalUnavailable, len(vectors), len(questions))
	}
	if err := e.cache.Store(ctx, fp, vectors, questions); err != nil {
		logger.Warn("store embedding cache failed", zap.Error(err))
	}
	return vectors, nil
}
