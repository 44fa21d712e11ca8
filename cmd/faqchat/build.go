package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/ai"
	"github.com/xxxsen/faqchat/internal/chat"
	"github.com/xxxsen/faqchat/internal/config"
	"github.com/xxxsen/faqchat/internal/corpus"
	"github.com/xxxsen/faqchat/internal/db"
	"github.com/xxxsen/faqchat/internal/embedcache"
	"github.com/xxxsen/faqchat/internal/filestore"
	"github.com/xxxsen/faqchat/internal/repo"
	"github.com/xxxsen/faqchat/internal/retrieval"
	"github.com/xxxsen/faqchat/internal/session"
)

type app struct {
	cfg      *config.Config
	loader   *corpus.FileLoader
	cache    embedcache.Cache
	engine   *retrieval.Engine
	sessions *session.Manager
	chat     *chat.Service
	hasAI    bool
	db       *sql.DB
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loader, err := corpus.NewFileLoader(cfg.Corpus.Path, cfg.Corpus.Format)
	if err != nil {
		return nil, fmt.Errorf("init corpus loader: %w", err)
	}
	embedder, err := buildEmbedder(cfg.Embed)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, loader: loader}
	cache, err := a.buildCache(ctx, cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cache = cache
	a.engine = retrieval.NewEngine(loader, embedder, cache,
		retrieval.WithBuildTimeout(time.Duration(cfg.Retrieval.BuildTimeout)*time.Second))

	generator, err := buildGenerator(cfg.AI)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.hasAI = generator != nil
	a.sessions = session.NewManager(
		session.WithMaxMessages(cfg.Session.MaxMessages),
		session.WithRetention(time.Duration(cfg.Session.RetentionHours)*time.Hour),
	)
	assembler := chat.NewAssembler(
		cfg.Completion.Instructions,
		cfg.Session.HistoryMessages,
		cfg.Session.HistoryChars,
		cfg.AI.MaxTokens,
		cfg.AI.Temperature,
	)
	orchestrator := chat.NewOrchestrator(
		generator,
		cfg.Completion.MaxRetries,
		time.Duration(cfg.Completion.InitialBackoffMs)*time.Millisecond,
		time.Duration(cfg.Completion.MaxBackoffMs)*time.Millisecond,
	)
	a.chat = chat.NewService(a.engine, a.sessions, assembler, orchestrator,
		cfg.Retrieval.TopK, cfg.Retrieval.MinScore, cfg.Session.HistoryMessages)
	return a, nil
}

func buildEmbedder(cfg config.EmbedConfig) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.Model, cfg.BatchSize, time.Duration(cfg.Timeout)*time.Second)
	return embedcache.WrapLruCacheToEmbedder(embedder, cfg.QueryCacheSize, time.Duration(cfg.QueryCacheTTL)*time.Second), nil
}

// buildGenerator returns nil when no provider is configured, answers then
// come from the fallback path only.
func buildGenerator(cfg config.AIConfig) (ai.IGenerator, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	primary, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	items := []ai.GeneratorEntry{{
		Name:      cfg.Provider,
		Generator: ai.NewGenerator(primary, cfg.Model, timeout),
	}}
	for _, fb := range cfg.Fallbacks {
		p, err := ai.NewProvider(fb.Provider, fb.Data)
		if err != nil {
			return nil, fmt.Errorf("init fallback ai provider %s: %w", fb.Provider, err)
		}
		items = append(items, ai.GeneratorEntry{
			Name:      fb.Provider,
			Generator: ai.NewGenerator(p, fb.Model, timeout),
		})
	}
	if len(items) == 1 {
		return items[0].Generator, nil
	}
	return ai.NewGroupGenerator(items), nil
}

func (a *app) buildCache(ctx context.Context, cfg config.CacheConfig) (embedcache.Cache, error) {
	logger := logutil.GetLogger(ctx)
	switch cfg.Type {
	case "file":
		store, err := filestore.New(cfg.FileStore)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		logger.Info("embedding cache on file store", zap.String("store", store.Type()))
		return embedcache.NewBlobCache(store), nil
	case "postgres":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		a.db = conn
		if err := db.ApplyMigrations(ctx, conn); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("embedding cache on postgres", zap.String("host", cfg.Database.Host))
		return embedcache.NewDBCache(repo.NewEmbeddingCacheRepo(conn)), nil
	default:
		logger.Info("embedding cache disabled")
		return embedcache.NewNopCache(), nil
	}
}
