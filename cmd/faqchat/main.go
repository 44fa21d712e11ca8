package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/faqchat/internal/config"
	"github.com/xxxsen/faqchat/internal/handler"
	"github.com/xxxsen/faqchat/internal/job"
	"github.com/xxxsen/faqchat/internal/middleware"
	"github.com/xxxsen/faqchat/internal/schedule"
	"github.com/xxxsen/faqchat/internal/watch"
)

func main() {
	var configPath string
	var sessionID string

	rootCmd := &cobra.Command{
		Use:   "faqchat",
		Short: "faq support chat server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run faqchat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "embed the corpus and persist the embedding cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			status, err := a.engine.Reload(ctx)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			return printJSON(cmd, status)
		},
	}

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "answer one question from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			answer, err := a.chat.Answer(ctx, sessionID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd, answer)
		},
	}
	askCmd.Flags().StringVar(&sessionID, "session", "", "session id")

	rootCmd.AddCommand(runCmd, reindexCmd, askCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("corpus", cfg.Corpus.Path),
		zap.String("cache", cfg.Cache.Type),
		zap.String("embed_model", cfg.Embed.Model),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go func() {
		if _, err := a.engine.Reload(ctx); err != nil {
			logutil.GetLogger(ctx).Warn("initial faq load failed, will retry on first query", zap.Error(err))
		}
	}()

	if cfg.Corpus.Watch {
		watcher, err := watch.NewCorpusWatcher(a.loader.Path(), 0, func(ctx context.Context) error {
			_, err := a.engine.Reload(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("init corpus watcher: %w", err)
		}
		defer watcher.Close()
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logutil.GetLogger(ctx).Error("corpus watcher stopped", zap.Error(err))
			}
		}()
	}

	scheduler := schedule.NewCronScheduler()
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewEmbeddingCacheCleanupJob(a.cache, a.engine.Current, cfg.Cache.MaxAgeDays), cfg.Cache.CleanupCron},
		{job.NewSessionPruneJob(a.sessions), cfg.Session.PruneCron},
		{job.NewCorpusReloadJob(a.engine), cfg.Corpus.ReloadCron},
	}
	for _, item := range jobs {
		if err := scheduler.AddJob(item.job, item.spec); err != nil {
			return fmt.Errorf("schedule %s: %w", item.job.Name(), err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Chat:      handler.NewChatHandler(a.chat),
		FAQ:       handler.NewFAQHandler(a.engine, cfg.Retrieval.TopK),
		Health:    handler.NewHealthHandler(a.engine, a.chat, a.hasAI),
		ChatLimit: time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
