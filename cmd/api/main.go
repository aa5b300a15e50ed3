package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"policyforge/api/internal/app"
	"policyforge/api/internal/archive"
	"policyforge/api/internal/cache"
	"policyforge/api/internal/config"
	"policyforge/api/internal/export"
	"policyforge/api/internal/generate"
	"policyforge/api/internal/history"
	"policyforge/api/internal/logging"
	"policyforge/api/internal/metrics"
	"policyforge/api/internal/search"
	"policyforge/api/internal/store"
	"policyforge/api/internal/validate"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, logger.Named("db"))
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir))
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	validator, err := validate.New(cfg.MinTopicLength)
	if err != nil {
		return err
	}
	reg := metrics.NewRegistry()
	dataStore := store.NewPostgresStore(db)

	var generator generate.Generator = generate.StubGenerator{}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		generator = generate.NewGemini(generate.GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			BaseURL:         cfg.GeminiBaseURL,
			Temperature:     cfg.GeminiTemperature,
			MaxOutputTokens: cfg.GeminiMaxOutputTokens,
			Timeout:         cfg.GenerationTimeout,
		}, logger.Named("gemini"), generate.WithValidator(validator.GeneratedBlocks))
		logger.Info("using gemini generator", zap.String("model", cfg.GeminiModel))
	} else {
		logger.Warn("GEMINI_API_KEY not set, using stub generator")
	}

	exportOpts := []export.Option{export.WithObserver(reg)}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		exportCache, err := cache.NewRedisExportCache(ctx, cfg.RedisURL, cfg.ExportCacheTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer exportCache.Close()
		exportOpts = append(exportOpts, export.WithCache(exportCache))
		logger.Info("export cache enabled", zap.Duration("ttl", cfg.ExportCacheTTL))
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		exportArchive, err := archive.NewMinioArchive(ctx, archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, logger.Named("archive"))
		if err != nil {
			return fmt.Errorf("minio setup failed: %w", err)
		}
		exportOpts = append(exportOpts, export.WithArchive(exportArchive))
		logger.Info("export archive enabled", zap.String("bucket", cfg.MinioBucket))
	}
	exporter := export.NewService(export.NewChromeRenderer(cfg.ChromePath, cfg.PDFTimeout), logger.Named("export"), exportOpts...)

	serviceOpts := []app.Option{app.WithGenerationObserver(reg)}
	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
		serviceOpts = append(serviceOpts, app.WithHistory(history.New(cfg.HistoryDir)))
		logger.Info("policy history enabled", zap.String("dir", cfg.HistoryDir))
	}

	var engine search.Engine
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("meili"))
		defer meiliClient.Close()
		engine = meiliClient
	}
	searchService := search.NewService(engine, search.NewPgFTS(db), logger.Named("search"))
	serviceOpts = append(serviceOpts, app.WithSearch(searchService))
	if engine != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	service := app.New(dataStore, generator, exporter, logger, serviceOpts...)
	httpServer := app.NewHTTPServer(service, validator, cfg.CORSOrigin, logger.Named("http")).WithMetrics(reg)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("PolicyForge API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
