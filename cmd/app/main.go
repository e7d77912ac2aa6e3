// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ai-answering-machine/internal/application"
	"ai-answering-machine/internal/config"
	"ai-answering-machine/internal/domain/ports/adapter"
	"ai-answering-machine/internal/domain/ports/repository"
	aiAdapters "ai-answering-machine/internal/infra/adapters/ai"
	httpapi "ai-answering-machine/internal/infra/http"
	"ai-answering-machine/internal/infra/i18n"
	"ai-answering-machine/internal/infra/kv"
	"ai-answering-machine/internal/infra/logging"
	"ai-answering-machine/internal/infra/metrics"
	red "ai-answering-machine/internal/infra/redis"
	"ai-answering-machine/internal/infra/store"
	"ai-answering-machine/internal/infra/upload"
	"ai-answering-machine/internal/infra/worker"
	"ai-answering-machine/internal/live"
	"ai-answering-machine/internal/usecase"
)

// set via -ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		// logger is not configured yet
		fallback := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)
		fallback.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Local store ----
	hub := live.NewHub()
	st, err := store.Open(cfg.Store.Path, hub, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("store")
	}
	defer func() { _ = st.Close() }()
	if v, err := st.Version(ctx); err == nil {
		metrics.SetSchemaVersion(v)
	}
	taskRepo := store.NewTaskRepo(st)
	convRepo := store.NewConversationRepo(st)

	// ---- Draft backend ----
	var draftKV repository.KeyValue
	switch cfg.Draft.Backend {
	case "redis":
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer func() { _ = redisClient.Close() }()
		draftKV = red.NewKVStore(redisClient, cfg.Redis.Prefix)
	case "memory":
		draftKV = kv.NewMemoryStore()
	default:
		fs, err := kv.NewFileStore(cfg.Draft.Dir)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.Draft.Dir).Msg("draft store")
		}
		draftKV = fs
	}
	logger.Info().Str("backend", cfg.Draft.Backend).Msg("draft backend ready")

	// ---- Uploads ----
	uploader, err := upload.NewLocalUploader(cfg.Upload.Dir, cfg.Upload.PublicURL, cfg.Upload.MaxBytes)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Upload.Dir).Msg("uploads")
	}

	// ---- Localization ----
	catalog, err := i18n.NewCatalog(i18n.LocalesFS, "en")
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}
	tr := catalog.For(cfg.I18n.Locale)

	// ---- AI adapters (OpenAI-compatible gateway, Gemini) ----
	genOpts := usecase.GenerationOptions{
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.DefaultModel,
		OCRModel: cfg.AI.OCRModel,
	}
	aiAdapters.SetTokenizerDir(cfg.AI.TokenizerDir)
	providers := map[string]adapter.AIServiceAdapter{}
	if cfg.AI.APIKey != "" {
		providers["openai"] = aiAdapters.NewOpenAIAdapter(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.DefaultModel, tr.OCRPrompt(), logger,
			aiAdapters.WithImageResolver(uploader))
		logger.Info().Str("base_url", cfg.AI.BaseURL).Str("model", cfg.AI.DefaultModel).
			Str("api_key", logging.Redact(cfg.AI.APIKey, cfg.Runtime.Dev)).Msg("AI adapter: OpenAI compatible")
	}
	if cfg.AI.GeminiKey != "" {
		geminiModel := ""
		if strings.HasPrefix(cfg.AI.DefaultModel, "gemini") {
			geminiModel = cfg.AI.DefaultModel
		}
		g, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, "", geminiModel, tr.OCRPrompt(), uploader)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		providers["gemini"] = g
		if genOpts.APIKey == "" {
			genOpts.APIKey = cfg.AI.GeminiKey
		}
		logger.Info().Str("model", geminiModel).
			Str("api_key", logging.Redact(cfg.AI.GeminiKey, cfg.Runtime.Dev)).Msg("AI adapter: Gemini")
	}

	var ai adapter.AIServiceAdapter
	switch {
	case len(providers) > 0:
		ai = aiAdapters.NewMultiAIAdapter(cfg.AI.DefaultProvider, providers, cfg.AI.ModelMap)
	case cfg.Runtime.Dev:
		ai = aiAdapters.NewNoopAIAdapter(40*time.Millisecond, logger)
		genOpts.APIKey = "noop"
		logger.Warn().Msg("no AI credentials; using the echo adapter")
	default:
		// generation stays a no-op until a key is configured
		ai = aiAdapters.NewNoopAIAdapter(0, logger)
		logger.Warn().Msg("no AI credentials configured; answers will not be generated")
	}
	ai = aiAdapters.NewLimitedAI(ai, cfg.AI.ConcurrentLimit)

	// ---- Worker pool ----
	pool := worker.NewPool(cfg.Worker.Size, cfg.Worker.Queue, logger)
	pool.Start(ctx)

	// ---- Use cases ----
	notices := httpapi.NewNoticeBroker()
	loc := cfg.Location()
	draftUC := usecase.NewDraftUseCase(draftKV, logger)
	taskUC := usecase.NewTaskUseCase(taskRepo, convRepo, draftUC, uploader, upload.Cropper{}, logger)
	searchUC := usecase.NewSearchUseCase(taskRepo, loc, logger)
	answerUC := usecase.NewAnswerUseCase(taskRepo, draftUC, ai, notices, pool, tr, genOpts, logger)
	chatUC := usecase.NewChatUseCase(convRepo, ai, notices, tr, genOpts, logger)

	// ---- Facade ----
	facade := application.NewAnsweringFacade(taskUC, answerUC, searchUC, chatUC, loc)

	// ---- HTTP ----
	srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.Deps{
		Facade:    facade,
		Drafts:    draftUC,
		Tasks:     taskUC,
		Search:    searchUC,
		Answers:   answerUC,
		Chat:      chatUC,
		Notices:   notices,
		Store:     st,
		UploadDir: uploader.Dir(),
		MaxUpload: cfg.Upload.MaxBytes,
	}, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info().Str("signal", s.String()).Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	pool.Stop()
	logger.Info().Msg("bye")
}
