package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/ai"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/config"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/database"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/engine"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/executor"
	internalhttp "github.com/LDANghiem/autovideo-ai-studio-sub001/internal/http"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/http/handlers"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/mediatool"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/probe"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/reaper"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/repository"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/storage"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/internal/version"
	"github.com/LDANghiem/autovideo-ai-studio-sub001/pkg/httpclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the autovideo worker",
	Long: `Start the autovideo worker HTTP server and pipeline executor.

The server provides:
- Webhook intake for render and shorts runs
- Project status polling and retry endpoints
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "autovideo.db", "Database DSN")
	serveCmd.Flags().String("data-dir", "./data/objects", "Local object storage directory")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.local_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	// initConfig already loaded defaults, file, and env into the global
	// viper, including the flag bindings above.
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	repo := repository.NewProjectRepository(db.DB)

	httpConfig := httpclient.DefaultConfig()
	httpConfig.UserAgent = version.UserAgent()
	httpConfig.Logger = logger
	client := httpclient.New(httpConfig)

	store, err := buildStorage(cfg, client)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	prober := probe.NewProber(cfg.FFmpeg.ProbePath).WithTimeout(cfg.Render.ProbeTimeout)
	tools := mediatool.New(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.YtdlpPath, mediatool.WithLogger(logger))

	eng := engine.NewCLIEngine(cfg.Render.EngineBinary, cfg.Render.ProjectDir, cfg.Render.BundleDir,
		engine.WithLogger(logger),
		engine.WithStepTimeout(cfg.Render.StepTimeout),
	)
	bundles := engine.NewBundleCache(eng, logger)

	var analyzer executor.Analyzer
	if cfg.OpenAI.APIKey != "" {
		aiClient, err := ai.NewClient(cfg.OpenAI.APIKey,
			ai.WithChatModel(cfg.OpenAI.ChatModel),
			ai.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("initializing openai client: %w", err)
		}
		analyzer = aiClient
	} else {
		logger.Warn("openai.api_key not set; shorts runs will fail at transcription")
	}

	exec := executor.New(executor.Deps{
		Repo:       repo,
		Engine:     eng,
		Bundles:    bundles,
		Prober:     prober,
		Tools:      tools,
		Analyzer:   analyzer,
		Store:      store,
		Downloader: client,
		Config:     cfg,
		Logger:     logger,
	})
	dispatcher := executor.NewDispatcher(exec, cfg, logger)

	var sweeper *reaper.Reaper
	if cfg.Reaper.Enabled {
		sweeper = reaper.New(repo, cfg.Reaper.Cron, cfg.Reaper.Lease, reaper.WithLogger(logger))
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("starting reaper: %w", err)
		}
		defer sweeper.Stop()
	}

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	webhookHandler := handlers.NewWebhookHandler(repo, dispatcher, cfg.Webhook.Secret, logger)
	webhookHandler.Register(server.API())

	retryHandler := handlers.NewRetryHandler(repo, client, cfg.Webhook.TriggerURL, cfg.Webhook.Secret, logger)
	retryHandler.Register(server.API())

	projectHandler := handlers.NewProjectHandler(repo)
	projectHandler.Register(server.API())

	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db)
	healthHandler.Register(server.API())

	systemHandler := handlers.NewSystemHandler(cfg)
	systemHandler.Register(server.API())

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting autovideo worker",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	// Let in-flight runs finish writing their terminal status before the
	// process exits.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer drainCancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn("dispatcher drain incomplete", slog.Any("error", err))
	}

	return serveErr
}

// buildStorage constructs the configured artifact storage provider.
func buildStorage(cfg *config.Config, client *httpclient.Client) (storage.Provider, error) {
	switch cfg.Storage.Provider {
	case "supabase":
		return storage.NewSupabase(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, client), nil
	case "localfs":
		return storage.NewLocalFS(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}
