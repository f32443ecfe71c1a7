package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chattrain/chattrain/internal/audit"
	"github.com/chattrain/chattrain/internal/chat"
	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/logging"
	"github.com/chattrain/chattrain/internal/masking"
	"github.com/chattrain/chattrain/internal/ratelimit"
	"github.com/chattrain/chattrain/internal/registry"
	"github.com/chattrain/chattrain/internal/scenario"
	"github.com/chattrain/chattrain/internal/security"
	"github.com/chattrain/chattrain/internal/server"
	"github.com/chattrain/chattrain/internal/validation"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the training server",
	Long: `Start the ChatTrain server: loads scenarios, builds the security
pipeline, and serves the WebSocket and HTTP API until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8000, "server port")
	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().String("scenarios", "./scenarios", "scenario directory")
	serveCmd.Flags().Bool("no-watch", false, "disable scenario hot reload")

	if err := bindFlags(serveCmd.Flags(), map[string]string{
		"server.port":   "port",
		"server.host":   "host",
		"scenarios.dir": "scenarios",
	}); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Scenarios.HotReload = false
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := scenario.NewLoader(cfg.Scenarios.Dir, logger)
	if err := loader.LoadAll(ctx); err != nil {
		logger.Warn(ctx, err, "scenario load incomplete", "dir", cfg.Scenarios.Dir)
	}
	if cfg.Scenarios.HotReload {
		watcher, err := scenario.NewWatcher(ctx, loader, logger)
		if err != nil {
			logger.Warn(ctx, err, "scenario hot reload unavailable")
		} else {
			defer watcher.Close()
		}
	}

	auditLog := audit.NewLog(cfg.Security.MaxAuditEvents)
	limiter := ratelimit.NewLimiter(cfg.RateLimit, logger)
	validator := validation.NewValidator(cfg.Security, logger)
	masker := masking.NewMasker(cfg.Security, logger)
	reg := registry.NewRegistry(auditLog, logger)
	store := chat.NewMemoryStore()

	orchestrator := security.New(security.Options{
		Limiter:     limiter,
		Validator:   validator,
		Masker:      masker,
		AuditLog:    auditLog,
		Store:       store,
		Model:       chat.NewMockModelClient(nil),
		Scenarios:   server.NewScenarioResolver(loader),
		Broadcaster: reg,
		Logger:      logger,
	})

	srv := server.New(cfg, orchestrator, limiter, reg, auditLog, loader, logger)

	logger.Info(ctx, "starting chattrain",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"scenarios", len(loader.List()),
		"rate_limiting", cfg.RateLimit.Enabled,
		"masking", cfg.Security.MaskingEnabled)

	return srv.Start(ctx)
}
