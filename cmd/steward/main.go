// Command steward is an interactive coding assistant for the terminal.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"steward/internal/agent"
	"steward/internal/config"
	"steward/internal/history"
	"steward/internal/observability"
	"steward/internal/permission"
	"steward/internal/providers"
	"steward/internal/sessions"
	"steward/internal/tasks"
	"steward/internal/tools/exec"
	"steward/internal/tools/files"
	"steward/internal/tools/web"
)

var (
	configPath string
	workspace  string
	modelName  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "steward",
		Short: "Interactive coding assistant with gated tool execution",
		RunE:  runChat,
		// The REPL prints its own errors.
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default from config)")
	rootCmd.Flags().StringVarP(&modelName, "model", "m", "", "model name override")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if workspace != "" {
		cfg.Workspace = workspace
	}
	if modelName != "" {
		cfg.Model.Name = modelName
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	resolver, err := files.NewResolver(cfg.Workspace)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	if cfg.Metrics.Addr != "" {
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, promhttp.Handler()); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
	}

	registry := agent.NewRegistry()
	registry.MustRegister(files.NewReadTool(resolver))
	registry.MustRegister(files.NewWriteTool(resolver))
	registry.MustRegister(files.NewEditTool(resolver))
	registry.MustRegister(files.NewDeleteTool(resolver))
	registry.MustRegister(files.NewListDirTool(resolver))
	registry.MustRegister(files.NewGlobTool(resolver))
	registry.MustRegister(files.NewSearchTool(resolver))
	manager := tasks.NewManager(logger, metrics)
	defer manager.Close()

	registry.MustRegister(exec.NewBackgroundBashTool(resolver.Root(), manager))
	registry.MustRegister(web.NewFetchTool())

	engine := permission.NewEngine(&cfg.Permissions, logger)
	for _, rule := range permission.LoadRules(cfg.Storage.RulesPath, logger) {
		engine.AddRule(rule)
	}

	provider, err := providers.NewAnthropic(providers.AnthropicConfig{
		APIKey:       cfg.Model.APIKey,
		BaseURL:      cfg.Model.BaseURL,
		DefaultModel: cfg.Model.Name,
	})
	if err != nil {
		return fmt.Errorf("configure provider: %w", err)
	}

	var sessionStore sessions.Store
	if s, err := sessions.NewSQLiteStore(cfg.Storage.SessionsPath); err != nil {
		logger.Warn("session persistence unavailable, using in-memory store", "error", err)
		sessionStore = sessions.NewMemoryStore()
	} else {
		sessionStore = s
	}
	defer sessionStore.Close()

	repl := newREPL(replOptions{
		config:   cfg,
		logger:   logger,
		registry: registry,
		engine:   engine,
		provider: provider,
		recorder: history.NewRecorder(),
		tasks:    manager,
		store:    sessionStore,
		metrics:  metrics,
	})
	return repl.run(cmd.Context())
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
