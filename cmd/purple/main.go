package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ixentbench/purple/pkg/adapters/llm"
	_ "github.com/ixentbench/purple/pkg/adapters/llm/fake"
	_ "github.com/ixentbench/purple/pkg/adapters/llm/gemini"
	_ "github.com/ixentbench/purple/pkg/adapters/llm/openai"
	"github.com/ixentbench/purple/pkg/command"
	"github.com/ixentbench/purple/pkg/config"
	"github.com/ixentbench/purple/pkg/mcpserver"
	"github.com/ixentbench/purple/pkg/otel"
	"github.com/ixentbench/purple/pkg/prompt"
	"github.com/ixentbench/purple/pkg/runtime"
	"github.com/ixentbench/purple/pkg/store"
	"github.com/ixentbench/purple/pkg/store/gormstore"
	"github.com/ixentbench/purple/pkg/store/sqlstore"
	"github.com/ixentbench/purple/pkg/usage"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "purple: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host        string
		port        int
		showVersion bool
	)
	cmd := &cobra.Command{
		Use:   "purple",
		Short: "Gear puzzle agent backed by a language model",
		Long: `purple answers board observations with one validated move.

Each observation is turned into a prompt, sent to the configured model and
the reply is parsed and checked against the board. Invalid replies are
re-prompted with the rejection reason; when no valid move is produced the
agent answers PASS and says why.

Settings come from PURPLE_CONFIG (YAML) and PURPLE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "purple %s (commit=%s, date=%s)\n", version, commit, date)
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "listen host")
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "listen port")
	cmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	return cmd
}

// serve wires the agent and blocks until ctx is done. Configuration and
// credential problems are returned before the listener starts.
func serve(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.RequiresCredential() && cfg.APIKey == "" {
		return fmt.Errorf("missing API key for provider %q (set GOOGLE_API_KEY or OPENAI_API_KEY)", cfg.Provider)
	}

	shutdownTracing, err := otel.Init(ctx, otel.Config{ServiceName: "purple", ServiceVersion: version, UseStdout: cfg.TraceStdout})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	deps, cleanup, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           buildMux(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "provider", cfg.Provider, "model", cfg.Model, "agent_id", cfg.AgentID)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// wire builds the decide pipeline and its optional decision log.
func wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (deps, func(), error) {
	backend, err := llm.New(ctx, cfg.Provider, map[string]any{
		"api_key":  cfg.APIKey,
		"model":    cfg.Model,
		"base_url": cfg.BaseURL,
	})
	if err != nil {
		return deps{}, nil, fmt.Errorf("backend %s: %w", cfg.Provider, err)
	}

	prompts := prompt.NewStore()
	builder, err := prompt.NewBuilder(prompts)
	if err != nil {
		return deps{}, nil, err
	}
	if cfg.PromptFile != "" {
		body, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return deps{}, nil, fmt.Errorf("prompt file: %w", err)
		}
		p, issues, err := prompts.Save(prompt.Prompt{Name: prompt.SystemPrompt, Body: string(body), Meta: map[string]string{"source": cfg.PromptFile}})
		if err != nil {
			return deps{}, nil, fmt.Errorf("prompt file %s: %w %v", cfg.PromptFile, err, issues)
		}
		logger.Info("system prompt loaded", "file", cfg.PromptFile, "version", p.Version,
			"versions", len(prompts.List(prompt.SystemPrompt)))
		if d := prompts.Diff(prompt.SystemPrompt, 1, p.Version); d != "" {
			logger.Debug("system prompt differs from built-in rules", "diff", d)
		}
	}

	extractor, err := command.NewExtractor(cfg.CommandQuery, cfg.ReasoningQuery)
	if err != nil {
		return deps{}, nil, err
	}
	validator := command.NewValidator(cfg.Rules, extractor)

	estimate, err := usage.NewTikTokenEstimator(cfg.Model)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens from length", "error", err)
		estimate = usage.RuneEstimator
	}

	decisions, err := openStore(ctx, cfg, logger)
	if err != nil {
		return deps{}, nil, fmt.Errorf("decision log: %w", err)
	}
	cleanup := func() {}
	if decisions != nil {
		cleanup = func() { _ = decisions.Close() }
	}

	opts := []runtime.RunnerOption{
		runtime.WithAgentID(cfg.AgentID),
		runtime.WithModel(cfg.Model),
		runtime.WithMaxRetries(cfg.MaxRetries),
		runtime.WithAttemptTimeout(cfg.AttemptTimeout),
		runtime.WithTokenEstimator(estimate),
		runtime.WithLogger(logger),
	}
	if decisions != nil {
		opts = append(opts, runtime.WithRecorder(decisions), runtime.WithRawObservations(cfg.KeepObservations))
	}
	runner := runtime.NewRunner(backend, builder, validator, opts...)

	return deps{
		runner:         runner,
		decisions:      decisions,
		mcp:            mcpserver.New(runner, version).Handler(),
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
		model:          cfg.Model,
	}, cleanup, nil
}

// openStore returns nil when no database is configured.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.DecisionStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	if store.Kind(cfg.DatabaseURL) == "postgres" && cfg.StoreBackend != config.BackendSQL {
		return gormstore.Open(cfg.DatabaseURL, gormstore.WithLogger(gormstore.SlogLogger(logger)))
	}
	return sqlstore.Open(ctx, cfg.DatabaseURL)
}
