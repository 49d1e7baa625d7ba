package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/harun/recap/internal/config"
	"github.com/harun/recap/internal/logger"
	"github.com/harun/recap/internal/observability"
	"github.com/harun/recap/internal/tracing"
	"github.com/harun/recap/pkg/agent"
	"github.com/harun/recap/pkg/compaction"
	"github.com/harun/recap/pkg/diagnostics"
	"github.com/harun/recap/pkg/hooks"
	"github.com/harun/recap/pkg/models"
	"github.com/harun/recap/pkg/session"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// newProviders creates the model clients; replaced in tests
var newProviders = func() agent.ProviderCreator { return &agent.ProviderFactory{} }

// runtime holds the components one command invocation uses
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	logger   zerolog.Logger
	sessions *session.Manager
	registry *models.ConfigRegistry
	hooks    *hooks.Manager

	sink    diagnostics.Sink
	metrics *http.Server
	tracing bool
}

// loadConfig loads and validates the configuration, applying flag overrides
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.cfgFile)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newRuntime wires logging, observability, storage and models from config.
// Callers must Close the runtime.
func newRuntime(cmd *cobra.Command, flags *rootFlags) (rt *runtime, err error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	rt = &runtime{cfg: cfg, log: log, logger: log.GetZerolog()}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	observability.EnsureRegistered()
	if cfg.Metrics.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Metrics.AuditFile); err != nil {
			return rt, err
		}
	}
	if cfg.Metrics.Tracing {
		if err := tracing.InitOpenTelemetry(tracing.ProviderConfig{
			ServiceName:    "recap",
			ServiceVersion: version,
			SampleRatio:    cfg.Metrics.TraceSampleRatio,
			Logger:         rt.logger,
		}); err != nil {
			return rt, err
		}
		rt.tracing = true
	}
	if cfg.Metrics.Addr != "" {
		if err := rt.serveMetrics(cfg.Metrics.Addr); err != nil {
			return rt, err
		}
	}

	rt.sessions, err = session.New(session.Config{Dir: cfg.SessionsDir, Logger: rt.logger})
	if err != nil {
		return rt, err
	}

	rt.registry, err = models.NewConfigRegistry(cfg.Models.Known, cfg.Profiles(), cfg.EnvFiles...)
	if err != nil {
		return rt, err
	}

	rt.hooks, err = hooks.NewManager(hooks.Config{
		Enabled: cfg.Hooks.Enabled,
		Hooks:   cfg.Hooks.Entries,
		Logger:  rt.logger,
	})
	if err != nil {
		return rt, fmt.Errorf("failed to create hook manager: %w", err)
	}

	return rt, nil
}

// diagnosticsSink opens the configured sink on first use
func (rt *runtime) diagnosticsSink() (diagnostics.Sink, error) {
	if rt.sink != nil {
		return rt.sink, nil
	}
	sink, err := diagnostics.New(rt.cfg.Diagnostics, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.sink = sink
	return sink, nil
}

// compactor builds a Compactor for one session
func (rt *runtime) compactor(sessionKey string) (*compaction.Compactor, error) {
	sink, err := rt.diagnosticsSink()
	if err != nil {
		return nil, err
	}
	sessionDefault, err := rt.cfg.SessionDefaultModel()
	if err != nil {
		return nil, err
	}

	c := rt.cfg.Compaction
	return compaction.New(compaction.Config{
		Sessions:        rt.sessions,
		Registry:        rt.registry,
		Providers:       newProviders(),
		Candidates:      rt.cfg.Models.Candidates,
		SessionDefault:  sessionDefault,
		DefaultThinking: rt.cfg.DefaultThinking(),
		Sandbox:         rt.cfg.Sandbox,
		Diagnostics:     sink,
		Notifier: compaction.MultiNotifier{
			compaction.LogNotifier{Logger: rt.logger},
			compaction.HookNotifier{Hooks: rt.hooks, SessionKey: sessionKey},
		},
		Options: compaction.Options{
			ToolConcurrency:    c.ToolConcurrency,
			PreviewLength:      c.PreviewLength,
			MaxOutputChars:     c.MaxOutputChars,
			MinSummaryChars:    c.MinSummaryChars,
			MaxTurns:           c.MaxTurns,
			MaxTokens:          c.MaxTokens,
			KeepRecentMessages: c.KeepRecentMessages,
			IncludeTempFiles:   c.IncludeTempFiles,
			DeletingTools:      c.DeletingTools,
		},
		Logger: rt.logger,
	})
}

func (rt *runtime) serveMetrics(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	rt.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := rt.metrics.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	rt.logger.Info().Str("addr", listener.Addr().String()).Msg("Serving metrics")
	return nil
}

// Close waits for background hooks and releases everything the runtime opened
func (rt *runtime) Close() {
	rt.hooks.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rt.metrics != nil {
		if err := rt.metrics.Shutdown(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}
	if rt.tracing {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	if rt.sink != nil {
		if err := rt.sink.Close(); err != nil {
			rt.logger.Warn().Err(err).Msg("Failed to close diagnostics sink")
		}
	}
	if err := observability.GetAuditLogger().Close(); err != nil {
		rt.logger.Warn().Err(err).Msg("Failed to close audit log")
	}
	rt.log.Close()
}
