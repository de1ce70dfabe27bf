// handlers.go contains the command implementations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/chatloop/internal/agents"
	"github.com/haasonsaas/chatloop/internal/config"
	"github.com/haasonsaas/chatloop/internal/loop"
	"github.com/haasonsaas/chatloop/internal/observability"
	"github.com/haasonsaas/chatloop/internal/runtime"
	"github.com/haasonsaas/chatloop/pkg/models"
)

// shutdownTimeout bounds the graceful wind-down after a signal.
const shutdownTimeout = 30 * time.Second

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

// runServe starts the control plane and blocks until a shutdown signal.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)

	rt, err := runtime.New(cfg,
		runtime.WithLogger(logger),
		runtime.WithMetrics(prometheus.DefaultRegisterer),
		runtime.WithSender(logSender(logger)),
	)
	if err != nil {
		return err
	}
	if err := rt.Start(); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return rt.Shutdown(shutdownCtx)
}

// logSender is the serve-mode delivery fallback: outgoing segments go to
// the log until the embedding service plugs in a platform sender.
func logSender(logger *slog.Logger) loop.SenderFunc {
	return func(_ context.Context, stream *models.ChatStream, segments []string, quote *models.Message) error {
		attrs := []any{
			"stream_id", stream.StreamID,
			"segments", len(segments),
			"text", strings.Join(segments, " | "),
		}
		if quote != nil {
			attrs = append(attrs, "quoting", quote.ID)
		}
		logger.Info("outbound reply", attrs...)
		return nil
	}
}

// runAgentsList prints the agent definitions found in the configured
// directory.
func runAgentsList(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Agents.Directory == "" {
		return fmt.Errorf("no agents.directory configured")
	}

	loader := agents.NewLoader(cfg.Agents.Directory, slog.Default())
	defs, err := loader.Load()
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		fmt.Println("No agent definitions found.")
		return nil
	}

	fmt.Printf("%-16s %-16s %-24s %s\n", "TENANT", "AGENT", "NAME", "PERSONA")
	for _, agent := range defs {
		tenant := agent.TenantID
		if tenant == "" {
			tenant = models.DefaultTenant
		}
		persona := agent.Persona.Core
		if len(persona) > 48 {
			persona = persona[:45] + "..."
		}
		fmt.Printf("%-16s %-16s %-24s %s\n", tenant, agent.AgentID, agent.Name, persona)
	}
	return nil
}

// runConfigCheck validates the configuration file and reports the resolved
// key settings.
func runConfigCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration OK: %s\n", configPath)
	fmt.Printf("  bot:       %s (platform %s)\n", cfg.Bot.Name, cfg.Bot.Platform)
	fmt.Printf("  storage:   %s", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		fmt.Printf(" (%s)", cfg.Storage.Path)
	}
	fmt.Println()
	fmt.Printf("  planner:   %s\n", cfg.LLM.PlannerModel)
	fmt.Printf("  reply:     %s\n", cfg.LLM.ReplyModel)
	fmt.Printf("  agents:    %s (watch=%v)\n", cfg.Agents.Directory, cfg.Agents.Watch)
	return nil
}
