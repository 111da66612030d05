package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketmate/pkg/channels"
	_ "marketmate/pkg/channels/autoload"
	"marketmate/pkg/chat"
	"marketmate/pkg/config"
	"marketmate/pkg/gateway"
	"marketmate/pkg/llm"
	_ "marketmate/pkg/llm/autoload"
	"marketmate/pkg/monitor"
	"marketmate/pkg/ratelimit"
	"marketmate/pkg/store"
	"marketmate/pkg/tools"
	"marketmate/pkg/workflow"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, sysCfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	monitor.SetupSlog(sysCfg.LogLevel)

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		slog.Error("Failed to open store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		slog.Error("Failed to init LLM clients", "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry()
	if sysCfg.EnableTools {
		tools.RegisterFinanceTools(registry)
	}

	metrics := monitor.NewCounters()
	limiter := ratelimit.NewLimiter(cfg.Tiers)

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = workflow.DefaultSystemPrompt
	}

	engine := workflow.NewEngine(client, registry, metrics, workflow.Config{
		MaxIterations:        sysCfg.MaxIterations,
		MaxRetries:           sysCfg.MaxRetries,
		RetryDelay:           time.Duration(sysCfg.RetryDelayMs) * time.Millisecond,
		SummaryEvery:         sysCfg.SummaryEvery,
		ReasoningTemperature: sysCfg.ReasoningTemperature,
		SummaryTemperature:   sysCfg.SummaryTemperature,
		SystemPrompt:         systemPrompt,
		EnableTools:          sysCfg.EnableTools,
	})

	turns := chat.NewService(engine, st, limiter, metrics, chat.Config{
		HistoryWindow: sysCfg.HistoryWindow,
		TurnTimeout:   time.Duration(sysCfg.LLMTimeoutMs) * time.Millisecond,
		DefaultModel:  cfg.DefaultModel,
	})

	gw := gateway.NewManager()
	cliMonitor := monitor.NewCLIMonitor()
	gw.SetMonitor(cliMonitor)
	if err := cliMonitor.Start(); err != nil {
		slog.Warn("Failed to start CLI monitor", "error", err)
	}

	channels.LoadFromConfig(cfg.Channels, channels.Deps{
		Turns:   turns,
		Store:   st,
		Metrics: metrics,
		Gateway: gw,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.StartAll(ctx); err != nil {
		slog.Error("Failed to start channels", "error", err)
		os.Exit(1)
	}

	// Hot reload: tier limits and log level can change without a
	// restart. Provider and channel changes still need one.
	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")
	go func() {
		for range reloadCh {
			newCfg, newSys, err := config.Load()
			if err != nil {
				slog.Error("Reload failed, keeping previous configuration", "error", err)
				continue
			}
			limiter.SetTiers(newCfg.Tiers)
			monitor.SetupSlog(newSys.LogLevel)
			slog.Info("Configuration reloaded")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Received shutdown signal. Stopping services...")

	cancel()
	gw.StopAll()
	cliMonitor.Stop()
	slog.Info("Bye!")
}
