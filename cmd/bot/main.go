// Command bot is the btc-advisor-bot process entry point: it loads
// configuration, resolves credentials, wires every component
// (exchange, marketdata, advisor, store, policy, reconciler, executor,
// events, notifier, api, scheduler) and runs until a shutdown signal
// arrives, matching the teacher's cmd/bot/main.go lifecycle shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"btc-advisor-bot/config"
	"btc-advisor-bot/internal/advisor"
	"btc-advisor-bot/internal/api"
	"btc-advisor-bot/internal/clock"
	"btc-advisor-bot/internal/events"
	"btc-advisor-bot/internal/exchange"
	"btc-advisor-bot/internal/executor"
	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/model"
	"btc-advisor-bot/internal/notifier"
	"btc-advisor-bot/internal/secrets"
	"btc-advisor-bot/internal/store"
)

// exit codes per spec.md §6: 0 normal shutdown, 1 config/startup
// failure, 2 unrecoverable exchange auth failure.
const (
	exitOK            = 0
	exitStartupFailed = 1
	exitExchangeAuth  = 2
)

// shutdownGrace bounds how long in-flight analyses, executor actions,
// and notifier queues get to drain before the process exits regardless
// (spec.md §5).
const shutdownGrace = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return exitStartupFailed
	}

	log := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		Component:   cfg.Logging.Component,
		IncludeFile: cfg.Logging.IncludeFile,
		JSONFormat:  cfg.Logging.JSONFormat,
	})
	logging.SetDefault(log)

	resolver, err := secrets.New(cfg.Vault)
	if err != nil {
		log.Error("failed to build secret resolver", "error", err.Error())
		return exitStartupFailed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiKey, secretKey, err := resolver.ExchangeCredentials(ctx, cfg.Exchange)
	if err != nil {
		log.Error("failed to resolve exchange credentials", "error", err.Error())
		return exitStartupFailed
	}
	advisorKey, err := resolver.AdvisorAPIKey(ctx, cfg.Advisor)
	if err != nil {
		log.Error("failed to resolve advisor credentials", "error", err.Error())
		return exitStartupFailed
	}
	advisorCfg := cfg.Advisor
	advisorCfg.APIKey = advisorKey

	exch := exchange.New(cfg.Exchange, apiKey, secretKey)
	if _, err := exch.GetBalance(ctx); err != nil {
		log.Error("exchange authentication failed", "error", err.Error())
		return exitExchangeAuth
	}

	st, err := store.New(cfg.Bot.DataDir)
	if err != nil {
		log.Error("failed to open analysis store", "error", err.Error())
		return exitStartupFailed
	}

	bus := events.New()
	advisorClient := advisor.NewClient(advisorCfg)
	exec := executor.New(exch, cfg.Bot.Symbol, bus)

	pl, err := buildPipeline(cfg, exch, advisorClient, st, bus, exec)
	if err != nil {
		log.Error("failed to build pipeline", "error", err.Error())
		return exitStartupFailed
	}

	scheduler, err := clock.New(cfg.Bot.Timezone, pl.Fire, pl.FireFinal)
	if err != nil {
		log.Error("failed to build scheduler", "error", err.Error())
		return exitStartupFailed
	}

	var notify *notifier.Notifier
	if len(cfg.Notification.Channels) > 0 {
		notify, err = notifier.New(bus, cfg.Notification.Channels)
		if err != nil {
			log.Error("failed to build notifier", "error", err.Error())
			return exitStartupFailed
		}
	}

	core := &botCore{pipeline: pl, scheduler: scheduler, exch: exch, symbol: cfg.Bot.Symbol, cancel: cancel}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(api.Config{
			ListenAddr:        cfg.API.ListenAddr,
			BearerToken:       cfg.API.BearerToken,
			AdminPasswordHash: cfg.API.AdminPasswordHash,
		}, core)
		if cfg.API.AdminPasswordHash != "" {
			log.Info("api server requires POST /login with the configured admin password")
		} else {
			token, err := apiServer.OperatorToken()
			if err != nil {
				log.Error("failed to mint operator token", "error", err.Error())
				return exitStartupFailed
			}
			log.Info("no admin password configured, minted a bootstrap operator token", "token", token)
		}
	}

	var drained sync.WaitGroup
	drained.Add(1)
	go func() { defer drained.Done(); scheduler.Run(ctx, activeTimeframes()) }()
	if notify != nil {
		drained.Add(1)
		go func() { defer drained.Done(); notify.Run(ctx, shutdownGrace) }()
	}
	if apiServer != nil {
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("api server stopped unexpectedly", "error", err.Error())
			}
		}()
	}
	go exec.RunLiquidationWatch(ctx, 30*time.Second)

	log.Info("bot started", "symbol", cfg.Bot.Symbol, "timezone", cfg.Bot.Timezone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutdown signal received, draining")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("api server shutdown error", "error", err.Error())
		}
	}
	allDone := make(chan struct{})
	go func() { drained.Wait(); close(allDone) }()
	select {
	case <-allDone:
	case <-shutdownCtx.Done():
	}

	log.Info("shutdown complete")
	return exitOK
}

// activeTimeframes lists the sampled timeframes the scheduler drives
// automatically. 15m is disabled by default (spec.md §4.1); it remains
// reachable only through the manual /analyze command.
func activeTimeframes() []model.Timeframe {
	return []model.Timeframe{model.Timeframe1h, model.Timeframe4h, model.Timeframe1d}
}
