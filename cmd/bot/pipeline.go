package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"btc-advisor-bot/config"
	"btc-advisor-bot/internal/advisor"
	"btc-advisor-bot/internal/events"
	"btc-advisor-bot/internal/exchange"
	"btc-advisor-bot/internal/executor"
	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/marketdata"
	"btc-advisor-bot/internal/model"
	"btc-advisor-bot/internal/policy"
	"btc-advisor-bot/internal/reconciler"
	"btc-advisor-bot/internal/store"
)

// Deadlines holds the per-stage I/O deadlines spec.md §5 mandates.
type Deadlines struct {
	MarketData time.Duration
	Advisor    time.Duration
	Exchange   time.Duration
}

func defaultDeadlines() Deadlines {
	return Deadlines{MarketData: 10 * time.Second, Advisor: 60 * time.Second, Exchange: 15 * time.Second}
}

// maxFinalSnapshotAge bounds how stale a source-timeframe snapshot may
// be before the final pass refuses to combine it (spec.md §4.3's "final
// pass observes only analyses that existed at the moment it was
// enqueued" combined with the store's own staleness guard).
const maxFinalSnapshotAge = 26 * time.Hour

// pipeline wires C1's callbacks (one per sampled timeframe, plus the
// synthetic final pass) to C2-C7: the analysis store, advisor gateway,
// signal policy, reconciler, and executor. It holds no state of its
// own beyond the final-pass mutex — every component it drives owns its
// own concurrency.
type pipeline struct {
	symbol string

	market     *marketdata.Adapter
	advisorGW  *advisor.Gateway
	exch       *exchange.Client
	store      *store.Store
	policy     *policy.Policy
	reconciler *reconciler.Reconciler
	executor   *executor.Executor
	bus        *events.Bus
	log        *logging.Logger

	deadlines Deadlines

	finalMu sync.Mutex
}

// Fire is C1's per-timeframe TriggerFunc: pull market data, consult
// the advisor, persist the result. It never touches policy/reconciler/
// executor — those run only on the final pass (spec.md §4.5 "applied
// only to the final Analysis").
func (p *pipeline) Fire(ctx context.Context, tf model.Timeframe, scheduled time.Time) {
	p.log.Info("analysis pass starting", "timeframe", string(tf))
	p.bus.Publish(events.Event{Type: events.EventAnalysisStarted, Data: map[string]interface{}{"timeframe": string(tf)}})

	mdCtx, cancel := context.WithTimeout(ctx, p.deadlines.MarketData)
	window, table, err := p.market.Pull(mdCtx, p.symbol, tf)
	cancel()
	if err != nil {
		p.failAnalysis(tf, err)
		return
	}

	analysis, err := p.advisorGW.Analyze(ctx, tf, window, table, time.Now().Add(p.deadlines.Advisor))
	if err != nil {
		p.failAnalysis(tf, err)
		return
	}

	previous, err := p.store.PutAnalysis(tf, analysis)
	if err != nil {
		p.failAnalysis(tf, err)
		return
	}

	data := map[string]interface{}{"timeframe": string(tf), "position_suggestion": string(analysis.TradingSignals.PositionSuggestion)}
	if previous != nil && previous.TradingSignals.PositionSuggestion != analysis.TradingSignals.PositionSuggestion {
		data["signal_flip"] = true
	}
	p.bus.Publish(events.Event{Type: events.EventAnalysisCompleted, Data: data})
}

// FireFinal is C1's TriggerFunc for the synthetic final pass: it runs
// the same analysis step against the four latest per-timeframe
// snapshots, then — unlike Fire — carries the result through C5/C6/C7.
func (p *pipeline) FireFinal(ctx context.Context, _ model.Timeframe, scheduled time.Time) {
	if _, err := p.RunFinal(ctx, scheduled, model.TriggerAuto); err != nil {
		p.log.Warn("final pass did not execute", "error", err.Error())
	}
}

// RunFinal is the full C4(final)→C5→C6→C7 pipeline, reusable by both
// the scheduler's post-4h trigger and the /trade command's manual
// override. finalMu keeps the two from ever running concurrently.
func (p *pipeline) RunFinal(ctx context.Context, scheduled time.Time, trigger model.Trigger) (model.TradeRecord, error) {
	p.finalMu.Lock()
	defer p.finalMu.Unlock()

	p.bus.Publish(events.Event{Type: events.EventAnalysisStarted, Data: map[string]interface{}{"timeframe": string(model.TimeframeFinal)}})

	snapshots := make(map[model.Timeframe]model.Analysis, len(model.SourceTimeframes))
	for _, tf := range model.SourceTimeframes {
		snap, err := p.store.GetLatest(tf)
		if err != nil || snap == nil {
			p.failAnalysis(model.TimeframeFinal, fmt.Errorf("missing %s snapshot for final pass", tf))
			return model.TradeRecord{}, fmt.Errorf("final pass: missing %s snapshot", tf)
		}
		snapshots[tf] = *snap
	}

	analysis, err := p.advisorGW.AnalyzeFinal(ctx, snapshots, time.Now().Add(p.deadlines.Advisor))
	if err != nil {
		p.failAnalysis(model.TimeframeFinal, err)
		return model.TradeRecord{}, err
	}

	if _, err := p.store.PutFinal(analysis, maxFinalSnapshotAge); err != nil {
		p.failAnalysis(model.TimeframeFinal, err)
		return model.TradeRecord{}, err
	}
	p.bus.Publish(events.Event{Type: events.EventAnalysisCompleted, Data: map[string]interface{}{
		"timeframe": string(model.TimeframeFinal), "position_suggestion": string(analysis.TradingSignals.PositionSuggestion),
	}})

	decision := p.policy.Evaluate(analysis, scheduled)
	if !decision.Admissible {
		p.bus.Publish(events.Event{Type: events.EventSignalRejected, Data: map[string]interface{}{"reason": decision.Reason}})
		return model.TradeRecord{}, nil
	}
	if decision.Signal.PositionSuggestion == model.SuggestHold {
		return model.TradeRecord{}, nil
	}

	exCtx, cancel := context.WithTimeout(ctx, p.deadlines.Exchange)
	defer cancel()
	equity, err := p.exch.GetBalance(exCtx)
	if err != nil {
		p.failAnalysis(model.TimeframeFinal, err)
		return model.TradeRecord{}, err
	}
	position, err := p.exch.GetPosition(exCtx, p.symbol)
	if err != nil {
		p.failAnalysis(model.TimeframeFinal, err)
		return model.TradeRecord{}, err
	}

	plan, err := p.reconciler.Reconcile(decision.Signal, position, equity)
	if err != nil {
		p.failAnalysis(model.TimeframeFinal, err)
		return model.TradeRecord{}, err
	}
	p.bus.Publish(events.Event{Type: events.EventPlanProduced, Data: map[string]interface{}{"actions": len(plan)}})
	if len(plan) == 0 {
		return model.TradeRecord{}, nil
	}

	record := p.executor.Execute(ctx, plan, decision.Signal, trigger)
	if err := p.store.AppendTrade(record); err != nil {
		p.log.Error("failed to append trade record to history", "error", err.Error())
	}
	if record.Succeeded() {
		p.policy.RecordTrade(scheduled)
	}
	return record, nil
}

func (p *pipeline) failAnalysis(tf model.Timeframe, err error) {
	p.log.Warn("analysis pass failed", "timeframe", string(tf), "error", err.Error())
	p.bus.Publish(events.Event{Type: events.EventAnalysisFailed, Data: map[string]interface{}{
		"timeframe": string(tf), "error": err.Error(),
	}})
}

// buildPipeline wires every core component from resolved config and
// credentials.
func buildPipeline(cfg *config.Config, exch *exchange.Client, advisorClient *advisor.Client, st *store.Store, bus *events.Bus, exec *executor.Executor) (*pipeline, error) {
	pol, err := policy.New(cfg.Bot, cfg.Bot.Timezone)
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}

	stepSize := decimalFromFloat(cfg.Bot.StepSize)
	minNotional := decimalFromFloat(cfg.Bot.MinNotional)

	return &pipeline{
		symbol:     cfg.Bot.Symbol,
		market:     marketdata.NewAdapter(exch),
		advisorGW:  advisor.NewGateway(advisorClient, cfg.Bot.Symbol),
		exch:       exch,
		store:      st,
		policy:     pol,
		reconciler: reconciler.New(stepSize, minNotional),
		executor:   exec,
		bus:        bus,
		log:        logging.WithComponent("pipeline"),
		deadlines:  defaultDeadlines(),
	}, nil
}
