package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"btc-advisor-bot/internal/coreerrors"
	"btc-advisor-bot/internal/logging"
	"btc-advisor-bot/internal/marketdata"
	"btc-advisor-bot/internal/model"
)

// Completer is the subset of Client Gateway depends on, narrowed to an
// interface so tests can supply a fake transport.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Gateway turns one timeframe's market data into a validated
// model.Analysis, calling Completer.Complete and re-parsing/validating
// its reply the same defensive way the teacher's analyzer.go re-parses
// LLM JSON — but against this system's single schema instead of the
// teacher's many analysis-type structs, and with exactly one
// re-prompt-on-rejection attempt (spec.md §4.4) instead of the
// teacher's unlimited ad hoc retries.
type Gateway struct {
	client Completer
	symbol string
	log    *logging.Logger
}

// NewGateway builds a Gateway over client for symbol.
func NewGateway(client Completer, symbol string) *Gateway {
	return &Gateway{client: client, symbol: symbol, log: logging.WithComponent("advisor")}
}

// Analyze produces a validated Analysis for tf, or
// coreerrors.ErrAdvisorRejected if the reply is still invalid after one
// re-prompt, or coreerrors.ErrTransientAdvisor if the transport call
// still fails after its single retry.
func (g *Gateway) Analyze(ctx context.Context, tf model.Timeframe, window model.OhlcvWindow, table marketdata.IndicatorTable, deadline time.Time) (model.Analysis, error) {
	ctx, cancel := deadlineContext(ctx, deadline)
	defer cancel()

	userPrompt := BuildUserPrompt(g.symbol, tf, window, table)

	analysis, rejection := g.attemptWithTransientRetry(ctx, userPrompt)
	if rejection == nil {
		return analysis, nil
	}
	if coreerrors.IsTransient(rejection) {
		return model.Analysis{}, rejection
	}

	g.log.Warn("advisor reply rejected, re-prompting once", "timeframe", string(tf), "reason", rejection.Error())
	analysis, rejection2 := g.attemptWithTransientRetry(ctx, retryFeedback(userPrompt, rejection))
	if rejection2 == nil {
		return analysis, nil
	}
	if coreerrors.IsTransient(rejection2) {
		return model.Analysis{}, rejection2
	}
	return model.Analysis{}, fmt.Errorf("%w: %v", coreerrors.ErrAdvisorRejected, rejection2)
}

// AnalyzeFinal produces the synthetic "final" combined Analysis from
// the four latest per-timeframe snapshots (spec.md §3, §4.1): the
// scheduler enqueues this after every 4h pass returns, and this
// method itself re-validates that all four of model.SourceTimeframes
// are present — the SPEC_FULL.md §9 open-question resolution mandates
// skipping the pass entirely rather than running it partially warmed.
func (g *Gateway) AnalyzeFinal(ctx context.Context, snapshots map[model.Timeframe]model.Analysis, deadline time.Time) (model.Analysis, error) {
	for _, tf := range model.SourceTimeframes {
		if _, ok := snapshots[tf]; !ok {
			return model.Analysis{}, fmt.Errorf("%w: final pass missing %s snapshot", coreerrors.ErrMarketDataUnavailable, tf)
		}
	}

	ctx, cancel := deadlineContext(ctx, deadline)
	defer cancel()

	userPrompt := BuildFinalUserPrompt(g.symbol, snapshots)

	analysis, rejection := g.attemptWithTransientRetry(ctx, userPrompt)
	if rejection == nil {
		return analysis, nil
	}
	if coreerrors.IsTransient(rejection) {
		return model.Analysis{}, rejection
	}

	g.log.Warn("advisor final-pass reply rejected, re-prompting once", "reason", rejection.Error())
	analysis, rejection2 := g.attemptWithTransientRetry(ctx, retryFeedback(userPrompt, rejection))
	if rejection2 == nil {
		return analysis, nil
	}
	if coreerrors.IsTransient(rejection2) {
		return model.Analysis{}, rejection2
	}
	return model.Analysis{}, fmt.Errorf("%w: %v", coreerrors.ErrAdvisorRejected, rejection2)
}

// attemptWithTransientRetry runs attempt, and if the transport itself
// failed (not a parse/validation rejection), retries the same prompt
// exactly once before giving up — spec.md §4.4's "timeouts are retried
// once" on top of attempt's own rejection-vs-transient split.
func (g *Gateway) attemptWithTransientRetry(ctx context.Context, userPrompt string) (model.Analysis, error) {
	analysis, err := g.attempt(ctx, userPrompt)
	if err == nil || !coreerrors.IsTransient(err) {
		return analysis, err
	}
	g.log.Warn("advisor call timed out, retrying once", "reason", err.Error())
	return g.attempt(ctx, userPrompt)
}

// attempt runs one Complete-parse-validate cycle. A transport failure
// is wrapped as transient; a parse or Validate failure is returned
// unwrapped so the caller can decide whether to re-prompt.
func (g *Gateway) attempt(ctx context.Context, userPrompt string) (model.Analysis, error) {
	reply, err := g.client.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("%w: %v", coreerrors.ErrTransientAdvisor, err)
	}

	cleaned := stripMarkdownCodeBlock(reply)
	var analysis model.Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return model.Analysis{}, fmt.Errorf("parse advisor reply: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return model.Analysis{}, fmt.Errorf("validate advisor reply: %w", err)
	}
	return analysis, nil
}
