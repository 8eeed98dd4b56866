// Package engine wires the gatekeeper, resolver, credit gate, dispatcher,
// and offline queue into the inbound-message control flow.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/billing"
	"github.com/hrygo/skyroute/dispatch"
	"github.com/hrygo/skyroute/gatekeeper"
	"github.com/hrygo/skyroute/llm"
	"github.com/hrygo/skyroute/metrics"
	"github.com/hrygo/skyroute/offline"
	"github.com/hrygo/skyroute/provider"
	"github.com/hrygo/skyroute/routing"
	"github.com/hrygo/skyroute/store"
)

// OutcomeKind says what happened to an inbound message.
type OutcomeKind string

const (
	// OutcomeAnsweredLocally means the on-device model answered; no
	// credits were touched.
	OutcomeAnsweredLocally OutcomeKind = "answered_locally"
	// OutcomeDispatched means a remote model completed the delegation.
	OutcomeDispatched OutcomeKind = "dispatched"
	// OutcomeQueued means the task waits in the offline queue.
	OutcomeQueued OutcomeKind = "queued"
	// OutcomeNeedsConfirmation means a charged platform-key call awaits
	// the user's explicit go-ahead.
	OutcomeNeedsConfirmation OutcomeKind = "needs_confirmation"
)

// Outcome is the result of handling one inbound message. Every branch
// either answers, queues for a later answer, or the call returns an
// explicit actionable error; nothing is dropped silently.
type Outcome struct {
	Kind       OutcomeKind
	Answer     string
	Decision   gatekeeper.RoutingDecision
	Delegation *store.Delegation
	QueuedTask *store.QueuedTask
	// EstimatedCost is set with Kind = OutcomeNeedsConfirmation.
	EstimatedCost int64
}

// Options tune per-message handling.
type Options struct {
	// History is prior conversation turns, oldest first.
	History []llm.Message
	// SensitiveOverride lets the user explicitly allow cloud processing
	// of content flagged sensitive.
	SensitiveOverride bool
	// SkipConfirmation dispatches charged platform-key calls without the
	// confirmation round trip.
	SkipConfirmation bool
}

// Config carries the engine's collaborators.
type Config struct {
	Classifier    *gatekeeper.Classifier
	Confirmations *gatekeeper.ConfirmStore
	Resolver      *routing.Resolver
	Gate          *billing.Gate
	Registry      *provider.Registry
	Dispatcher    *dispatch.Dispatcher
	Queue         *offline.Queue
	Monitor       *offline.Monitor
	Store         *store.Store
	// Metrics is optional.
	Metrics *metrics.Exporter
	// LocalAvailable probes the local model runtime; nil means "always
	// available".
	LocalAvailable func(ctx context.Context) bool
}

// Engine is the top-level request router.
type Engine struct {
	cfg Config
}

// New creates an engine. All collaborators except Metrics and
// LocalAvailable are required.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Classifier == nil, cfg.Resolver == nil, cfg.Gate == nil,
		cfg.Registry == nil, cfg.Dispatcher == nil, cfg.Queue == nil,
		cfg.Monitor == nil, cfg.Store == nil:
		return nil, errors.New("engine: missing required collaborator")
	}
	if cfg.Confirmations == nil {
		cfg.Confirmations = gatekeeper.NewConfirmStore()
	}
	e := &Engine{cfg: cfg}
	// A queue built without a dispatch callback replays through the engine,
	// sharing the live path's resolution and billing.
	cfg.Queue.SetDispatchFunc(e.ReplayDispatch)
	return e, nil
}

// HandleMessage routes one inbound message end to end.
func (e *Engine) HandleMessage(ctx context.Context, userID, message string, opts Options) (*Outcome, error) {
	decision := e.cfg.Classifier.Classify(ctx, message)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveRoutingDecision(string(decision.Category), string(decision.TargetLLM))
	}

	localUp := e.localAvailable(ctx)

	// Privacy hard stop: sensitive content never silently goes remote.
	if err := gatekeeper.EnforcePrivacy(decision, localUp, opts.SensitiveOverride); err != nil {
		return nil, err
	}

	// Simple requests are answered on-device; the only path that bypasses
	// the credit gate entirely.
	if decision.Category == gatekeeper.CategorySimple {
		return e.answerLocally(ctx, decision, opts.History, message)
	}
	if decision.Sensitive && !opts.SensitiveOverride {
		return e.answerLocally(ctx, decision, opts.History, message)
	}

	draft := e.cfg.Classifier.PrepareDelegation(ctx,
		append(append([]llm.Message{}, opts.History...), llm.UserMessage(message)),
		string(decision.Category))

	// Offline: queue for replay instead of failing the request. Credits
	// stay untouched until a dispatch actually succeeds.
	if !e.cfg.Monitor.Online() {
		task, err := e.cfg.Queue.Enqueue(ctx, userID, message, draft)
		if err != nil {
			return nil, errors.Wrap(err, "queue task while offline")
		}
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.ObserveQueued()
		}
		return &Outcome{Kind: OutcomeQueued, Decision: decision, QueuedTask: task}, nil
	}

	hasCredits := e.cfg.Gate.HasCredits(ctx, userID)
	resolved, err := e.cfg.Resolver.Resolve(ctx, userID, hasCredits)
	if err != nil {
		e.observeResolveFailure(ctx, userID)
		// Configuration errors reach the user verbatim with next steps.
		return nil, err
	}

	spec, ok := e.cfg.Registry.FindModel(resolved.Provider, resolved.Model)
	if !ok {
		return nil, errors.Errorf("resolved model %s/%s is not in the catalog", resolved.Provider, resolved.Model)
	}

	if resolved.UsingPlatformKey && !resolved.IsFree {
		afford, err := e.affordCharged(ctx, userID, spec, resolved)
		if err != nil {
			return nil, err
		}
		// Charged platform-key calls ask the user first, once per 5 minutes.
		if !opts.SkipConfirmation {
			if _, confirmed := e.cfg.Confirmations.Take(userID); !confirmed {
				e.cfg.Confirmations.Put(userID, message, decision)
				return &Outcome{
					Kind:          OutcomeNeedsConfirmation,
					Decision:      decision,
					EstimatedCost: afford.EstimatedCost,
				}, nil
			}
		}
	}

	delegation := dispatch.NewDelegation(userID, message, draft)
	if _, err := e.cfg.Store.CreateDelegation(ctx, delegation); err != nil {
		return nil, errors.Wrap(err, "persist delegation")
	}

	start := time.Now()
	completed, stats, err := e.cfg.Dispatcher.Dispatch(ctx, delegation, resolved)
	if e.cfg.Metrics != nil {
		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		e.cfg.Metrics.ObserveDispatch(resolved.Provider, resolved.Model, outcome, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	e.settle(ctx, userID, spec, resolved, stats)

	return &Outcome{
		Kind:       OutcomeDispatched,
		Answer:     completed.Result,
		Decision:   decision,
		Delegation: completed,
	}, nil
}

// ReplayDispatch resolves and dispatches a delegation rebuilt from the
// offline queue, billing it exactly like a live dispatch. Installed as the
// queue's dispatch callback so replayed and live paths cannot diverge. The
// returned bool reports whether the delegation reached a terminal state.
func (e *Engine) ReplayDispatch(ctx context.Context, delegation *store.Delegation) (bool, error) {
	userID := delegation.UserID
	resolved, err := e.cfg.Resolver.Resolve(ctx, userID, e.cfg.Gate.HasCredits(ctx, userID))
	if err != nil {
		e.observeResolveFailure(ctx, userID)
		return false, err
	}

	spec, ok := e.cfg.Registry.FindModel(resolved.Provider, resolved.Model)
	if !ok {
		return false, errors.Errorf("resolved model %s/%s is not in the catalog", resolved.Provider, resolved.Model)
	}

	if resolved.UsingPlatformKey && !resolved.IsFree {
		if _, err := e.affordCharged(ctx, userID, spec, resolved); err != nil {
			return false, err
		}
	}

	start := time.Now()
	_, stats, err := e.cfg.Dispatcher.Dispatch(ctx, delegation, resolved)
	if e.cfg.Metrics != nil {
		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		e.cfg.Metrics.ObserveDispatch(resolved.Provider, resolved.Model, outcome, time.Since(start))
	}
	if err != nil {
		// A failed remote call lands the record in failed, which is
		// terminal; a lost claim or a store error does not.
		current, gerr := e.cfg.Store.GetDelegation(ctx, delegation.ID)
		if gerr != nil || current == nil {
			return false, err
		}
		return current.Status.Terminal(), err
	}

	e.settle(ctx, userID, spec, resolved, stats)
	return true, nil
}

// DrainQueue replays the offline queue; registered as the monitor's
// recovery hook.
func (e *Engine) DrainQueue(ctx context.Context) {
	if err := e.cfg.Queue.DrainOnRecovery(ctx); err != nil {
		slog.Warn("engine: queue drain incomplete", "error", err)
	}
}

// affordCharged enforces the credit gate for a charged platform-key call.
// HasCredits only requires a positive balance, so the estimate here is what
// actually stops work the user cannot pay for from being dispatched.
func (e *Engine) affordCharged(ctx context.Context, userID string, spec provider.ModelSpec, resolved routing.ResolvedModel) (billing.Affordability, error) {
	afford, err := e.cfg.Gate.CheckAffordability(ctx, userID, spec, false)
	if err != nil {
		return billing.Affordability{}, errors.Wrap(err, "affordability check")
	}
	if !afford.Allowed {
		return billing.Affordability{}, errors.Wrapf(billing.ErrInsufficientCredits,
			"%s/%s needs an estimated %d credits but only %d remain; top up credits or register your own API key",
			resolved.Provider, resolved.Model, afford.EstimatedCost, afford.RemainingCredits)
	}
	return afford, nil
}

// settle charges actual usage after a successful dispatch. Cost accounting
// never blocks the already-generated answer.
func (e *Engine) settle(ctx context.Context, userID string, spec provider.ModelSpec, resolved routing.ResolvedModel, stats *llm.CallStats) {
	if !resolved.UsingPlatformKey || resolved.IsFree || stats == nil {
		return
	}
	result := e.cfg.Gate.Deduct(ctx, userID, spec, stats.PromptTokens, stats.CompletionTokens, true)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveCreditsSpent(resolved.Provider, resolved.Model, result.Cost)
		if result.Degraded {
			e.cfg.Metrics.ObserveLedgerOutage()
		}
	}
}

func (e *Engine) observeResolveFailure(ctx context.Context, userID string) {
	if e.cfg.Metrics == nil {
		return
	}
	mode := routing.ModeCostEffective
	if p, err := e.cfg.Store.GetProfile(ctx, userID); err == nil {
		mode = p.Mode
	}
	e.cfg.Metrics.ObserveResolveFailure(string(mode))
}

func (e *Engine) answerLocally(ctx context.Context, decision gatekeeper.RoutingDecision, history []llm.Message, message string) (*Outcome, error) {
	answer, err := e.cfg.Classifier.AnswerLocally(ctx, history, message)
	if err != nil {
		return nil, errors.Wrap(err, "local answer")
	}
	return &Outcome{Kind: OutcomeAnsweredLocally, Answer: answer, Decision: decision}, nil
}

func (e *Engine) localAvailable(ctx context.Context) bool {
	if e.cfg.LocalAvailable == nil {
		return true
	}
	return e.cfg.LocalAvailable(ctx)
}
