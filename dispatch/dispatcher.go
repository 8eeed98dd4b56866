// Package dispatch turns a prepared delegation into a remote model call and
// drives the delegation state machine.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/skyroute/gatekeeper"
	"github.com/hrygo/skyroute/llm"
	"github.com/hrygo/skyroute/notify"
	"github.com/hrygo/skyroute/routing"
	"github.com/hrygo/skyroute/store"
)

// DispatchTimeout is the hard ceiling on a single remote call. A dispatch
// exceeding it is failed and becomes eligible for retry by the queue layer.
const DispatchTimeout = 30 * time.Second

// DelegationStore is the persistence surface the dispatcher needs.
// *store.Store satisfies it.
type DelegationStore interface {
	CreateDelegation(ctx context.Context, create *store.Delegation) (*store.Delegation, error)
	GetDelegation(ctx context.Context, id string) (*store.Delegation, error)
	UpdateDelegationStatus(ctx context.Context, id string, from, to store.DelegationStatus, result string) (bool, error)
}

// ErrNotOwned is returned when a delegation is not in the pending state at
// dispatch time; another worker already owns it.
var ErrNotOwned = errors.New("delegation is not pending; another dispatch owns it")

// Dispatcher executes delegations against resolved remote models. It does
// not retry: the offline queue layer is the retry authority.
type Dispatcher struct {
	store    DelegationStore
	notifier notify.Notifier
	factory  llm.Factory
}

// NewDispatcher creates a dispatcher. A nil factory uses llm.NewService.
func NewDispatcher(s DelegationStore, notifier notify.Notifier, factory llm.Factory) *Dispatcher {
	if factory == nil {
		factory = llm.NewService
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Dispatcher{store: s, notifier: notifier, factory: factory}
}

// NewDelegation builds a pending delegation record from a gatekeeper draft.
func NewDelegation(userID, userMessage string, draft *gatekeeper.DelegationDraft) *store.Delegation {
	d := &store.Delegation{
		ID:                uuid.NewString(),
		UserID:            userID,
		CreatedAt:         time.Now(),
		Strategy:          draft.Strategy,
		ContextSummary:    draft.ContextSummary,
		TaskDescription:   draft.TaskDescription,
		SuggestedQuestion: draft.SuggestedQuestion,
		UserMessage:       userMessage,
		Status:            store.DelegationPending,
	}
	d.CloudInstruction = BuildCloudInstruction(d)
	return d
}

// Dispatch runs one delegation against the resolved model.
//
// The pending->dispatching transition is written before the network call so
// a crash mid-call never silently loses the attempt; the stale-dispatch
// sweep later regresses such records to failed. Both terminal transitions
// use compare-and-swap, so a racing sweep and a slow success can never both
// win.
func (d *Dispatcher) Dispatch(ctx context.Context, delegation *store.Delegation, resolved routing.ResolvedModel) (*store.Delegation, *llm.CallStats, error) {
	owned, err := d.store.UpdateDelegationStatus(ctx, delegation.ID, store.DelegationPending, store.DelegationDispatching, "")
	if err != nil {
		return nil, nil, errors.Wrap(err, "claim delegation")
	}
	if !owned {
		return nil, nil, errors.Wrapf(ErrNotOwned, "delegation %s", delegation.ID)
	}

	slog.Info("dispatch: delegation dispatching",
		"delegation_id", delegation.ID,
		"user_id", delegation.UserID,
		"provider", resolved.Provider,
		"model", resolved.Model)

	content, stats, callErr := d.call(ctx, delegation, resolved)
	if callErr != nil {
		if _, err := d.store.UpdateDelegationStatus(ctx, delegation.ID, store.DelegationDispatching, store.DelegationFailed, callErr.Error()); err != nil {
			slog.Error("dispatch: failed to record failure", "delegation_id", delegation.ID, "error", err)
		}
		slog.Warn("dispatch: delegation failed",
			"delegation_id", delegation.ID,
			"provider", resolved.Provider,
			"model", resolved.Model,
			"error", callErr)
		return nil, nil, errors.Wrap(callErr, "dispatch delegation")
	}

	completed, err := d.store.UpdateDelegationStatus(ctx, delegation.ID, store.DelegationDispatching, store.DelegationCompleted, content)
	if err != nil {
		return nil, nil, errors.Wrap(err, "record completion")
	}
	if !completed {
		// The stale sweep already failed this record; the result is kept
		// anyway by re-reading, but the queue will treat it as failed.
		slog.Warn("dispatch: completion lost the status race", "delegation_id", delegation.ID)
	}

	d.notifier.Notify(ctx, notify.Notification{
		Type:     notify.TypeTaskDispatched,
		Channels: []notify.Channel{notify.ChannelPopup, notify.ChannelChat},
		Title:    "Task completed",
		Body:     delegation.TaskDescription,
		TaskID:   delegation.ID,
		UserID:   delegation.UserID,
	})

	updated, err := d.store.GetDelegation(ctx, delegation.ID)
	if err != nil {
		return nil, stats, errors.Wrap(err, "reload delegation")
	}
	return updated, stats, nil
}

func (d *Dispatcher) call(ctx context.Context, delegation *store.Delegation, resolved routing.ResolvedModel) (string, *llm.CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, DispatchTimeout)
	defer cancel()

	svc, err := d.factory(&llm.Config{
		Provider: resolved.Provider,
		Model:    resolved.Model,
		APIKey:   resolved.APIKey,
	})
	if err != nil {
		return "", nil, errors.Wrap(err, "build provider client")
	}

	instruction := delegation.CloudInstruction
	if instruction == "" {
		instruction = BuildCloudInstruction(delegation)
	}

	return svc.Chat(ctx, []llm.Message{
		llm.SystemPrompt(instruction),
		llm.UserMessage(delegation.UserMessage),
	})
}
