package billing

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/hrygo/skyroute/provider"
)

const (
	// LongContextThreshold is the total token count above which premium
	// rates apply to the entire call, not just the overage.
	LongContextThreshold = 200_000

	// PlatformMarkup multiplies the cost of calls made with an
	// operator-owned key on the user's behalf.
	PlatformMarkup = 2

	// Default token estimates for affordability checks, before the real
	// prompt is known. Deliberately generous on output.
	defaultEstInputTokens  = 4_000
	defaultEstOutputTokens = 2_000
)

// Gate sits between routing/dispatch and the external credit ledger.
// Ledger failures degrade cost accuracy but never block an answer.
type Gate struct {
	ledger Ledger
}

// NewGate creates a credit gate over the given ledger.
func NewGate(ledger Ledger) *Gate {
	return &Gate{ledger: ledger}
}

// Affordability is the result of a pre-call credit check.
type Affordability struct {
	Allowed          bool
	EstimatedCost    int64
	RemainingCredits int64
}

// DeductResult is the outcome of a post-call deduction.
type DeductResult struct {
	NewBalance int64
	Cost       int64
	// Degraded is set when the ledger was unreachable and Cost is a
	// local estimate that was never durably applied.
	Degraded bool
	// Insufficient is set when the ledger was healthy but refused the
	// charge for lack of funds; the balance is left untouched.
	Insufficient bool
}

// EstimateCost computes the credit cost for a call against the given model.
// Long-context calls (input+output above LongContextThreshold) are priced at
// the model's premium rates for the whole call when the model defines them.
// Platform-key calls carry a fixed markup. The result is rounded up, with a
// minimum charge of 1 credit whenever the raw cost is positive.
func EstimateCost(model provider.ModelSpec, inputTokens, outputTokens int, usingPlatformKey bool) int64 {
	inRate, outRate := model.InputPer1M, model.OutputPer1M
	if inputTokens+outputTokens > LongContextThreshold && model.PremiumInputPer1M > 0 {
		inRate, outRate = model.PremiumInputPer1M, model.PremiumOutputPer1M
	}

	raw := float64(inputTokens)*inRate/1e6 + float64(outputTokens)*outRate/1e6
	if usingPlatformKey {
		raw *= PlatformMarkup
	}
	if raw <= 0 {
		return 0
	}

	cost := int64(math.Ceil(raw))
	if cost < 1 {
		cost = 1
	}
	return cost
}

// CheckAffordability reports whether the user can afford a call against the
// model. Calls made with the user's own key cost nothing and are always
// allowed.
func (g *Gate) CheckAffordability(ctx context.Context, userID string, model provider.ModelSpec, hasUserKey bool) (Affordability, error) {
	balance, err := g.ledger.Balance(ctx, userID)
	if err != nil {
		slog.Warn("billing: ledger balance lookup failed, assuming zero", "user_id", userID, "error", err)
		balance = 0
	}

	if hasUserKey {
		return Affordability{Allowed: true, EstimatedCost: 0, RemainingCredits: balance}, nil
	}

	est := EstimateCost(model, defaultEstInputTokens, defaultEstOutputTokens, true)
	return Affordability{
		Allowed:          balance >= est,
		EstimatedCost:    est,
		RemainingCredits: balance,
	}, nil
}

// Deduct charges the user for a completed call using actual token counts.
// Ledger unavailability is a non-critical-path failure: the answer has
// already been generated, so the gate logs a warning and returns a local
// estimate instead of blocking delivery. A refusal for lack of funds is
// reported via Insufficient, not treated as an outage.
func (g *Gate) Deduct(ctx context.Context, userID string, model provider.ModelSpec, actualInputTokens, actualOutputTokens int, usingPlatformKey bool) DeductResult {
	cost := EstimateCost(model, actualInputTokens, actualOutputTokens, usingPlatformKey)
	if cost == 0 {
		balance, err := g.ledger.Balance(ctx, userID)
		if err != nil {
			return DeductResult{NewBalance: -1, Cost: 0, Degraded: true}
		}
		return DeductResult{NewBalance: balance, Cost: 0}
	}

	newBalance, err := g.ledger.Deduct(ctx, userID, cost)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			slog.Warn("billing: balance cannot cover actual cost, charge not applied",
				"user_id", userID,
				"model", model.ID,
				"cost", cost,
				"balance", newBalance)
			return DeductResult{NewBalance: newBalance, Cost: cost, Insufficient: true}
		}
		slog.Warn("billing: ledger deduction failed, cost accounting degraded",
			"user_id", userID,
			"model", model.ID,
			"cost", cost,
			"error", err)
		return DeductResult{NewBalance: -1, Cost: cost, Degraded: true}
	}

	slog.Debug("billing: credits deducted",
		"user_id", userID,
		"model", model.ID,
		"cost", cost,
		"new_balance", newBalance)
	return DeductResult{NewBalance: newBalance, Cost: cost}
}

// HasCredits reports whether the user has any positive balance.
func (g *Gate) HasCredits(ctx context.Context, userID string) bool {
	balance, err := g.ledger.Balance(ctx, userID)
	if err != nil {
		slog.Warn("billing: ledger balance lookup failed", "user_id", userID, "error", err)
		return false
	}
	return balance > 0
}
