// Package billing implements credit cost estimation and the gate in front of
// the external persistent credit ledger.
package billing

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Ledger is the external persistent credit ledger. Implementations own
// durability and must make Deduct/Add atomic per account.
type Ledger interface {
	// Balance returns the current credit balance for the user.
	Balance(ctx context.Context, userID string) (int64, error)

	// Deduct atomically subtracts amount and returns the new balance.
	// The balance never goes below zero; deducting more than the balance
	// is an error and leaves the account untouched.
	Deduct(ctx context.Context, userID string, amount int64) (int64, error)

	// Add atomically adds amount and returns the new balance.
	Add(ctx context.Context, userID string, amount int64) (int64, error)
}

// ErrInsufficientCredits is returned by Deduct when the balance cannot
// cover the requested amount.
var ErrInsufficientCredits = errors.New("insufficient credits")

// MemoryLedger is an in-process Ledger for tests and single-node dev mode.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int64)}
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *MemoryLedger) Deduct(_ context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errors.New("negative deduction")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.balances[userID]
	if cur < amount {
		return cur, errors.Wrapf(ErrInsufficientCredits, "balance %d, requested %d", cur, amount)
	}
	l.balances[userID] = cur - amount
	return cur - amount, nil
}

func (l *MemoryLedger) Add(_ context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errors.New("negative credit")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return l.balances[userID], nil
}
