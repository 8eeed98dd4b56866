// Package store provides durable persistence for delegations, the offline
// queue, and user routing profiles behind a driver abstraction.
package store

import (
	"context"
	"time"

	"github.com/hrygo/skyroute/routing"
)

// Driver is the database-specific implementation surface.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateDelegation(ctx context.Context, create *Delegation) (*Delegation, error)
	GetDelegation(ctx context.Context, id string) (*Delegation, error)
	ListDelegations(ctx context.Context, find *FindDelegation) ([]*Delegation, error)
	// UpdateDelegationStatus performs a compare-and-swap on status so that
	// two workers can never both own the same transition. Returns false
	// when the record is not in the expected from state.
	UpdateDelegationStatus(ctx context.Context, id string, from, to DelegationStatus, result string) (bool, error)
	// DeleteTerminalDelegationsBefore removes completed/failed delegations
	// last updated before cutoff.
	DeleteTerminalDelegationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// FailStaleDispatching marks dispatching records older than cutoff as
	// failed; a crash mid-dispatch leaves exactly such records behind.
	FailStaleDispatching(ctx context.Context, cutoff time.Time) (int64, error)

	UpsertQueuedTask(ctx context.Context, task *QueuedTask) (*QueuedTask, bool, error)
	ListQueuedTasks(ctx context.Context, userID string) ([]*QueuedTask, error)
	DeleteQueuedTask(ctx context.Context, id string) error
	ClearQueuedTasks(ctx context.Context, userID string) (int64, error)

	GetRoutingProfile(ctx context.Context, userID string) (*routing.UserRoutingProfile, error)
	UpsertRoutingProfile(ctx context.Context, profile *routing.UserRoutingProfile) error
}

// Store provides access to all persisted objects.
type Store struct {
	driver Driver
}

// New creates a new Store over the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate applies schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateDelegation(ctx context.Context, create *Delegation) (*Delegation, error) {
	return s.driver.CreateDelegation(ctx, create)
}

func (s *Store) GetDelegation(ctx context.Context, id string) (*Delegation, error) {
	return s.driver.GetDelegation(ctx, id)
}

func (s *Store) ListDelegations(ctx context.Context, find *FindDelegation) ([]*Delegation, error) {
	return s.driver.ListDelegations(ctx, find)
}

func (s *Store) UpdateDelegationStatus(ctx context.Context, id string, from, to DelegationStatus, result string) (bool, error) {
	return s.driver.UpdateDelegationStatus(ctx, id, from, to, result)
}

func (s *Store) DeleteTerminalDelegationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.driver.DeleteTerminalDelegationsBefore(ctx, cutoff)
}

func (s *Store) FailStaleDispatching(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.driver.FailStaleDispatching(ctx, cutoff)
}

func (s *Store) UpsertQueuedTask(ctx context.Context, task *QueuedTask) (*QueuedTask, bool, error) {
	return s.driver.UpsertQueuedTask(ctx, task)
}

func (s *Store) ListQueuedTasks(ctx context.Context, userID string) ([]*QueuedTask, error) {
	return s.driver.ListQueuedTasks(ctx, userID)
}

func (s *Store) DeleteQueuedTask(ctx context.Context, id string) error {
	return s.driver.DeleteQueuedTask(ctx, id)
}

func (s *Store) ClearQueuedTasks(ctx context.Context, userID string) (int64, error) {
	return s.driver.ClearQueuedTasks(ctx, userID)
}

// GetProfile implements routing.ProfileStore. A user who never saved a
// profile gets the cost_effective default.
func (s *Store) GetProfile(ctx context.Context, userID string) (*routing.UserRoutingProfile, error) {
	profile, err := s.driver.GetRoutingProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return &routing.UserRoutingProfile{
			UserID:       userID,
			Mode:         routing.ModeCostEffective,
			APIKeys:      map[string]string{},
			AutoFallback: true,
		}, nil
	}
	return profile, nil
}

// UpsertProfile implements routing.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, profile *routing.UserRoutingProfile) error {
	return s.driver.UpsertRoutingProfile(ctx, profile)
}

var _ routing.ProfileStore = (*Store)(nil)
