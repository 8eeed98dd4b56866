package offline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/skyroute/dispatch"
	"github.com/hrygo/skyroute/gatekeeper"
	"github.com/hrygo/skyroute/notify"
	"github.com/hrygo/skyroute/store"
)

// QueueStore is the persistence surface the queue needs. *store.Store
// satisfies it.
type QueueStore interface {
	UpsertQueuedTask(ctx context.Context, task *store.QueuedTask) (*store.QueuedTask, bool, error)
	ListQueuedTasks(ctx context.Context, userID string) ([]*store.QueuedTask, error)
	DeleteQueuedTask(ctx context.Context, id string) error
	ClearQueuedTasks(ctx context.Context, userID string) (int64, error)
	CreateDelegation(ctx context.Context, create *store.Delegation) (*store.Delegation, error)
}

// DispatchFunc executes a rebuilt delegation. terminal reports whether the
// delegation reached a terminal state (completed or failed); a queued task
// is only removed after a terminal result, so a crash between dispatch and
// dequeue causes at most one duplicated re-dispatch, collapsed again by the
// dedup key.
type DispatchFunc func(ctx context.Context, delegation *store.Delegation) (terminal bool, err error)

// QueueMetrics receives queue gauge and drain observations.
// *metrics.Exporter satisfies it.
type QueueMetrics interface {
	SetQueueDepth(depth int)
	ObserveDrained()
}

// Queue is the durable offline queue, keyed by the dedup key of
// (userMessage, taskDescription).
type Queue struct {
	store    QueueStore
	notifier notify.Notifier
	dispatch DispatchFunc
	metrics  QueueMetrics

	mu              sync.Mutex
	episodeNotified bool
}

// NewQueue creates a queue. dispatch is invoked per task during recovery; a
// nil dispatch must be installed with SetDispatchFunc before the first
// drain.
func NewQueue(s QueueStore, notifier notify.Notifier, dispatchFn DispatchFunc) *Queue {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Queue{store: s, notifier: notifier, dispatch: dispatchFn}
}

// SetDispatchFunc installs the recovery dispatch callback when none was
// given at construction. A callback passed to NewQueue wins.
func (q *Queue) SetDispatchFunc(fn DispatchFunc) {
	if q.dispatch == nil {
		q.dispatch = fn
	}
}

// SetMetrics installs the queue gauges. Call before Start-time traffic.
func (q *Queue) SetMetrics(m QueueMetrics) {
	q.metrics = m
}

// Enqueue stores a task for later dispatch. A task with the same dedup key
// collapses into the existing entry (duplicate count bumped, longer context
// summary kept). The first enqueue of an offline episode additionally emits
// an offline_detected notification.
func (q *Queue) Enqueue(ctx context.Context, userID, userMessage string, draft *gatekeeper.DelegationDraft) (*store.QueuedTask, error) {
	task := &store.QueuedTask{
		ID:              shortuuid.New(),
		UserID:          userID,
		UserMessage:     userMessage,
		ContextSummary:  draft.ContextSummary,
		TaskDescription: draft.TaskDescription,
		Strategy:        draft.Strategy,
		DedupKey:        store.DedupKey(userMessage, draft.TaskDescription),
	}

	stored, created, err := q.store.UpsertQueuedTask(ctx, task)
	if err != nil {
		return nil, errors.Wrap(err, "enqueue task")
	}
	q.updateDepth(ctx)

	q.mu.Lock()
	firstOfEpisode := !q.episodeNotified
	q.episodeNotified = true
	q.mu.Unlock()

	if firstOfEpisode {
		q.notifier.Notify(ctx, notify.Notification{
			Type:     notify.TypeOfflineDetected,
			Channels: []notify.Channel{notify.ChannelPopup, notify.ChannelPush},
			Title:    "You are offline",
			Body:     "Requests will be queued and sent when the connection returns.",
			UserID:   userID,
		})
	}
	if created {
		q.notifier.Notify(ctx, notify.Notification{
			Type:     notify.TypeTaskQueued,
			Channels: []notify.Channel{notify.ChannelPopup, notify.ChannelChat},
			Title:    "Task queued",
			Body:     stored.TaskDescription,
			TaskID:   stored.ID,
			UserID:   userID,
		})
		slog.Info("offline: task queued", "task_id", stored.ID, "user_id", userID)
	} else {
		slog.Debug("offline: duplicate task collapsed",
			"task_id", stored.ID,
			"duplicate_count", stored.DuplicateCount)
	}
	return stored, nil
}

// DrainOnRecovery replays the queue after a false->true connectivity
// transition. Tasks are deduplicated once more before replay, then processed
// sequentially per user (predictable notification order) with different
// users' queues draining concurrently. A task leaves the queue only after a
// terminal dispatch result.
func (q *Queue) DrainOnRecovery(ctx context.Context) error {
	q.mu.Lock()
	q.episodeNotified = false
	q.mu.Unlock()

	tasks, err := q.store.ListQueuedTasks(ctx, "")
	if err != nil {
		return errors.Wrap(err, "list queued tasks")
	}
	if len(tasks) == 0 {
		return nil
	}

	q.notifier.Notify(ctx, notify.Notification{
		Type:     notify.TypeOnlineRecovered,
		Channels: []notify.Channel{notify.ChannelPopup},
		Title:    "Back online",
		Body:     "Sending queued tasks now.",
	})

	// Defensive dedup: the unique index already guarantees one row per
	// key, but a concurrent enqueue during listing could still slip in.
	byUser := make(map[string][]*store.QueuedTask)
	seen := make(map[string]bool)
	for _, task := range tasks {
		if seen[task.DedupKey] {
			if err := q.store.DeleteQueuedTask(ctx, task.ID); err != nil {
				slog.Warn("offline: failed to drop duplicate task", "task_id", task.ID, "error", err)
			}
			continue
		}
		seen[task.DedupKey] = true
		byUser[task.UserID] = append(byUser[task.UserID], task)
	}

	slog.Info("offline: draining queue", "tasks", len(seen), "users", len(byUser))

	g, gctx := errgroup.WithContext(ctx)
	for _, userTasks := range byUser {
		userTasks := userTasks
		g.Go(func() error {
			for _, task := range userTasks {
				if err := q.replay(gctx, task); err != nil {
					return err
				}
			}
			return nil
		})
	}
	drainErr := g.Wait()
	q.updateDepth(ctx)
	return drainErr
}

// replay rebuilds a delegation from a queued task and dispatches it.
func (q *Queue) replay(ctx context.Context, task *store.QueuedTask) error {
	if q.dispatch == nil {
		return errors.New("no dispatch callback installed")
	}
	delegation := dispatch.NewDelegation(task.UserID, task.UserMessage, &gatekeeper.DelegationDraft{
		ContextSummary:  task.ContextSummary,
		TaskDescription: task.TaskDescription,
		Strategy:        task.Strategy,
	})
	if _, err := q.store.CreateDelegation(ctx, delegation); err != nil {
		return errors.Wrap(err, "create delegation for queued task")
	}

	terminal, err := q.dispatch(ctx, delegation)
	if err != nil {
		slog.Warn("offline: queued task dispatch failed",
			"task_id", task.ID,
			"delegation_id", delegation.ID,
			"terminal", terminal,
			"error", err)
	}
	if !terminal {
		// Connectivity was lost again mid-drain; keep the task for the
		// next recovery cycle.
		if err == nil {
			err = errors.New("dispatch did not reach a terminal state")
		}
		return errors.Wrap(err, "keeping task for next recovery")
	}

	if err := q.store.DeleteQueuedTask(ctx, task.ID); err != nil {
		// The next recovery cycle re-dispatches once; the dedup key
		// bounds the duplication to one logical task.
		return errors.Wrap(err, "dequeue after dispatch")
	}
	if q.metrics != nil {
		q.metrics.ObserveDrained()
	}
	slog.Info("offline: queued task replayed", "task_id", task.ID, "delegation_id", delegation.ID)
	return nil
}

// updateDepth refreshes the queue-depth gauge from the store.
func (q *Queue) updateDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	tasks, err := q.store.ListQueuedTasks(ctx, "")
	if err != nil {
		return
	}
	q.metrics.SetQueueDepth(len(tasks))
}

// Clear drops all queued tasks for a user ("" clears the whole queue).
func (q *Queue) Clear(ctx context.Context, userID string) (int64, error) {
	return q.store.ClearQueuedTasks(ctx, userID)
}
