// Package notify defines the notification sink consumed by the offline
// queue and the dispatcher. Delivery is best-effort and fire-and-forget per
// channel.
package notify

import (
	"context"
	"log/slog"
)

// Type identifies the notification event.
type Type string

const (
	TypeOfflineDetected Type = "offline_detected"
	TypeTaskQueued      Type = "task_queued"
	TypeOnlineRecovered Type = "online_recovered"
	TypeTaskDispatched  Type = "task_dispatched"
)

// Channel is a delivery channel.
type Channel string

const (
	ChannelPopup Channel = "popup"
	ChannelPush  Channel = "push"
	ChannelChat  Channel = "chat"
)

// Notification is one event to deliver.
type Notification struct {
	Type     Type
	Channels []Channel
	Title    string
	Body     string
	TaskID   string
	UserID   string
}

// Notifier delivers notifications. Implementations must never let a failure
// on one channel block the others.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Sink is a single-channel transport, supplied by the embedding
// application.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Fanout delivers each notification to every requested channel. A channel
// without a registered sink, or a sink error, is logged and skipped.
type Fanout struct {
	sinks map[Channel]Sink
}

// NewFanout creates a fan-out notifier over per-channel sinks.
func NewFanout(sinks map[Channel]Sink) *Fanout {
	if sinks == nil {
		sinks = map[Channel]Sink{}
	}
	return &Fanout{sinks: sinks}
}

// Notify implements Notifier.
func (f *Fanout) Notify(ctx context.Context, n Notification) {
	for _, ch := range n.Channels {
		sink, ok := f.sinks[ch]
		if !ok {
			slog.Debug("notify: no sink for channel", "channel", string(ch), "type", string(n.Type))
			continue
		}
		if err := sink.Send(ctx, n); err != nil {
			slog.Warn("notify: delivery failed",
				"channel", string(ch),
				"type", string(n.Type),
				"task_id", n.TaskID,
				"error", err)
		}
	}
}

// Discard is a Notifier that drops everything. Useful in tests and when the
// embedding application supplies no sinks.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}
