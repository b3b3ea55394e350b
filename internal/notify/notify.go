// Package notify implements the notification dispatcher and channel
// adapters (C10) described in spec.md §4.10: asynchronous delivery to
// 0..N channels, a small fixed worker pool, and the auto-channel
// priority selection.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/physical-mcp/engine/internal/core"
)

// Channel delivers one AlertEvent to a concrete destination (Telegram,
// Discord, ...). Implementations must be safe for concurrent use.
type Channel interface {
	Kind() core.ChannelKind
	Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error
}

// autoPriority is the auto-channel selection order (spec §4.10): first
// configured channel wins.
var autoPriority = []core.ChannelKind{
	core.ChannelTelegram,
	core.ChannelDiscord,
	core.ChannelSlack,
	core.ChannelNtfy,
	core.ChannelDesktop,
	core.ChannelNone,
}

// task is one queued delivery.
type task struct {
	event  core.AlertEvent
	target core.NotificationTarget
}

// Dispatcher routes AlertEvents to channels asynchronously through a
// small fixed worker pool, the same register/unregister/broadcast
// channel-trio shape the teacher's websocket Hub uses for fan-out,
// generalized here to a task-queue-in/delivery-log-out pool (spec's
// C10 has no registration lifecycle, so there's nothing to
// register/unregister — only the queue-and-workers half carries over).
type Dispatcher struct {
	channels map[core.ChannelKind]Channel
	tasks    chan task
	log      zerolog.Logger
	defaultCh core.ChannelKind
}

// Options configures a Dispatcher.
type Options struct {
	Workers        int
	QueueSize      int
	DefaultChannel core.ChannelKind
}

// New creates a Dispatcher with the given channel adapters registered
// by kind, and starts its worker pool. The workers run for the life of
// the process; there is no method to stop or drain them.
func New(channels []Channel, opts Options, log zerolog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	byKind := make(map[core.ChannelKind]Channel, len(channels))
	for _, c := range channels {
		byKind[c.Kind()] = c
	}

	d := &Dispatcher{
		channels:  byKind,
		tasks:     make(chan task, opts.QueueSize),
		log:       log,
		defaultCh: opts.DefaultChannel,
	}

	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Dispatch queues event for delivery according to target and returns
// immediately; delivery itself happens asynchronously on a worker.
func (d *Dispatcher) Dispatch(event core.AlertEvent, target core.NotificationTarget) {
	select {
	case d.tasks <- task{event: event, target: target}:
	default:
		d.log.Warn().Str("event_id", event.EventID).Msg("notification queue full, dropping delivery")
	}
}

func (d *Dispatcher) worker() {
	for t := range d.tasks {
		d.deliver(t.event, t.target)
	}
}

func (d *Dispatcher) deliver(event core.AlertEvent, target core.NotificationTarget) {
	kind := target.Channel
	if kind == "" {
		kind = d.defaultCh
	}
	if kind == core.ChannelAuto {
		kind = d.resolveAuto()
	}
	if kind == "" || kind == core.ChannelNone {
		return
	}

	ch, ok := d.channels[kind]
	if !ok {
		d.log.Warn().Str("channel", string(kind)).Str("event_id", event.EventID).Msg("no adapter configured for channel")
		return
	}

	if err := d.deliverOnce(ch, event, target); err != nil {
		d.log.Warn().Err(err).Str("channel", string(kind)).Str("event_id", event.EventID).Msg("notification delivery failed; retrying once")
		time.Sleep(notificationRetryBackoff)
		if err := d.deliverOnce(ch, event, target); err != nil {
			d.log.Warn().Err(err).Str("channel", string(kind)).Str("event_id", event.EventID).Msg("notification delivery failed after retry; dropping")
		}
	}
}

// notificationRetryBackoff is the short pause before the one retry
// spec §7's notification_delivery_failed recovery allows ("retry once
// with short backoff, then drop").
const notificationRetryBackoff = 2 * time.Second

func (d *Dispatcher) deliverOnce(ch Channel, event core.AlertEvent, target core.NotificationTarget) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return ch.Deliver(ctx, event, target)
}

// resolveAuto picks the first configured channel in priority order
// (spec §4.10: Telegram > Discord > Slack > ntfy > desktop > none).
func (d *Dispatcher) resolveAuto() core.ChannelKind {
	for _, k := range autoPriority {
		if k == core.ChannelNone {
			return core.ChannelNone
		}
		if _, ok := d.channels[k]; ok {
			return k
		}
	}
	return core.ChannelNone
}
