// ABOUTME: Broker owns the hand-off stores and serializes every operation on them
// ABOUTME: Operations sweep, mutate, then deliver queued notifications after unlocking

package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/coven-handoff/internal/blacklist"
	"github.com/2389/coven-handoff/internal/clock"
	"github.com/2389/coven-handoff/internal/queue"
	"github.com/2389/coven-handoff/internal/selection"
	"github.com/2389/coven-handoff/internal/session"
	"github.com/2389/coven-handoff/internal/timer"
)

// DirectChannel marks a notification for the recipient's private chat.
const DirectChannel = "direct"

// Agent is a configured human operator.
type Agent struct {
	ID   string
	Name string
}

// Config is the broker's policy.
type Config struct {
	Agents              []Agent
	Selection           bool
	SharedBlacklist     bool
	ConversationTimeout time.Duration
	WarningWindow       time.Duration
	QueueTimeout        time.Duration
}

// Notification is an outbound message to one user or agent.
type Notification struct {
	Recipient string
	Channel   string
	Text      string
}

// Notifier delivers notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) bool
}

// EventSink records broker transitions.
type EventSink interface {
	RecordEvent(ctx context.Context, e Event) error
}

// Options are the broker's collaborators. Zero values fall back to a real
// clock, no-op sinks, and slog.Default.
type Options struct {
	Clock    clock.Clock
	Notifier Notifier
	Recorder Recorder
	Events   EventSink
	Logger   *slog.Logger

	// RecordMessages adds relayed message text to the event stream.
	RecordMessages bool

	// FormatBlacklist renders a blacklist listing. Defaults to a bullet list.
	FormatBlacklist func(title string, users []string) string
}

// Result is the outcome of a broker operation. Message is the reply for the
// caller; Err is a sentinel error when OK is false.
type Result struct {
	OK      bool
	Message string
	Err     error
}

// RouteResult is the outcome of routing free text.
type RouteResult struct {
	Result
	// Handled is false when the text belongs to nobody and should fall
	// through to the platform's default handling.
	Handled bool
}

func success(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

func deny(err error, format string, args ...any) Result {
	return Result{Err: err, Message: fmt.Sprintf(format, args...)}
}

// Broker is the hand-off state machine.
type Broker struct {
	cfg      Config
	agents   map[string]Agent
	order    []string
	clk      clock.Clock
	notifier Notifier
	recorder Recorder
	events   EventSink
	logger   *slog.Logger
	record   bool
	format   func(string, []string) string

	mu         sync.Mutex
	sessions   *session.Store
	queues     *queue.Store
	timers     *timer.Store
	selections *selection.Store
	blacklist  *blacklist.Registry
	pending    clock.Timer
	closed     bool
}

// New creates a Broker.
func New(cfg Config, opts Options) (*Broker, error) {
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if cfg.ConversationTimeout < 0 || cfg.WarningWindow < 0 || cfg.QueueTimeout < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}

	agents := make(map[string]Agent, len(cfg.Agents))
	order := make([]string, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("agent id is required")
		}
		if _, dup := agents[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent %q", a.ID)
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		agents[a.ID] = a
		order = append(order, a.ID)
	}

	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Events == nil {
		opts.Events = discardEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FormatBlacklist == nil {
		opts.FormatBlacklist = formatList
	}

	return &Broker{
		cfg:        cfg,
		agents:     agents,
		order:      order,
		clk:        opts.Clock,
		notifier:   opts.Notifier,
		recorder:   opts.Recorder,
		events:     opts.Events,
		logger:     opts.Logger.With("component", "broker"),
		record:     opts.RecordMessages,
		format:     opts.FormatBlacklist,
		sessions:   session.New(),
		queues:     queue.New(opts.Clock),
		timers:     timer.New(opts.Clock, cfg.ConversationTimeout, cfg.WarningWindow),
		selections: selection.New(),
		blacklist:  blacklist.New(cfg.SharedBlacklist),
	}, nil
}

// IsAgent reports whether id is a configured agent.
func (b *Broker) IsAgent(id string) bool {
	_, ok := b.agents[id]
	return ok
}

// AgentName returns the agent's display name, or id when unknown.
func (b *Broker) AgentName(id string) string {
	if a, ok := b.agents[id]; ok {
		return a.Name
	}
	return id
}

// Agents returns the configured agents in configuration order.
func (b *Broker) Agents() []Agent {
	out := make([]Agent, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.agents[id])
	}
	return out
}

// Close stops the scheduled sweep. Operations still work afterwards but
// deadlines are only enforced when something calls into the broker.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
}

// Sweep enforces warnings, conversation expiry, and queue expiry.
func (b *Broker) Sweep(ctx context.Context) {
	b.do(ctx, func(*outbox) Result { return Result{OK: true} })
}

// outbox collects side effects produced under the lock.
type outbox struct {
	notes     []Notification
	events    []Event
	waits     []time.Duration
	occupancy Occupancy
}

func (o *outbox) notify(recipient, channel, text string) {
	o.notes = append(o.notes, Notification{Recipient: recipient, Channel: channel, Text: text})
}

func (o *outbox) event(e Event) {
	o.events = append(o.events, e)
}

// do runs fn with the stores locked, after a sweep, then flushes the outbox.
func (b *Broker) do(ctx context.Context, fn func(o *outbox) Result) Result {
	o := &outbox{}

	b.mu.Lock()
	b.sweepLocked(o)
	res := fn(o)
	b.rearmLocked()
	o.occupancy = b.occupancyLocked()
	b.mu.Unlock()

	b.flush(ctx, o)
	return res
}

func (b *Broker) flush(ctx context.Context, o *outbox) {
	for _, n := range o.notes {
		if !b.notifier.Notify(ctx, n) {
			b.logger.Warn("notification not delivered", "recipient", n.Recipient, "channel", n.Channel)
		}
	}
	for _, e := range o.events {
		b.recorder.ObserveEvent(e.Type)
		if err := b.events.RecordEvent(ctx, e); err != nil {
			b.logger.Warn("recording event", "type", e.Type, "user", e.UserID, "error", err)
		}
	}
	for _, d := range o.waits {
		b.recorder.ObserveQueueWait(d)
	}
	b.recorder.SetOccupancy(o.occupancy)
}

// rearmLocked schedules one sweep at the earliest pending deadline.
func (b *Broker) rearmLocked() {
	if b.pending != nil {
		b.pending.Stop()
		b.pending = nil
	}
	if b.closed {
		return
	}

	at, found := b.timers.NextDeadline()
	if b.cfg.QueueTimeout > 0 {
		if q, ok := b.queues.NextExpiry(b.cfg.QueueTimeout); ok && (!found || q.Before(at)) {
			at, found = q, true
		}
	}
	if !found {
		return
	}

	d := at.Sub(b.clk.Now())
	if d < 0 {
		d = 0
	}
	b.pending = b.clk.AfterFunc(d, func() {
		b.Sweep(context.Background())
	})
}

func (b *Broker) occupancyLocked() Occupancy {
	var occ Occupancy
	for _, s := range b.sessions.All() {
		switch s.Status {
		case session.StatusWaiting:
			occ.Waiting++
		case session.StatusConnected:
			occ.Connected++
		case session.StatusPaused:
			occ.Paused++
		}
	}
	occ.Queued = b.queues.Len()
	occ.Selecting = b.selections.Len()
	return occ
}

func (b *Broker) now() time.Time {
	return b.clk.Now()
}

// label renders "Name (id)". Agents recover the id from the parentheses when
// replying to a notice.
func label(name, id string) string {
	if name == "" {
		name = id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

func (b *Broker) agentLabel(id string) string {
	return label(b.AgentName(id), id)
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Notification) bool { return true }

type discardEvents struct{}

func (discardEvents) RecordEvent(context.Context, Event) error { return nil }
