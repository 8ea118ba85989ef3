// ABOUTME: Matrix bridge that feeds room messages into the hand-off dispatcher
// ABOUTME: Filters, deduplicates, and resolves reply context before dispatch

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-handoff/internal/broker"
	"github.com/2389/coven-handoff/internal/clock"
	"github.com/2389/coven-handoff/internal/command"
	"github.com/2389/coven-handoff/internal/dedupe"
)

// networkTimeout is the timeout for Matrix lookups made while handling a message.
const networkTimeout = 10 * time.Second

const (
	seenTTL  = 10 * time.Minute
	seenSize = 4096
)

// Handler processes one inbound message and returns the reply for its sender.
type Handler interface {
	Handle(ctx context.Context, m command.Message) (reply string, handled bool)
}

// AgentChecker reports whether a user ID belongs to an agent.
type AgentChecker interface {
	IsAgent(id string) bool
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	UserID string
	// AllowedRooms restricts where users may talk to the bridge. Agents are
	// accepted in any room. Empty allows all rooms.
	AllowedRooms []string
	Parser       *command.Parser
	Agents       AgentChecker
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Bridge connects Matrix rooms to the hand-off dispatcher.
type Bridge struct {
	client   *mautrix.Client
	api      API
	notifier *Notifier
	handler  Handler
	parser   *command.Parser
	agents   AgentChecker
	self     id.UserID
	allowed  map[string]bool
	clk      clock.Clock
	seen     *dedupe.Cache
	logger   *slog.Logger

	names sync.Map // id.UserID -> string

	mu        sync.Mutex
	startedAt time.Time
}

// NewBridge creates a Bridge on client. Replies and notifications share
// notifier's room directory.
func NewBridge(client *mautrix.Client, notifier *Notifier, handler Handler, opts BridgeOptions) *Bridge {
	b := newBridge(client, notifier, handler, opts)
	b.client = client
	return b
}

func newBridge(api API, notifier *Notifier, handler Handler, opts BridgeOptions) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Parser == nil {
		opts.Parser = command.NewParser("")
	}
	allowed := make(map[string]bool, len(opts.AllowedRooms))
	for _, r := range opts.AllowedRooms {
		allowed[r] = true
	}
	return &Bridge{
		api:      api,
		notifier: notifier,
		handler:  handler,
		parser:   opts.Parser,
		agents:   opts.Agents,
		self:     id.UserID(opts.UserID),
		allowed:  allowed,
		clk:      opts.Clock,
		seen:     dedupe.New(opts.Clock, seenTTL, seenSize),
		logger:   opts.Logger.With("component", "matrix-bridge"),
	}
}

// Run starts syncing and blocks until ctx is cancelled or the sync fails.
func (b *Bridge) Run(ctx context.Context) error {
	if b.client == nil {
		return errors.New("bridge has no matrix client")
	}
	b.logger.Info("starting matrix bridge", "homeserver", b.client.HomeserverURL.String(), "user_id", b.self.String())

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)

	b.mu.Lock()
	b.startedAt = b.clk.Now()
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent processes incoming messages synchronously so relayed
// text keeps its order.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.self {
		return
	}
	if b.seen.Seen(evt.ID.String()) {
		b.logger.Debug("dropping duplicate event", "event_id", evt.ID.String())
		return
	}
	if b.beforeStart(evt) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return
	}

	sender := evt.Sender.String()
	agent := b.agents != nil && b.agents.IsAgent(sender)
	if !agent && !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID.String())
		return
	}

	text, quoted := content.Body, ""
	if replyTo := content.RelatesTo.GetReplyTo(); replyTo != "" {
		quoted, text = stripReplyFallback(content.Body)
		if q := b.lookupQuoted(ctx, evt.RoomID, replyTo); q != "" {
			quoted = q
		}
	}

	channel := evt.RoomID.String()
	if agent {
		if b.isDirectRoom(ctx, evt.RoomID) {
			b.notifier.dir.learnDM(evt.Sender, evt.RoomID)
			channel = broker.DirectChannel
		} else if _, isCmd := b.parser.Parse(text); !isCmd {
			// Agents only relay from their DM with the bridge.
			return
		}
	}

	msg := command.Message{
		Sender:      sender,
		DisplayName: b.displayName(ctx, evt.Sender),
		Channel:     channel,
		Text:        text,
		Quoted:      quoted,
	}
	b.logger.Debug("received message", "room", evt.RoomID.String(), "sender", sender, "agent", agent, "content", truncate(text, 50))

	reply, handled := b.handler.Handle(ctx, msg)
	if !handled || reply == "" {
		return
	}
	b.notifier.Reply(evt.RoomID, reply)
}

// handleMemberEvent joins rooms the bridge is invited to and keeps the room
// directory current.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	target := id.UserID(evt.GetStateKey())

	if target == b.self && member.Membership == event.MembershipInvite {
		ctx, cancel := context.WithTimeout(ctx, networkTimeout)
		defer cancel()
		if _, err := b.api.JoinRoomByID(ctx, evt.RoomID); err != nil {
			b.logger.Warn("failed to join room", "room", evt.RoomID.String(), "error", err)
			return
		}
		b.logger.Info("joined room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
	}

	switch member.Membership {
	case event.MembershipLeave, event.MembershipBan:
		b.notifier.dir.dropDM(target, evt.RoomID)
	}
	b.notifier.dir.invalidate(evt.RoomID)
}

func (b *Bridge) beforeStart(evt *event.Event) bool {
	b.mu.Lock()
	started := b.startedAt
	b.mu.Unlock()
	return !started.IsZero() && evt.Timestamp < started.UnixMilli()
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.allowed) == 0 {
		return true
	}
	return b.allowed[roomID]
}

// isDirectRoom reports whether the room has exactly two joined members.
func (b *Bridge) isDirectRoom(ctx context.Context, room id.RoomID) bool {
	if direct, known := b.notifier.dir.isDirect(room); known {
		return direct
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	resp, err := b.api.JoinedMembers(ctx, room)
	if err != nil {
		b.logger.Debug("failed to fetch joined members", "room", room.String(), "error", err)
		return false
	}
	direct := len(resp.Joined) == 2
	b.notifier.dir.setDirect(room, direct)
	return direct
}

// displayName returns the sender's profile name, falling back to the localpart.
func (b *Bridge) displayName(ctx context.Context, user id.UserID) string {
	if name, ok := b.names.Load(user); ok {
		return name.(string)
	}
	name := ""
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if resp, err := b.api.GetDisplayName(ctx, user); err == nil && resp != nil {
		name = resp.DisplayName
	}
	if name == "" {
		if localpart, _, err := user.Parse(); err == nil {
			name = localpart
		} else {
			name = user.String()
		}
	}
	b.names.Store(user, name)
	return name
}

// lookupQuoted fetches the text of the event being replied to.
func (b *Bridge) lookupQuoted(ctx context.Context, room id.RoomID, eventID id.EventID) string {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	evt, err := b.api.GetEvent(ctx, room, eventID)
	if err != nil {
		b.logger.Debug("failed to fetch replied-to event", "event_id", eventID.String(), "error", err)
		return ""
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
		return ""
	}
	if evt.Type == event.EventEncrypted {
		if b.client == nil || b.client.Crypto == nil {
			return ""
		}
		decrypted, err := b.client.Crypto.Decrypt(ctx, evt)
		if err != nil {
			b.logger.Debug("failed to decrypt replied-to event", "event_id", eventID.String(), "error", err)
			return ""
		}
		evt = decrypted
		_ = evt.Content.ParseRaw(evt.Type)
	}
	msg := evt.Content.AsMessage()
	if msg.Body == "" {
		return ""
	}
	if msg.RelatesTo.GetReplyTo() != "" {
		_, body := stripReplyFallback(msg.Body)
		return body
	}
	return msg.Body
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
