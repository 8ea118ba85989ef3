// ABOUTME: Dispatcher turns inbound chat messages into broker operations
// ABOUTME: Commands map to operations; other text goes to the broker's relay

package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-handoff/internal/broker"
)

// Broker is the set of operations the dispatcher drives.
type Broker interface {
	IsAgent(id string) bool
	RequestHelp(ctx context.Context, r broker.Requester) broker.Result
	CancelOrEndByUser(ctx context.Context, user string) broker.Result
	LeaveQueue(ctx context.Context, user string) broker.Result
	QueueStatus(ctx context.Context, user string) broker.Result
	Accept(ctx context.Context, agent, user string) broker.Result
	Reject(ctx context.Context, agent, user string) broker.Result
	Pause(ctx context.Context, agent, user string) broker.Result
	Resume(ctx context.Context, agent, user string) broker.Result
	EndConversation(ctx context.Context, endedBy string) broker.Result
	Blacklist(ctx context.Context, agent, user string) broker.Result
	Unblacklist(ctx context.Context, agent, user string) broker.Result
	ViewBlacklist(ctx context.Context, agent string) broker.Result
	RouteMessage(ctx context.Context, sender, text string) broker.RouteResult
}

// Message is one inbound chat message.
type Message struct {
	Sender      string
	DisplayName string
	// Channel is the room the message arrived in, or broker.DirectChannel.
	Channel string
	Text    string
	// Quoted is the text of the message being replied to, if any.
	Quoted string
}

// Dispatcher routes messages to the broker.
type Dispatcher struct {
	broker Broker
	parser *Parser
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(b Broker, p *Parser, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{broker: b, parser: p, logger: logger.With("component", "command")}
}

// Handle processes m and returns the reply for the sender. handled is false
// when the message is neither a command nor part of a hand-off.
func (d *Dispatcher) Handle(ctx context.Context, m Message) (reply string, handled bool) {
	cmd, ok := d.parser.Parse(m.Text)
	if !ok {
		res := d.broker.RouteMessage(ctx, m.Sender, m.Text)
		if !res.Handled {
			return "", false
		}
		return res.Message, true
	}

	d.logger.Debug("dispatching command", "command", cmd.Name, "sender", m.Sender)
	res := d.run(ctx, cmd, m)
	if res.Err != nil {
		d.logger.Debug("command denied", "command", cmd.Name, "sender", m.Sender, "reason", res.Err)
	}
	return res.Message, true
}

func (d *Dispatcher) run(ctx context.Context, cmd Command, m Message) broker.Result {
	switch cmd.Name {
	case Request:
		return d.broker.RequestHelp(ctx, broker.Requester{UserID: m.Sender, DisplayName: m.DisplayName, Channel: m.Channel})
	case Cancel:
		return d.broker.CancelOrEndByUser(ctx, m.Sender)
	case LeaveQueue:
		return d.broker.LeaveQueue(ctx, m.Sender)
	case QueueStatus:
		return d.broker.QueueStatus(ctx, m.Sender)
	case Accept:
		return d.broker.Accept(ctx, m.Sender, target(cmd, m))
	case Reject:
		return d.broker.Reject(ctx, m.Sender, target(cmd, m))
	case Pause:
		return d.broker.Pause(ctx, m.Sender, target(cmd, m))
	case Resume:
		return d.broker.Resume(ctx, m.Sender, target(cmd, m))
	case End:
		return d.broker.EndConversation(ctx, m.Sender)
	case Block:
		return d.broker.Blacklist(ctx, m.Sender, target(cmd, m))
	case Unblock:
		return d.broker.Unblacklist(ctx, m.Sender, target(cmd, m))
	case Blacklist:
		return d.broker.ViewBlacklist(ctx, m.Sender)
	case Help:
		return broker.Result{OK: true, Message: d.help(d.broker.IsAgent(m.Sender))}
	}
	return broker.Result{Message: fmt.Sprintf("Unknown command %q.", cmd.Name)}
}

// target is the explicit argument, else the user named in the quoted notice.
func target(cmd Command, m Message) string {
	if cmd.Arg != "" {
		return cmd.Arg
	}
	if m.Quoted != "" {
		if user, ok := ExtractReferencedUser(m.Quoted); ok {
			return user
		}
	}
	return ""
}

func (d *Dispatcher) help(agent bool) string {
	p := d.parser.Prefix()
	lines := []string{
		"Commands:",
		p + "handoff - talk to a human agent",
		p + "bot - cancel your request or end the conversation",
		p + "queue - show your place in the queue",
		p + "leave - leave the queue",
	}
	if agent {
		lines = append(lines,
			"",
			"Agent commands (or reply to a notice instead of giving a user):",
			p+"accept [user] - take over a waiting request",
			p+"reject [user] - decline a waiting request",
			p+"pause / "+p+"resume - stop or restart relaying",
			p+"end - end the current conversation",
			p+"block <user> / "+p+"unblock <user> - manage the blacklist",
			p+"blacklist - show blacklisted users",
		)
	}
	return strings.Join(lines, "\n")
}
