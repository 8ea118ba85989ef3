// ABOUTME: User-side operations: requesting an agent, choosing one, queue status, leaving
// ABOUTME: Decides between direct assignment, queueing, selection, and broadcast

package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/coven-handoff/internal/selection"
	"github.com/2389/coven-handoff/internal/session"
)

// Requester identifies a user asking for a human agent.
type Requester struct {
	UserID      string
	DisplayName string
	// Channel is where replies go: a room ID or DirectChannel.
	Channel string
}

// RequestHelp asks for a human agent on behalf of r.
func (b *Broker) RequestHelp(ctx context.Context, r Requester) Result {
	if r.Channel == "" {
		r.Channel = DirectChannel
	}
	return b.do(ctx, func(o *outbox) Result {
		return b.requestLocked(o, r)
	})
}

func (b *Broker) requestLocked(o *outbox, r Requester) Result {
	user := r.UserID
	selecting := len(b.order) > 1 && b.cfg.Selection

	// Per-agent lists only filter the selection menu.
	if (b.blacklist.Shared() || !selecting) && b.blacklist.IsBlocked(user, "") {
		return deny(ErrBlacklisted, msgBlacklisted)
	}
	if sess, ok := b.sessions.Get(user); ok {
		if sess.Status == session.StatusWaiting {
			return deny(ErrAlreadyEngaged, msgAlreadyWaiting)
		}
		return deny(ErrAlreadyEngaged, msgAlreadyTalking)
	}
	if b.selections.Has(user, selection.KindAgent) {
		return deny(ErrSelecting, msgSelecting)
	}
	if agent, pos, ok := b.queues.Locate(user); ok {
		return deny(ErrQueued, "You are already number %d in %s's queue.", pos, b.AgentName(agent))
	}

	switch {
	case selecting:
		var available []string
		for _, id := range b.order {
			if !b.blacklist.IsBlocked(user, id) {
				available = append(available, id)
			}
		}
		if len(available) == 0 {
			return deny(ErrNoAgent, msgNoAgent)
		}
		b.selections.BeginAgentSelection(user, r.DisplayName, r.Channel, available)
		return success("%s", b.selectionMenuLocked(available))

	case len(b.order) == 1:
		agent := b.order[0]
		if b.agentHeldLocked(agent) {
			return b.enqueueLocked(o, agent, r)
		}
		return b.openLocked(o, r, agent)

	default:
		return b.openLocked(o, r, "")
	}
}

// agentHeldLocked reports whether agent has a Connected or Paused
// conversation. A paused conversation still holds the agent, so newcomers
// queue behind it and are promoted when it ends.
func (b *Broker) agentHeldLocked(agent string) bool {
	_, held := b.sessions.EngagedUserOfAgent(agent)
	return held
}

// openLocked creates a Waiting session. An empty agent broadcasts the
// request to every agent.
func (b *Broker) openLocked(o *outbox, r Requester, agent string) Result {
	err := b.sessions.Create(session.Session{
		UserID:           r.UserID,
		DisplayName:      r.DisplayName,
		Status:           session.StatusWaiting,
		Channel:          r.Channel,
		PreferredAgentID: agent,
		CreatedAt:        b.now(),
	})
	if err != nil {
		b.logger.Error("creating session", "user", r.UserID, "error", err)
		return deny(ErrAlreadyEngaged, msgAlreadyWaiting)
	}

	notice := requestNotice(label(r.DisplayName, r.UserID))
	if agent == "" {
		for _, id := range b.order {
			o.notify(id, DirectChannel, notice)
		}
	} else {
		o.notify(agent, DirectChannel, notice)
	}
	ev := b.newEvent(EventRequested, r.UserID, agent)
	ev.Channel = r.Channel
	o.event(ev)
	b.logger.Info("hand-off requested", "user", r.UserID, "agent", agent)

	if agent == "" {
		return success("Your request has been sent to our agents. Please wait.")
	}
	return success("Your request has been sent to %s. Please wait.", b.AgentName(agent))
}

func (b *Broker) enqueueLocked(o *outbox, agent string, r Requester) Result {
	if !b.queues.Enqueue(agent, r.UserID, r.DisplayName, r.Channel) {
		_, pos, _ := b.queues.Locate(r.UserID)
		return deny(ErrQueued, "You are already number %d in the queue.", pos)
	}
	pos := b.queues.PositionOf(agent, r.UserID)
	o.notify(agent, DirectChannel, queueGrowthMsg(label(r.DisplayName, r.UserID), b.queues.Size(agent)))
	ev := b.newEvent(EventQueued, r.UserID, agent)
	ev.Channel = r.Channel
	ev.Detail = fmt.Sprintf("position %d", pos)
	o.event(ev)
	b.logger.Info("user queued", "user", r.UserID, "agent", agent, "position", pos)
	return success("%s", queuedMsg(b.AgentName(agent), pos))
}

func (b *Broker) selectionMenuLocked(agents []string) string {
	var sb strings.Builder
	sb.WriteString("Choose an agent by replying with a number:")
	for i, id := range agents {
		status := "available"
		if b.sessions.IsAgentBusy(id) {
			status = "busy"
		} else if b.agentHeldLocked(id) {
			status = "paused"
		}
		fmt.Fprintf(&sb, "\n%d. %s: %s", i+1, b.AgentName(id), status)
		if n := b.queues.Size(id); n > 0 {
			fmt.Fprintf(&sb, ", %d in queue", n)
		}
	}
	sb.WriteString("\n0. Cancel")
	return sb.String()
}

// ResolveSelection applies a numeric reply to the user's pending selection.
func (b *Broker) ResolveSelection(ctx context.Context, user string, choice int) Result {
	return b.do(ctx, func(o *outbox) Result {
		return b.resolveLocked(o, user, choice)
	})
}

func (b *Broker) resolveLocked(o *outbox, user string, choice int) Result {
	st, found := b.selections.Get(user)
	if !found {
		return deny(ErrNoSelection, "There is nothing to choose from.")
	}
	if st.Kind == selection.KindBlacklistView {
		return b.resolveViewLocked(user, st, choice)
	}

	if choice == 0 {
		b.selections.Cancel(user)
		return success(msgSelectCancelled)
	}
	agent, valid := st.Option(choice)
	if !valid {
		return deny(ErrInvalidChoice, "%s", invalidChoiceMsg(len(st.Options)))
	}
	b.selections.Cancel(user)

	if b.blacklist.IsBlocked(user, agent) {
		return deny(ErrBlacklisted, msgBlacklisted)
	}
	r := Requester{UserID: user, DisplayName: st.DisplayName, Channel: st.Channel}
	if b.agentHeldLocked(agent) {
		return b.enqueueLocked(o, agent, r)
	}
	return b.openLocked(o, r, agent)
}

// CancelOrEndByUser backs the user out of whatever hand-off stage they are in.
func (b *Broker) CancelOrEndByUser(ctx context.Context, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if b.selections.Has(user, selection.KindAgent) {
			b.selections.Cancel(user)
			return success(msgSelectCancelled)
		}
		if agent, _, queued := b.queues.Locate(user); queued {
			b.queues.Remove(user)
			o.event(b.newEvent(EventLeftQueue, user, agent))
			return success(msgLeftQueue)
		}
		sess, found := b.sessions.Get(user)
		if !found {
			return deny(ErrNoRequest, msgNoRequest)
		}
		if sess.Status == session.StatusWaiting {
			return b.cancelWaitingLocked(o, sess)
		}
		return b.endByUserLocked(o, sess)
	})
}

func (b *Broker) cancelWaitingLocked(o *outbox, sess session.Session) Result {
	b.sessions.Delete(sess.UserID)
	ev := b.newEvent(EventCancelled, sess.UserID, sess.PreferredAgentID)
	ev.Channel = sess.Channel
	o.event(ev)

	notice := fmt.Sprintf("%s cancelled their request.", label(sess.DisplayName, sess.UserID))
	if sess.PreferredAgentID != "" {
		o.notify(sess.PreferredAgentID, DirectChannel, notice)
	} else {
		for _, id := range b.order {
			o.notify(id, DirectChannel, notice)
		}
	}
	return success(msgRequestCancel)
}

// EndByUser ends the user's engaged conversation.
func (b *Broker) EndByUser(ctx context.Context, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		sess, found := b.sessions.Get(user)
		if !found || !sess.Status.Engaged() {
			return deny(ErrNoConversation, msgNoConversation)
		}
		return b.endByUserLocked(o, sess)
	})
}

func (b *Broker) endByUserLocked(o *outbox, sess session.Session) Result {
	b.endLocked(o, sess, EventEnded)
	notice := fmt.Sprintf("%s ended the conversation.", label(sess.DisplayName, sess.UserID))
	o.notify(sess.AgentID, DirectChannel, b.freedLocked(o, sess.AgentID, notice))
	b.logger.Info("conversation ended by user", "user", sess.UserID, "agent", sess.AgentID)
	return success(msgUserEnded)
}

// QueueStatus reports the user's queue position.
func (b *Broker) QueueStatus(ctx context.Context, user string) Result {
	return b.do(ctx, func(*outbox) Result {
		agent, pos, queued := b.queues.Locate(user)
		if !queued {
			return deny(ErrNotQueued, msgNotQueued)
		}
		return success("%s", queuePositionMsg(b.AgentName(agent), pos, b.queues.Size(agent)))
	})
}

// LeaveQueue removes the user from whichever queue holds them.
func (b *Broker) LeaveQueue(ctx context.Context, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		agent, _, queued := b.queues.Locate(user)
		if !queued {
			return deny(ErrNotQueued, msgNotQueued)
		}
		b.queues.Remove(user)
		o.event(b.newEvent(EventLeftQueue, user, agent))
		return success(msgLeftQueue)
	})
}
