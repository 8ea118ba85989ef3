// ABOUTME: Expiry sweep and queue promotion
// ABOUTME: Runs at the start of every operation and from the scheduled deadline timer

package broker

import (
	"fmt"

	"github.com/2389/coven-handoff/internal/session"
)

// sweepLocked sends due warnings, ends expired conversations, and drops
// stale queue entries, in that order.
func (b *Broker) sweepLocked(o *outbox) {
	for _, user := range b.timers.UsersNeedingWarning() {
		b.timers.MarkWarned(user)
		sess, ok := b.sessions.Get(user)
		if !ok || !sess.Status.Engaged() {
			continue
		}
		text := timeoutWarning(b.timers.RemainingOf(user))
		o.notify(user, sess.Channel, text)
		o.notify(sess.AgentID, DirectChannel, fmt.Sprintf("Conversation with %s: %s", label(sess.DisplayName, user), text))
		o.event(b.newEvent(EventWarned, user, sess.AgentID))
	}

	for _, user := range b.timers.ExpiredUsers() {
		sess, ok := b.sessions.Get(user)
		if !ok || !sess.Status.Engaged() {
			b.timers.Stop(user)
			continue
		}
		b.endLocked(o, sess, EventTimedOut)
		o.notify(user, sess.Channel, msgTimedOutUser)
		b.logger.Info("conversation timed out", "user", user, "agent", sess.AgentID)

		notice := fmt.Sprintf("Your conversation with %s reached its time limit and has ended.", label(sess.DisplayName, user))
		o.notify(sess.AgentID, DirectChannel, b.freedLocked(o, sess.AgentID, notice))
	}

	if b.cfg.QueueTimeout <= 0 {
		return
	}
	for _, e := range b.queues.SweepExpired(b.cfg.QueueTimeout) {
		o.notify(e.UserID, e.Channel, msgQueueExpired)
		ev := b.newEvent(EventQueueExpired, e.UserID, e.AgentID)
		ev.Channel = e.Channel
		o.event(ev)
		b.logger.Info("queue entry expired", "user", e.UserID, "agent", e.AgentID)
	}
}

// endLocked deletes sess and its timer and records why.
func (b *Broker) endLocked(o *outbox, sess session.Session, reason EventType) {
	b.sessions.Delete(sess.UserID)
	b.timers.Stop(sess.UserID)
	ev := b.newEvent(reason, sess.UserID, sess.AgentID)
	ev.Channel = sess.Channel
	o.event(ev)
}

// freedLocked promotes the next queued user for agent and returns the
// agent-facing notice, prefixed by notice.
func (b *Broker) freedLocked(o *outbox, agent, notice string) string {
	next, ok := b.promoteLocked(o, agent)
	if !ok {
		return notice + "\n" + msgQueueEmpty
	}
	return notice + "\n" + next
}

// promoteLocked moves the head of agent's queue into a Waiting session that
// prefers agent.
func (b *Broker) promoteLocked(o *outbox, agent string) (string, bool) {
	for {
		e, ok := b.queues.PopFront(agent)
		if !ok {
			return "", false
		}
		err := b.sessions.Create(session.Session{
			UserID:           e.UserID,
			DisplayName:      e.DisplayName,
			Status:           session.StatusWaiting,
			Channel:          e.Channel,
			PreferredAgentID: agent,
			CreatedAt:        b.now(),
		})
		if err != nil {
			b.logger.Error("promoting queued user", "user", e.UserID, "agent", agent, "error", fmt.Errorf("%w: %w", ErrInvariant, err))
			continue
		}

		o.waits = append(o.waits, b.now().Sub(e.EnqueuedAt))
		o.notify(e.UserID, e.Channel, fmt.Sprintf("It is your turn. %s will be with you shortly.", b.AgentName(agent)))
		ev := b.newEvent(EventPromoted, e.UserID, agent)
		ev.Channel = e.Channel
		o.event(ev)

		return fmt.Sprintf("Next user: %s. Reply accept to take over.\n%s",
			label(e.DisplayName, e.UserID), remainingQueueMsg(b.queues.Size(agent))), true
	}
}
