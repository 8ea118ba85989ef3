// ABOUTME: Agent-side operations: accept, reject, pause, resume, end, and blacklist management
// ABOUTME: Every operation here requires the caller to be a configured agent

package broker

import (
	"context"
	"fmt"

	"github.com/2389/coven-handoff/internal/selection"
	"github.com/2389/coven-handoff/internal/session"
)

// Accept connects agent to a Waiting user. An empty user picks the oldest
// request addressed to agent, then the oldest broadcast request.
func (b *Broker) Accept(ctx context.Context, agent, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		if current, engaged := b.sessions.EngagedUserOfAgent(agent); engaged {
			sess, _ := b.sessions.Get(current)
			if current == user {
				return deny(ErrAlreadyEngaged, "You are already talking to %s.", label(sess.DisplayName, current))
			}
			return deny(ErrAgentEngaged, "You are already in a conversation with %s. End it first.", label(sess.DisplayName, current))
		}

		sess, found := b.waitingLocked(agent, user)
		if !found {
			if user == "" {
				return deny(ErrNotWaiting, "No user is waiting for you.")
			}
			return deny(ErrNotWaiting, "User %s has not requested a human agent.", user)
		}

		if err := b.sessions.Connect(sess.UserID, agent); err != nil {
			b.logger.Error("connecting session", "user", sess.UserID, "agent", agent, "error", fmt.Errorf("%w: %w", ErrInvariant, err))
			return deny(ErrAgentEngaged, "You are already in a conversation.")
		}
		b.timers.Start(sess.UserID)

		limit := ""
		if t := b.timers.Timeout(); t > 0 {
			limit = fmt.Sprintf(" This conversation is limited to %s.", formatDuration(t))
		}
		o.notify(sess.UserID, sess.Channel, fmt.Sprintf("%s has joined the conversation.%s", b.AgentName(agent), limit))
		ev := b.newEvent(EventAccepted, sess.UserID, agent)
		ev.Channel = sess.Channel
		o.event(ev)
		b.logger.Info("hand-off accepted", "user", sess.UserID, "agent", agent)

		return success("You are now connected to %s. Your messages here are forwarded to them.%s", label(sess.DisplayName, sess.UserID), limit)
	})
}

// waitingLocked finds the Waiting session agent is acting on. Waiting is
// oldest first, so a user promoted from the queue is served before anyone
// who asked after the promotion.
func (b *Broker) waitingLocked(agent, user string) (session.Session, bool) {
	if user != "" {
		sess, found := b.sessions.Get(user)
		if !found || sess.Status != session.StatusWaiting {
			return session.Session{}, false
		}
		return sess, true
	}

	waiting := b.sessions.Waiting()
	for _, sess := range waiting {
		if sess.PreferredAgentID == agent {
			return sess, true
		}
	}
	for _, sess := range waiting {
		if sess.PreferredAgentID == "" {
			return sess, true
		}
	}
	return session.Session{}, false
}

// Reject declines a Waiting user's request.
func (b *Broker) Reject(ctx context.Context, agent, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		sess, found := b.waitingLocked(agent, user)
		if !found {
			if user == "" {
				return deny(ErrNotWaiting, "No user is waiting for you.")
			}
			return deny(ErrNotWaiting, "User %s has not requested a human agent.", user)
		}

		b.sessions.Delete(sess.UserID)
		o.notify(sess.UserID, sess.Channel, msgRejectedUser)
		ev := b.newEvent(EventRejected, sess.UserID, agent)
		ev.Channel = sess.Channel
		o.event(ev)
		b.logger.Info("hand-off rejected", "user", sess.UserID, "agent", agent)

		return success("Declined the request from %s.", label(sess.DisplayName, sess.UserID))
	})
}

// Pause suspends relaying in agent's conversation. The time budget keeps running.
func (b *Broker) Pause(ctx context.Context, agent, user string) Result {
	return b.setEngagedStatus(ctx, agent, user, session.StatusConnected, session.StatusPaused)
}

// Resume restores relaying in a paused conversation.
func (b *Broker) Resume(ctx context.Context, agent, user string) Result {
	return b.setEngagedStatus(ctx, agent, user, session.StatusPaused, session.StatusConnected)
}

func (b *Broker) setEngagedStatus(ctx context.Context, agent, user string, from, to session.Status) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		current, engaged := b.sessions.EngagedUserOfAgent(agent)
		if !engaged || (user != "" && user != current) {
			return deny(ErrInvalidState, "You have no conversation with that user.")
		}
		sess, _ := b.sessions.Get(current)
		if sess.Status != from {
			return deny(ErrInvalidState, "The conversation is already %s.", sess.Status)
		}
		if err := b.sessions.SetStatus(current, to); err != nil {
			b.logger.Error("changing session status", "user", current, "agent", agent, "error", fmt.Errorf("%w: %w", ErrInvariant, err))
			return deny(ErrInvalidState, "The conversation could not be updated.")
		}

		evType, notice := EventPaused, msgPausedUser
		if to == session.StatusConnected {
			evType, notice = EventResumed, msgResumedUser
		}
		o.notify(current, sess.Channel, notice)
		o.event(b.newEvent(evType, current, agent))
		return success("Conversation with %s is now %s.", label(sess.DisplayName, current), to)
	})
}

// EndByAgent ends agent's engaged conversation and offers the next queued user.
func (b *Broker) EndByAgent(ctx context.Context, agent string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		return b.endByAgentLocked(o, agent)
	})
}

func (b *Broker) endByAgentLocked(o *outbox, agent string) Result {
	user, engaged := b.sessions.EngagedUserOfAgent(agent)
	if !engaged {
		return deny(ErrNoConversation, msgNoConversation)
	}
	sess, _ := b.sessions.Get(user)
	b.endLocked(o, sess, EventEnded)
	o.notify(user, sess.Channel, fmt.Sprintf("%s has ended the conversation. You are back with the assistant.", b.AgentName(agent)))
	b.logger.Info("conversation ended by agent", "user", user, "agent", agent)

	notice := fmt.Sprintf("Ended the conversation with %s.", label(sess.DisplayName, user))
	return success("%s", b.freedLocked(o, agent, notice))
}

// EndConversation ends whichever engaged conversation endedBy takes part in.
func (b *Broker) EndConversation(ctx context.Context, endedBy string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if b.IsAgent(endedBy) {
			if _, engaged := b.sessions.EngagedUserOfAgent(endedBy); engaged {
				return b.endByAgentLocked(o, endedBy)
			}
		}
		sess, found := b.sessions.Get(endedBy)
		if !found || !sess.Status.Engaged() {
			return deny(ErrNoConversation, msgNoConversation)
		}
		return b.endByUserLocked(o, sess)
	})
}

// Blacklist blocks user on agent's behalf and tears down anything the user
// has in progress.
func (b *Broker) Blacklist(ctx context.Context, agent, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		if user == "" {
			return deny(ErrMissingUser, msgMissingUser)
		}
		if b.IsAgent(user) {
			return deny(ErrInvalidTarget, "Agents cannot be blacklisted.")
		}
		if err := b.blacklist.Add(user, agent); err != nil {
			return deny(ErrMissingUser, "%s", err)
		}
		o.event(b.newEvent(EventBlacklisted, user, agent))
		b.logger.Info("user blacklisted", "user", user, "agent", agent, "shared", b.blacklist.Shared())

		reply := fmt.Sprintf("%s has been blacklisted.", user)
		b.selections.Cancel(user)
		if qa, _, queued := b.queues.Locate(user); queued {
			b.queues.Remove(user)
			o.event(b.newEvent(EventLeftQueue, user, qa))
		}
		if sess, found := b.sessions.Get(user); found {
			b.endLocked(o, sess, EventEnded)
			o.notify(user, sess.Channel, msgBlockedUser)
			if sess.Status.Engaged() {
				notice := fmt.Sprintf("Your conversation with %s was ended by a blacklist.", label(sess.DisplayName, user))
				if sess.AgentID == agent {
					reply += "\n" + b.freedLocked(o, agent, "The conversation has ended.")
				} else {
					o.notify(sess.AgentID, DirectChannel, b.freedLocked(o, sess.AgentID, notice))
				}
			} else {
				b.withdrawnLocked(o, sess, agent)
			}
		}
		return success("%s", reply)
	})
}

// withdrawnLocked tells the agents a Waiting request was addressed to that
// it is gone. except is the agent that caused it and already knows.
func (b *Broker) withdrawnLocked(o *outbox, sess session.Session, except string) {
	notice := fmt.Sprintf("The request from %s was withdrawn.", label(sess.DisplayName, sess.UserID))
	if sess.PreferredAgentID != "" {
		if sess.PreferredAgentID != except {
			o.notify(sess.PreferredAgentID, DirectChannel, notice)
		}
		return
	}
	for _, id := range b.order {
		if id != except {
			o.notify(id, DirectChannel, notice)
		}
	}
}

// Unblacklist lifts agent's block on user. In shared mode any agent can lift
// any block.
func (b *Broker) Unblacklist(ctx context.Context, agent, user string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		if user == "" {
			return deny(ErrMissingUser, msgMissingUser)
		}
		if !b.blacklist.Remove(user, agent) {
			return deny(ErrNotBlacklisted, "%s is not blacklisted.", user)
		}
		o.event(b.newEvent(EventUnblacklisted, user, agent))
		return success("%s has been removed from the blacklist.", user)
	})
}

// ViewBlacklist lists blocked users. With per-agent lists and several agents
// it first asks which agent's list to show.
func (b *Broker) ViewBlacklist(ctx context.Context, agent string) Result {
	return b.do(ctx, func(o *outbox) Result {
		if !b.IsAgent(agent) {
			return deny(ErrNotAgent, msgNotAgent)
		}
		if b.blacklist.Shared() {
			return success("%s", b.format("Blacklisted users:", b.blacklist.List("")))
		}
		if len(b.order) == 1 {
			return success("%s", b.format("Blacklisted users:", b.blacklist.List(b.order[0])))
		}

		b.selections.BeginBlacklistView(agent, b.order)
		menu := "Whose blacklist do you want to see?"
		for i, id := range b.order {
			menu += fmt.Sprintf("\n%d. %s (%d)", i+1, b.AgentName(id), b.blacklist.Count(id))
		}
		return success("%s\n0. Cancel", menu)
	})
}

func (b *Broker) resolveViewLocked(agent string, st selection.State, choice int) Result {
	if choice == 0 {
		b.selections.Cancel(agent)
		return success(msgViewCancelled)
	}
	target, valid := st.Option(choice)
	if !valid {
		return deny(ErrInvalidChoice, "%s", invalidChoiceMsg(len(st.Options)))
	}
	b.selections.Cancel(agent)
	title := fmt.Sprintf("Users blacklisted by %s:", b.AgentName(target))
	return success("%s", b.format(title, b.blacklist.List(target)))
}
