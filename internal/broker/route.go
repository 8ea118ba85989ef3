// ABOUTME: Free-text routing: selection replies and user/agent relay
// ABOUTME: Text that matches no hand-off state is reported as unhandled

package broker

import (
	"context"
	"strconv"
	"strings"

	"github.com/2389/coven-handoff/internal/session"
)

// RouteMessage handles text that is not a command. Replies to a pending
// selection are parsed as choices; text inside an engaged conversation is
// relayed to the other side.
func (b *Broker) RouteMessage(ctx context.Context, sender, text string) RouteResult {
	var handled bool
	res := b.do(ctx, func(o *outbox) Result {
		r, h := b.routeLocked(o, sender, text)
		handled = h
		return r
	})
	return RouteResult{Result: res, Handled: handled}
}

func (b *Broker) routeLocked(o *outbox, sender, text string) (Result, bool) {
	if _, selecting := b.selections.Get(sender); selecting {
		choice, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || choice < 0 {
			return deny(ErrNotANumber, msgNotANumber), true
		}
		return b.resolveLocked(o, sender, choice), true
	}

	if b.IsAgent(sender) {
		if user, engaged := b.sessions.EngagedUserOfAgent(sender); engaged {
			sess, _ := b.sessions.Get(user)
			if sess.Status == session.StatusPaused {
				return deny(ErrPaused, msgPaused), true
			}
			o.notify(user, sess.Channel, text)
			b.recordMessageLocked(o, sess, sender, text)
			return Result{OK: true}, true
		}
	}

	sess, found := b.sessions.Get(sender)
	if !found || !sess.Status.Engaged() {
		return Result{}, false
	}
	if sess.Status == session.StatusPaused {
		return deny(ErrPaused, msgPaused), true
	}
	o.notify(sess.AgentID, DirectChannel, text)
	b.recordMessageLocked(o, sess, sender, text)
	return Result{OK: true}, true
}

func (b *Broker) recordMessageLocked(o *outbox, sess session.Session, from, text string) {
	if !b.record {
		return
	}
	ev := b.newEvent(EventMessage, sess.UserID, sess.AgentID)
	ev.Channel = sess.Channel
	ev.Detail = from + ": " + text
	o.event(ev)
}
