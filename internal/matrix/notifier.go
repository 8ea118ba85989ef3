// ABOUTME: Delivers broker notifications over Matrix
// ABOUTME: Direct notifications go to a DM room that is created on first use

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-handoff/internal/broker"
)

// sendTimeout bounds each Matrix API call made for a notification.
const sendTimeout = 30 * time.Second

var _ broker.Notifier = (*Notifier)(nil)

// Notifier implements broker.Notifier on a Matrix account.
type Notifier struct {
	api       API
	dir       *directory
	encrypted bool
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. When encrypted is set, DM rooms it creates
// have encryption enabled.
func NewNotifier(api API, encrypted bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		api:       api,
		dir:       newDirectory(),
		encrypted: encrypted,
		logger:    logger.With("component", "matrix-notifier"),
	}
}

// Notify sends n.Text to n.Recipient. It reports false when the message
// could not be delivered.
func (n *Notifier) Notify(ctx context.Context, note broker.Notification) bool {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	room, err := n.resolve(ctx, note)
	if err != nil {
		n.logger.Warn("resolving notification room failed", "recipient", note.Recipient, "error", err)
		return false
	}
	if err := n.send(ctx, room, note.Text); err != nil {
		n.logger.Warn("sending notification failed", "recipient", note.Recipient, "room", room.String(), "error", err)
		return false
	}
	return true
}

func (n *Notifier) resolve(ctx context.Context, note broker.Notification) (id.RoomID, error) {
	if note.Channel != "" && note.Channel != broker.DirectChannel {
		return id.RoomID(note.Channel), nil
	}
	user := id.UserID(note.Recipient)
	if room, ok := n.dir.dmRoom(user); ok {
		return room, nil
	}
	return n.createDM(ctx, user)
}

func (n *Notifier) createDM(ctx context.Context, user id.UserID) (id.RoomID, error) {
	req := &mautrix.ReqCreateRoom{
		Preset:   "trusted_private_chat",
		IsDirect: true,
		Invite:   []id.UserID{user},
	}
	if n.encrypted {
		req.InitialState = []*event.Event{{
			Type: event.StateEncryption,
			Content: event.Content{Parsed: &event.EncryptionEventContent{
				Algorithm: id.AlgorithmMegolmV1,
			}},
		}}
	}
	resp, err := n.api.CreateRoom(ctx, req)
	if err != nil {
		return "", fmt.Errorf("creating direct room for %s: %w", user, err)
	}
	n.dir.setDM(user, resp.RoomID)
	n.logger.Info("created direct room", "user", user.String(), "room", resp.RoomID.String())
	return resp.RoomID, nil
}

func (n *Notifier) send(ctx context.Context, room id.RoomID, text string) error {
	if _, err := n.api.SendMessageEvent(ctx, room, event.EventMessage, textContent(text)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Reply sends text to a room with a fresh timeout.
func (n *Notifier) Reply(room id.RoomID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := n.send(ctx, room, text); err != nil {
		n.logger.Error("failed to send reply", "room", room.String(), "error", err)
	}
}
