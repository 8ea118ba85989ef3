// ABOUTME: Matrix client construction and the narrow API the bridge calls
// ABOUTME: *mautrix.Client satisfies API; tests substitute an in-memory fake

package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// API is the subset of the Matrix client-server API used by the bridge and notifier.
type API interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (*mautrix.RespCreateRoom, error)
	JoinedMembers(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinedMembers, error)
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
	GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*event.Event, error)
	GetDisplayName(ctx context.Context, mxid id.UserID) (*mautrix.RespUserDisplayName, error)
}

var _ API = (*mautrix.Client)(nil)

// NewClient creates a Matrix client authenticated with an access token.
// deviceID may be empty when encryption is disabled.
func NewClient(homeserver, userID, accessToken, deviceID string) (*mautrix.Client, error) {
	client, err := mautrix.NewClient(homeserver, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	if deviceID != "" {
		client.DeviceID = id.DeviceID(deviceID)
	}
	return client, nil
}
