// ABOUTME: Caches which rooms are one-to-one and which DM room reaches each user
// ABOUTME: Membership changes invalidate a room's cached member count

package matrix

import (
	"sync"

	"maunium.net/go/mautrix/id"
)

type directory struct {
	mu     sync.RWMutex
	direct map[id.RoomID]bool
	dm     map[id.UserID]id.RoomID
}

func newDirectory() *directory {
	return &directory{
		direct: make(map[id.RoomID]bool),
		dm:     make(map[id.UserID]id.RoomID),
	}
}

// isDirect returns the cached direct flag for a room and whether it is known.
func (d *directory) isDirect(room id.RoomID) (direct, known bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	direct, known = d.direct[room]
	return direct, known
}

func (d *directory) setDirect(room id.RoomID, direct bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.direct[room] = direct
}

// invalidate drops the cached member count of a room. Known DM rooms stay direct.
func (d *directory) invalidate(room id.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.dm {
		if r == room {
			return
		}
	}
	delete(d.direct, room)
}

// dropDM forgets the DM room of a user who left it.
func (d *directory) dropDM(user id.UserID, room id.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dm[user] == room {
		delete(d.dm, user)
		delete(d.direct, room)
	}
}

func (d *directory) dmRoom(user id.UserID) (id.RoomID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.dm[user]
	return room, ok
}

func (d *directory) setDM(user id.UserID, room id.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dm[user] = room
	d.direct[room] = true
}

// learnDM records room as the DM room of user unless one is already known.
func (d *directory) learnDM(user id.UserID, room id.RoomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.dm[user]; !ok {
		d.dm[user] = room
	}
	d.direct[room] = true
}
