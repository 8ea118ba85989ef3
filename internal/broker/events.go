// ABOUTME: Transition events emitted by the broker and the metrics hook interface
// ABOUTME: Events feed the audit ledger; Recorder feeds counters and gauges

package broker

import "time"

// EventType names a broker transition.
type EventType string

const (
	EventRequested     EventType = "requested"
	EventQueued        EventType = "queued"
	EventPromoted      EventType = "promoted"
	EventAccepted      EventType = "accepted"
	EventRejected      EventType = "rejected"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventCancelled     EventType = "cancelled"
	EventLeftQueue     EventType = "left_queue"
	EventEnded         EventType = "ended"
	EventWarned        EventType = "warned"
	EventTimedOut      EventType = "timed_out"
	EventQueueExpired  EventType = "queue_expired"
	EventBlacklisted   EventType = "blacklisted"
	EventUnblacklisted EventType = "unblacklisted"
	EventMessage       EventType = "message"
)

// EventTypes lists every type in a stable order.
var EventTypes = []EventType{
	EventRequested, EventQueued, EventPromoted, EventAccepted, EventRejected,
	EventPaused, EventResumed, EventCancelled, EventLeftQueue, EventEnded,
	EventWarned, EventTimedOut, EventQueueExpired, EventBlacklisted,
	EventUnblacklisted, EventMessage,
}

// Event is one recorded transition. AgentID is empty for transitions that
// involve no particular agent.
type Event struct {
	Type    EventType
	UserID  string
	AgentID string
	Channel string
	Detail  string
	At      time.Time
}

func (b *Broker) newEvent(t EventType, user, agent string) Event {
	return Event{Type: t, UserID: user, AgentID: agent, At: b.now()}
}

// Occupancy is a count of users in each broker state.
type Occupancy struct {
	Waiting   int
	Connected int
	Paused    int
	Queued    int
	Selecting int
}

// Recorder receives metrics hooks after each operation.
type Recorder interface {
	ObserveEvent(t EventType)
	ObserveQueueWait(d time.Duration)
	SetOccupancy(o Occupancy)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveEvent(EventType)         {}
func (NopRecorder) ObserveQueueWait(time.Duration) {}
func (NopRecorder) SetOccupancy(Occupancy)         {}
