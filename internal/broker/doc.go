// ABOUTME: Package broker routes users who ask for a person to configured human agents
// ABOUTME: It owns sessions, queues, timers, selections, and blacklists behind one mutex

// Package broker is the hand-off state machine between end users and human
// agents. A user who asks for help is either assigned a Waiting session, put
// in the busy agent's queue, or shown a numbered menu of agents. An agent
// accepts a Waiting session to connect, after which free text is relayed in
// both directions until either side ends the conversation or its time budget
// runs out; the agent's queue is then promoted.
//
// All state is in memory. Operations are safe for concurrent use; each one
// runs the expiry sweep first and delivers notifications after releasing the
// lock, so a slow Notifier never blocks other callers.
package broker
