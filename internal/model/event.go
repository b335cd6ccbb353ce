package model

import "time"

// EventKind names something worth reporting to the monitor and journal.
type EventKind string

const (
	EventForwarded       EventKind = "forwarded"       // arbiter wrote a command to a link
	EventModeChanged     EventKind = "mode_changed"    // arbiter changed mode
	EventStaleDropped    EventKind = "stale_dropped"   // stale record, channel drained
	EventDrained         EventKind = "drained"         // non-owner channel drained
	EventInvalidCommand  EventKind = "invalid_command" // unknown or misrouted token
	EventLinkFailed      EventKind = "link_failed"     // actuator transport gone
	EventConfirmed       EventKind = "intersection_confirmed"
	EventGuidanceDecided EventKind = "guidance_decided"
	EventGuidanceFailed  EventKind = "guidance_failed"
	EventCrossing        EventKind = "crossing"
	EventTurnStarted     EventKind = "turn_started"
	EventTurnCompleted   EventKind = "turn_completed"
	EventAboutTurn       EventKind = "about_turn"
	EventTargetAcquired  EventKind = "target_acquired"
	EventTargetLost      EventKind = "target_lost"
	EventFired           EventKind = "fired"
)

// Event is a timestamped report from the arbiter or one of the engines.
type Event struct {
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Source  Producer  `json:"source"`
	Command Command   `json:"command,omitempty"`
	Mode    string    `json:"mode,omitempty"`
	Link    string    `json:"link,omitempty"`
	Count   int       `json:"count,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// EventSink receives events. Implementations must not block for long; the
// arbiter calls them inline.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Publish calls f(e).
func (f EventSinkFunc) Publish(e Event) { f(e) }

// MultiSink fans an event out to every non-nil sink.
type MultiSink []EventSink

// Publish forwards e to each sink in order.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}
