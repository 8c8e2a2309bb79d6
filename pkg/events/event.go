package events

import "time"

// SubjectPrefix roots every audit subject: events.<type>.
const SubjectPrefix = "events."

// Event is an audit record for the NATS bus. Payloads hold identifiers and
// outcomes only, never question or answer text.
type Event interface {
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

func Subject(e Event) string {
	return SubjectPrefix + e.EventType()
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string { return e.Type }

func (e BaseEvent) Payload() map[string]interface{} { return e.Data }

func (e BaseEvent) Timestamp() time.Time { return e.OccurredAt }
