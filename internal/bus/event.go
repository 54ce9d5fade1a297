package bus

import "time"

// domainEvent is the canonical Event carrier published by domain operations.
type domainEvent struct {
	kind   Kind
	at     time.Time
	fields map[string]any
}

// NewEvent builds an event of the given kind. Field values must be
// JSON-serializable; they flow unmodified into the outbound envelope.
func NewEvent(kind Kind, at time.Time, fields map[string]any) Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return domainEvent{kind: kind, at: at.UTC(), fields: fields}
}

func (e domainEvent) Kind() Kind {
	return e.kind
}

func (e domainEvent) OccurredAt() time.Time {
	return e.at
}

func (e domainEvent) Fields() map[string]any {
	copied := make(map[string]any, len(e.fields))
	for key, value := range e.fields {
		copied[key] = value
	}
	return copied
}
