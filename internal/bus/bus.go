package bus

import (
	"context"
	"time"
)

// Kind names a domain event.
type Kind string

const (
	KindUserCreated Kind = "USER_CREATED"
	KindUserUpdated Kind = "USER_UPDATED"

	KindOrganizationCreated Kind = "ORGANIZATION_CREATED"
	KindOrganizationUpdated Kind = "ORGANIZATION_UPDATED"

	KindOrganizationMemberCreated Kind = "ORGANIZATION_MEMBER_CREATED"
	KindOrganizationMemberDeleted Kind = "ORGANIZATION_MEMBER_DELETED"

	KindProjectCreated Kind = "PROJECT_CREATED"
	KindProjectUpdated Kind = "PROJECT_UPDATED"

	KindProjectMemberCreated Kind = "PROJECT_MEMBER_CREATED"
	KindProjectMemberDeleted Kind = "PROJECT_MEMBER_DELETED"

	KindProjectInvitationCreated  Kind = "PROJECT_INVITATION_CREATED"
	KindProjectInvitationAccepted Kind = "PROJECT_INVITATION_ACCEPTED"

	KindStatusCreated Kind = "STATUS_CREATED"
	KindStatusUpdated Kind = "STATUS_UPDATED"
	KindStatusDeleted Kind = "STATUS_DELETED"

	KindReactionCreated Kind = "REACTION_CREATED"
	KindReactionDeleted Kind = "REACTION_DELETED"

	KindSyncCreated Kind = "SYNC_CREATED"
	KindSyncUpdated Kind = "SYNC_UPDATED"
	KindSyncDeleted Kind = "SYNC_DELETED"
	KindSyncShared  Kind = "SYNC_SHARED"

	KindLoginRequested Kind = "LOGIN_REQUESTED"
	KindLoginSucceeded Kind = "LOGIN_SUCCEEDED"
)

// Event is a domain event carried on the bus. Fields returns the
// JSON-serializable payload used by the outbound envelope.
type Event interface {
	Kind() Kind
	OccurredAt() time.Time
	Fields() map[string]any
}

// Subscriber reacts to a single event. A returned error propagates to the
// Notify caller; subscribers are trusted process-local code and their
// failures are programming defects, not expected runtime conditions.
type Subscriber func(ctx context.Context, event Event) error

// Bus is a process-local publish/subscribe registry. It is constructed once
// per process and injected into every publisher and subscriber registration;
// it holds no persistent state and gives no delivery guarantee across
// restarts.
//
// Bus is not safe for concurrent subscription; register all subscribers
// during process wiring before the first Notify.
type Bus struct {
	wildcard []Subscriber
	byKind   map[Kind][]Subscriber
}

// New constructs an empty bus.
func New() *Bus {
	return &Bus{byKind: make(map[Kind][]Subscriber)}
}

// Subscribe registers a subscriber for one event kind.
func (b *Bus) Subscribe(kind Kind, subscriber Subscriber) {
	b.byKind[kind] = append(b.byKind[kind], subscriber)
}

// SubscribeAll registers a wildcard subscriber invoked for every event.
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.wildcard = append(b.wildcard, subscriber)
}

// Notify invokes all wildcard subscribers and then all kind-matched
// subscribers, synchronously and in registration order. The first subscriber
// error stops delivery and propagates to the caller.
func (b *Bus) Notify(ctx context.Context, event Event) error {
	for _, subscriber := range b.wildcard {
		if err := subscriber(ctx, event); err != nil {
			return err
		}
	}
	for _, subscriber := range b.byKind[event.Kind()] {
		if err := subscriber(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
