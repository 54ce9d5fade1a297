// Package onboarding enrolls freshly claimed users into the shared feedback
// project so every user can report issues from day one.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"go.uber.org/zap"
)

// DefaultFeedbackProject receives every new user unless configured otherwise.
const DefaultFeedbackProject = "$teamstatus#feedback"

var (
	errMissingRoster = errors.New("onboarding: roster service is required")
	errMissingBus    = errors.New("onboarding: event bus is required")
	errMissingIDs    = errors.New("onboarding: id source is required")
)

const (
	opSubscriberNew = "onboarding.subscriber.new"
	opEnroll        = "onboarding.enroll"
)

// SubscriberConfig describes the dependencies for the onboarding subscriber.
type SubscriberConfig struct {
	Roster          *roster.Service
	Bus             *bus.Bus
	IDs             *ident.ULIDSource
	FeedbackProject string
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Subscriber reacts to USER_CREATED events.
type Subscriber struct {
	roster  *roster.Service
	bus     *bus.Bus
	ids     *ident.ULIDSource
	project ident.ProjectID
	clock   func() time.Time
	logger  *zap.Logger
}

// NewSubscriber constructs the onboarding subscriber and validates the
// configured feedback project slug.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.Roster == nil {
		return nil, errs.Internal(opSubscriberNew, "missing_roster", errMissingRoster)
	}
	if cfg.Bus == nil {
		return nil, errs.Internal(opSubscriberNew, "missing_bus", errMissingBus)
	}
	if cfg.IDs == nil {
		return nil, errs.Internal(opSubscriberNew, "missing_ids", errMissingIDs)
	}
	slug := cfg.FeedbackProject
	if slug == "" {
		slug = DefaultFeedbackProject
	}
	project, err := ident.NewProjectID(slug)
	if err != nil {
		return nil, errs.Internal(opSubscriberNew, "invalid_feedback_project", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		roster:  cfg.Roster,
		bus:     cfg.Bus,
		ids:     cfg.IDs,
		project: project,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Register attaches the subscriber to USER_CREATED events.
func (s *Subscriber) Register(eventBus *bus.Bus) {
	eventBus.Subscribe(bus.KindUserCreated, s.handleUserCreated)
}

func (s *Subscriber) handleUserCreated(ctx context.Context, event bus.Event) error {
	rawID, ok := event.Fields()["id"].(string)
	if !ok || rawID == "" {
		s.logger.Warn("User created event without an id field; skipping onboarding")
		return nil
	}
	user, err := ident.NewUserID(rawID)
	if err != nil {
		return errs.Internal(opEnroll, "invalid_user_id", err)
	}

	// Replayed events re-enroll; membership may already be in place.
	member, err := s.roster.IsProjectMember(ctx, user, s.project)
	if err != nil {
		return fmt.Errorf("onboard %s into %s: %w", user.Key(), s.project.Key(), err)
	}
	if member {
		return nil
	}

	memberID, err := s.ids.NewID()
	if err != nil {
		return errs.Internal(opEnroll, "mint_member_id_failed", err)
	}
	err = s.roster.EnrollProjectMember(ctx, memberID, s.project, user, schema.RoleMember, s.clock())
	if err != nil {
		if errs.IsKind(err, errs.KindConflict) {
			return nil
		}
		return fmt.Errorf("onboard %s into %s: %w", user.Key(), s.project.Key(), err)
	}

	return s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectMemberCreated, s.clock(), map[string]any{
		"id":        memberID,
		"projectId": s.project.Key(),
		"userId":    user.Key(),
		"role":      schema.RoleMember,
	}))
}
