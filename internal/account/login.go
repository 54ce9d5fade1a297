package account

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
)

const (
	loginPinDigits   = 6
	loginPinLifetime = 10 * time.Minute

	opRequestLogin = "account.request_login"
	opConfirmLogin = "account.confirm_login"
)

// RequestLogin stores a short-lived PIN keyed by email and announces it on
// the bus so the outbound fan-out can deliver it. A repeated request for the
// same email replaces the previous PIN.
func (s *Service) RequestLogin(ctx context.Context, email string) error {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return errs.BadRequest(opRequestLogin, "invalid_email", nil)
	}

	pin, err := mintPin()
	if err != nil {
		return errs.Internal(opRequestLogin, "pin_generation_failed", err)
	}
	expiresAt := s.clock().Add(loginPinLifetime).UTC()
	if err := s.store.Put(ctx, store.Item{
		ID:   normalized,
		Type: schema.TypeEmailLoginRequest,
		Attributes: map[string]string{
			schema.AttrEmail: normalized,
			schema.AttrPIN:   pin,
		},
		ExpiresAt: &expiresAt,
	}); err != nil {
		return err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindLoginRequested, s.clock(), map[string]any{
		"email": normalized,
		"pin":   pin,
	})); err != nil {
		return errs.Internal(opRequestLogin, "notify_failed", err)
	}
	return nil
}

// ConfirmLogin checks the submitted PIN against the stored request. The
// comparison is constant-time and the request is consumed on success, so a
// PIN works at most once.
func (s *Service) ConfirmLogin(ctx context.Context, email, pin string) error {
	normalized := strings.ToLower(strings.TrimSpace(email))
	item, err := s.store.GetByKey(ctx, normalized, schema.TypeEmailLoginRequest)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return errs.AccessDenied(opConfirmLogin, "no_pending_login", err)
		}
		return err
	}

	stored, _ := item.Attribute(schema.AttrPIN)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(pin)) != 1 {
		return errs.AccessDenied(opConfirmLogin, "pin_mismatch", nil)
	}

	if err := s.store.ConditionalDelete(ctx, item.ID, schema.TypeEmailLoginRequest, item.Version); err != nil {
		if errs.IsKind(err, errs.KindConflict) || errs.IsKind(err, errs.KindNotFound) {
			return errs.AccessDenied(opConfirmLogin, "login_already_consumed", err)
		}
		return err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindLoginSucceeded, s.clock(), map[string]any{
		"email": normalized,
	})); err != nil {
		return errs.Internal(opConfirmLogin, "notify_failed", err)
	}
	return nil
}

func mintPin() (string, error) {
	digits := make([]byte, loginPinDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
