package ident

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDs are lexicographically sortable, encode their creation time to the
// millisecond, and stay monotonic within a process when minted inside the
// same millisecond.

const clockDrift = 5 * time.Minute

var (
	// ErrInvalidULID indicates the value is not a canonical 26-character ULID.
	ErrInvalidULID = errors.New("ident: invalid ulid")
	// ErrULIDOutOfRange indicates the embedded timestamp violates the
	// freshness policy it was verified against.
	ErrULIDOutOfRange = errors.New("ident: ulid timestamp out of range")
)

var ulidPattern = regexp.MustCompile(`^[0-7][0-9A-HJKMNP-TV-Z]{25}$`)

// ULIDSource mints sortable unique identifiers.
type ULIDSource struct {
	mu      sync.Mutex
	clock   func() time.Time
	entropy *ulid.MonotonicEntropy
}

// NewULIDSource constructs a source backed by monotonic entropy. A nil clock
// defaults to time.Now.
func NewULIDSource(clock func() time.Time) *ULIDSource {
	if clock == nil {
		clock = time.Now
	}
	seed := rand.New(rand.NewSource(clock().UnixNano()))
	return &ULIDSource{
		clock:   clock,
		entropy: ulid.Monotonic(seed, 0),
	}
}

// NewID mints a ULID for the current clock reading.
func (s *ULIDSource) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, err := ulid.New(ulid.Timestamp(s.clock().UTC()), s.entropy)
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ParseULID checks the canonical encoding and returns the parsed value.
func ParseULID(raw string) (ulid.ULID, error) {
	if !ulidPattern.MatchString(raw) {
		return ulid.ULID{}, fmt.Errorf("%w: %q", ErrInvalidULID, raw)
	}
	value, err := ulid.ParseStrict(raw)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("%w: %q", ErrInvalidULID, raw)
	}
	return value, nil
}

// VerifyRecentULID accepts only identifiers minted within five minutes of now
// in either direction. Used for freshly created entities.
func VerifyRecentULID(raw string, now time.Time) error {
	value, err := ParseULID(raw)
	if err != nil {
		return err
	}
	stamp := ulid.Time(value.Time())
	if stamp.After(now.Add(clockDrift)) {
		return fmt.Errorf("%w: %q is future-dated", ErrULIDOutOfRange, raw)
	}
	if stamp.Before(now.Add(-clockDrift)) {
		return fmt.Errorf("%w: %q is too old", ErrULIDOutOfRange, raw)
	}
	return nil
}

// VerifyOlderULID rejects only future-dated identifiers. Used when
// referencing entities that may be arbitrarily old.
func VerifyOlderULID(raw string, now time.Time) error {
	value, err := ParseULID(raw)
	if err != nil {
		return err
	}
	if ulid.Time(value.Time()).After(now.Add(clockDrift)) {
		return fmt.Errorf("%w: %q is future-dated", ErrULIDOutOfRange, raw)
	}
	return nil
}
