package ident

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidUserID indicates the value is not an @-prefixed slug.
	ErrInvalidUserID = errors.New("ident: invalid user id")
	// ErrInvalidOrganizationID indicates the value is not a $-prefixed slug.
	ErrInvalidOrganizationID = errors.New("ident: invalid organization id")
	// ErrInvalidProjectID indicates the value is not a $org#project pair.
	ErrInvalidProjectID = errors.New("ident: invalid project id")
)

var (
	userPattern         = regexp.MustCompile(`(?i)^@[a-z0-9_-]+$`)
	organizationPattern = regexp.MustCompile(`(?i)^\$[a-z0-9_-]+$`)
	projectPattern      = regexp.MustCompile(`(?i)^\$[a-z0-9_-]+#[a-z0-9_-]+$`)
)

// UserID is a validated @-prefixed user slug. The original casing is kept for
// display; Key() folds to lowercase for store access.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(raw string) (UserID, error) {
	if !userPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	return UserID(raw), nil
}

// IsUserID reports whether the value parses as a user id.
func IsUserID(raw string) bool {
	_, err := NewUserID(raw)
	return err == nil
}

func (id UserID) String() string {
	return string(id)
}

// Key returns the lowercase form used as a store key.
func (id UserID) Key() string {
	return strings.ToLower(string(id))
}

// OrganizationID is a validated $-prefixed organization slug.
type OrganizationID string

// NewOrganizationID validates raw input and returns an OrganizationID.
func NewOrganizationID(raw string) (OrganizationID, error) {
	if !organizationPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrganizationID, raw)
	}
	return OrganizationID(raw), nil
}

// IsOrganizationID reports whether the value parses as an organization id.
func IsOrganizationID(raw string) bool {
	_, err := NewOrganizationID(raw)
	return err == nil
}

func (id OrganizationID) String() string {
	return string(id)
}

// Key returns the lowercase form used as a store key.
func (id OrganizationID) Key() string {
	return strings.ToLower(string(id))
}

// ProjectID is a validated `$org#project` identifier. It decomposes back into
// its organization and local project parts.
type ProjectID string

// NewProjectID validates raw input and returns a ProjectID.
func NewProjectID(raw string) (ProjectID, error) {
	if !projectPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectID, raw)
	}
	return ProjectID(raw), nil
}

// JoinProjectID composes a project id from an organization id and a local slug.
func JoinProjectID(org OrganizationID, local string) (ProjectID, error) {
	return NewProjectID(org.String() + "#" + local)
}

// IsProjectID reports whether the value parses as a project id.
func IsProjectID(raw string) bool {
	_, err := NewProjectID(raw)
	return err == nil
}

func (id ProjectID) String() string {
	return string(id)
}

// Key returns the lowercase form used as a store key.
func (id ProjectID) Key() string {
	return strings.ToLower(string(id))
}

// Split decomposes the project id into its organization id and local project
// slug. A malformed value yields empty parts rather than an error so callers
// can branch on the zero value.
func (id ProjectID) Split() (OrganizationID, string) {
	raw := string(id)
	hash := strings.Index(raw, "#")
	if hash < 0 {
		return "", ""
	}
	org, err := NewOrganizationID(raw[:hash])
	if err != nil {
		return "", ""
	}
	local := raw[hash+1:]
	if local == "" {
		return "", ""
	}
	return org, local
}

// Organization returns the organization id embedded in the project id.
func (id ProjectID) Organization() OrganizationID {
	org, _ := id.Split()
	return org
}
