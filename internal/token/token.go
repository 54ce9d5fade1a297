package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetime is fixed; callers re-authenticate daily.
const tokenLifetime = 24 * time.Hour

var (
	ErrMissingPrivateKey = errors.New("token: private key required")
	ErrMissingPublicKey  = errors.New("token: public key required")
	ErrMissingEmail      = errors.New("token: email claim required")
	ErrMissingSubject    = errors.New("token: missing subject")
	ErrInvalidToken      = errors.New("token: invalid token")
	ErrExpiredToken      = errors.New("token: token expired")
)

// Claims is the JWT payload shared by both identity shapes. An email-context
// token carries only the verified email; a user-context token additionally
// names the claimed user id in the registered subject.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssuerConfig configures the identity token signer.
type IssuerConfig struct {
	PrivateKey ed25519.PrivateKey
	Issuer     string
	Audience   string
	Clock      func() time.Time
}

// Issuer signs identity assertions with the private half of the key pair.
type Issuer struct {
	privateKey ed25519.PrivateKey
	issuer     string
	audience   string
	clock      func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.PrivateKey) == 0 {
		return nil, ErrMissingPrivateKey
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Issuer{
		privateKey: cfg.PrivateKey,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		clock:      clock,
	}, nil
}

// IssueEmailToken issues an email-context assertion: the sole claim is a
// verified email, minted after a successful PIN login.
func (i *Issuer) IssueEmailToken(email string) (string, error) {
	return i.sign(email, "")
}

// IssueUserToken issues a user-context assertion: a verified email plus the
// user id the caller has claimed, carried as the subject.
func (i *Issuer) IssueUserToken(email, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingSubject
	}
	return i.sign(email, userID)
}

func (i *Issuer) sign(email, subject string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", ErrMissingEmail
	}

	now := i.clock().UTC()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.privateKey)
}

// VerifierConfig configures token verification. Only the public half of the
// key pair is needed.
type VerifierConfig struct {
	PublicKey ed25519.PublicKey
	Issuer    string
	Audience  string
	Clock     func() time.Time
}

// Verifier checks identity assertions against the public key.
type Verifier struct {
	publicKey ed25519.PublicKey
	issuer    string
	audience  string
	clock     func() time.Time
}

// NewVerifier constructs a Verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.PublicKey) == 0 {
		return nil, ErrMissingPublicKey
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		publicKey: cfg.PublicKey,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		clock:     clock,
	}, nil
}

// Identity is the verified content of a token. UserID is empty for
// email-context tokens.
type Identity struct {
	Email  string
	UserID string
}

// VerifyEmailToken validates an email-context assertion. The subject is
// ignored even when present.
func (v *Verifier) VerifyEmailToken(tokenString string) (Identity, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Email: claims.Email}, nil
}

// VerifyUserToken validates a user-context assertion. A token without a
// subject claim fails with ErrMissingSubject.
func (v *Verifier) VerifyUserToken(tokenString string) (Identity, error) {
	claims, err := v.parse(tokenString)
	if err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrMissingSubject
	}
	return Identity{Email: claims.Email, UserID: claims.Subject}, nil
}

func (v *Verifier) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		strings.TrimSpace(tokenString),
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return v.publicKey, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, ErrMissingEmail
	}
	return claims, nil
}
