/*
Package identity verifies identity provider tokens and carries the
authenticated user through a request context.

The engine never sees credentials. A signed bearer token (HS256) names the
subject and carries the profile the provider knows about: email, display
name, photo URL. The store rules and the API read the subject back with
CurrentUserID.
*/
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/oracoin/reward-engine/generic"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// =============================================================================
// CONTEXT
// =============================================================================

type ctxKey struct{}

// WithUser returns a copy of ctx carrying id as the authenticated user.
func WithUser(ctx context.Context, id generic.UserID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CurrentUserID returns the authenticated user, if any.
func CurrentUserID(ctx context.Context) (generic.UserID, bool) {
	id, ok := ctx.Value(ctxKey{}).(generic.UserID)
	return id, ok && id != ""
}

// =============================================================================
// TOKENS
// =============================================================================

// Claims are the identity provider claims the engine consumes.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	Secret []byte
	Issuer string

	// Now is the token clock. Defaults to time.Now.
	Now func() time.Time
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{Secret: []byte(secret), Issuer: issuer, Now: time.Now}
}

// Verify validates token and returns its subject and sanitized profile.
func (v *Verifier) Verify(token string) (generic.UserID, generic.Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", generic.Profile{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return "", generic.Profile{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", generic.Profile{}, ErrInvalidToken
	}

	return generic.UserID(claims.Subject), SanitizeProfile(generic.Profile{
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}), nil
}

// Sign issues a token for id. Used by tests and local development; in
// production tokens come from the identity provider.
func (v *Verifier) Sign(id generic.UserID, profile generic.Profile, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email:   profile.Email,
		Name:    profile.DisplayName,
		Picture: profile.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id),
			Issuer:    v.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}

func (v *Verifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

// =============================================================================
// PROFILE
// =============================================================================

var strict = bluemonday.StrictPolicy()

// SanitizeProfile strips markup from the display name and drops photo URLs
// that are not plain http(s).
func SanitizeProfile(p generic.Profile) generic.Profile {
	p.Email = strings.TrimSpace(p.Email)
	p.DisplayName = strings.TrimSpace(strict.Sanitize(p.DisplayName))
	if u, err := url.Parse(strings.TrimSpace(p.PhotoURL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		p.PhotoURL = ""
	} else {
		p.PhotoURL = u.String()
	}
	return p
}
