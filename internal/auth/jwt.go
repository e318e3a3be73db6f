// Package auth verifies the signed bearer tokens WebSocket clients present
// at connection time.
//
// TOKEN STRUCTURE:
//
// Header:
//
//	{"alg": "HS256", "typ": "JWT"}
//
// Payload (Claims):
//
//	{
//	  "user_id": 123,
//	  "username": "jdoe",
//	  "groups": ["is_admin"],
//	  "exp": 1700086400
//	}
//
// Signature: HMACSHA256(base64Url(header) + "." + base64Url(payload), secret)
//
// Unlike the REST API this package was cloned from, the gateway never issues
// tokens and never tracks sessions: a token is either valid at the moment a
// connection is admitted or it is not, and re-verification after admission
// is out of scope (see spec.md §3, Claims invariant).
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSignature, ErrMalformed, and ErrExpired classify why a token was
// rejected, mirroring the AuthFailure taxonomy in spec.md §7.
var (
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrMalformed        = errors.New("auth: malformed token")
	ErrExpired          = errors.New("auth: token expired")
)

// Claims is the verified payload admitting a connection. It is immutable for
// the life of the connection (spec.md §3).
type Claims struct {
	UserID   uint64
	Username string
	Groups   map[string]struct{}
	Exp      time.Time
}

// HasGroup reports whether the claims carry the named group.
func (c *Claims) HasGroup(name string) bool {
	_, ok := c.Groups[name]
	return ok
}

// rawClaims is the wire shape of the JWT payload. Groups arrive as a JSON
// array; UserID may arrive as a JSON number or a numeric string depending on
// the issuer, so it is decoded leniently.
type rawClaims struct {
	UserID   json.Number `json:"user_id"`
	Username string      `json:"username"`
	Groups   []string    `json:"groups"`
	jwt.RegisteredClaims
}

// Verifier validates signed bearer tokens against a single symmetric secret
// configured once at startup (spec.md §4.1). It performs no I/O and caches
// nothing: verification is a pure function of the token bytes and the
// secret.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier around the JWT_SECRET configured at startup.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify decodes and validates token, returning the admitted Claims or one
// of ErrInvalidSignature, ErrMalformed, ErrExpired.
func (v *Verifier) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &rawClaims{}, func(t *jwt.Token) (interface{}, error) {
		// SECURITY: reject "alg":"none" and any non-HMAC algorithm to block
		// algorithm-substitution attacks.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	raw, ok := parsed.Claims.(*rawClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	userID, err := strconv.ParseUint(raw.UserID.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: user_id %q: %v", ErrMalformed, raw.UserID.String(), err)
	}

	var exp time.Time
	if raw.ExpiresAt != nil {
		exp = raw.ExpiresAt.Time
	}
	if !exp.IsZero() && time.Now().After(exp) {
		return nil, ErrExpired
	}

	groups := make(map[string]struct{}, len(raw.Groups))
	for _, g := range raw.Groups {
		groups[g] = struct{}{}
	}

	return &Claims{
		UserID:   userID,
		Username: raw.Username,
		Groups:   groups,
		Exp:      exp,
	}, nil
}
