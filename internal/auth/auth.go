package auth

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"collabboard/pkg/types"
)

// Identity is the stable user identity extracted from a verified credential.
// Email is the identity key used throughout session and permission state;
// Username is display-only.
type Identity struct {
	Email    string
	Username string
}

// Verifier validates opaque HS256 credentials and extracts identities.
// Token issuance lives with the external auth service; this side only needs
// the shared signing key.
type Verifier struct {
	key []byte
}

// NewVerifier creates a verifier for the given signing key.
func NewVerifier(key []byte) (*Verifier, error) {
	if len(key) == 0 {
		return nil, ErrInvalidSignKey
	}
	return &Verifier{key: key}, nil
}

// Verify validates the token signature and expiry, then extracts the
// identity claims. Any failure is terminal for the presenting connection.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	parsed, err := gojwt.Parse(token, func(t *gojwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	identity := &Identity{}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if username, ok := claims["username"].(string); ok {
		identity.Username = username
	}

	if !types.IsValidEmail(identity.Email) {
		return nil, ErrMissingClaims
	}
	if identity.Username == "" {
		identity.Username = identity.Email
	}

	return identity, nil
}

// Signer mints credentials with the same claim shape the verifier expects.
// Used by tests and the Go client; production tokens come from the external
// auth service.
type Signer struct {
	key []byte
	ttl time.Duration
}

// NewSigner creates a signer with a 1 hour token lifetime.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrInvalidSignKey
	}
	return &Signer{key: key, ttl: time.Hour}, nil
}

// Sign issues a token for the given identity.
func (s *Signer) Sign(identity Identity) (string, error) {
	now := time.Now()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"email":    identity.Email,
		"username": identity.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.key)
}
