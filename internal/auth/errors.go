package auth

import "errors"

// Credential verification errors. All of these are terminal for the
// connection attempt that presented the credential.
var (
	ErrMissingToken   = errors.New("missing credential token")
	ErrInvalidToken   = errors.New("invalid credential token")
	ErrTokenExpired   = errors.New("credential token has expired")
	ErrMissingClaims  = errors.New("credential token missing identity claims")
	ErrInvalidSignKey = errors.New("signing key cannot be empty")
)
