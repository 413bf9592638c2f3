package router

import "errors"

var (
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrSenderNotConnected = errors.New("sender not connected to a session")
)

// Messages sent to the offending connection on authorization failures.
// These are wire-visible strings the web client displays verbatim.
const (
	msgNoDrawPermission = "You do not have permission to draw"
	msgWrongLayerHost   = "Host can only draw on the host layer"
	msgWrongLayerGuest  = "Guests can only draw on the guest layer"
	msgHostOnlyViewport = "Only the host can update the viewport"
	msgHostOnlyClear    = "Only the host can clear the layer"
	msgHostOnlyGrant    = "Only the host can grant permissions"
	msgHostOnlyRevoke   = "Only the host can revoke permissions"
	msgHostOnlyEnd      = "Only the host can end the session"
	msgUnknownSession   = "Session not found"
	msgHostNotRevocable = "The host's drawing permission cannot be revoked"
	msgInvalidPayload   = "Invalid event payload"
	msgRateLimited      = "Too many events, slow down"
)
