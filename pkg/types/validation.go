package types

import (
	"encoding/json"
	"math"
	"strings"
)

const maxPayloadBytes = 262144 // 256KB: full layer stroke lists travel in one event

// IsValidEmail checks the identity format used throughout the system.
// Identities come from verified tokens, so this is a shape check, not RFC 5322.
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

// IsValidLayerID reports whether id names one of the two fixed board layers.
func IsValidLayerID(id string) bool {
	return id == HostLayerID || id == GuestLayerID
}

// IsClientEventType reports whether the type is accepted from clients.
// Server-originated types arriving inbound are rejected as invalid.
func IsClientEventType(eventType string) bool {
	switch eventType {
	case EventDrawAction,
		EventViewportUpdate,
		EventClearLayer,
		EventGrantPermission,
		EventRevokePermission,
		EventEndSession:
		return true
	default:
		return false
	}
}

// Validate checks an inbound event envelope before payload decoding.
func (e *Event) Validate() error {
	if !IsClientEventType(e.Type) {
		return ErrInvalidEventType
	}
	if len(e.Payload) > maxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// Validate checks a draw-action payload. The server relays stroke lists
// wholesale, so only structural properties are enforced.
func (p *DrawActionPayload) Validate() error {
	if !IsValidLayerID(p.LayerID) {
		return ErrInvalidLayerID
	}
	for _, line := range p.Lines {
		if len(line.Points)%2 != 0 {
			return ErrOddPointCount
		}
	}
	return nil
}

// Validate checks a viewport payload for a usable transform.
func (p *ViewportUpdatePayload) Validate() error {
	if p.Scale <= 0 || math.IsInf(p.Scale, 0) || math.IsNaN(p.Scale) {
		return ErrInvalidScale
	}
	return nil
}

// Validate checks a clear-layer payload.
func (p *ClearLayerPayload) Validate() error {
	if !IsValidLayerID(p.LayerID) {
		return ErrInvalidLayerID
	}
	return nil
}

// Validate checks a grant/revoke payload.
func (p *PermissionChangePayload) Validate() error {
	if !IsValidEmail(p.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Validate ensures a board is persistable.
func (b *Board) Validate() error {
	if len(b.Title) < 1 || len(b.Title) > 200 {
		return ErrInvalidBoardTitle
	}
	if len(b.Layers) == 0 {
		return ErrMissingLayers
	}
	if !IsValidEmail(b.CreatorEmail) {
		return ErrInvalidEmail
	}
	return nil
}

// DecodePayload unmarshals the raw payload into dst, mapping JSON errors to
// the validation error taxonomy.
func (e *Event) DecodePayload(dst interface{}) error {
	if len(e.Payload) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return ErrInvalidPayload
	}
	return nil
}
