package types

import (
	"encoding/json"
)

// Event type constants for the realtime channel. Names are part of the wire
// contract with web clients and must not change.
const (
	EventParticipantsUpdated = "participants-updated"
	EventHostUpdated         = "host-updated"
	EventPermissionUpdated   = "permission-updated"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventDrawAction          = "draw-action"
	EventViewportUpdate      = "viewport-update"
	EventClearLayer          = "clear-layer"
	EventGrantPermission     = "grant-permission"
	EventRevokePermission    = "revoke-permission"
	EventEndSession          = "end-session"
	EventSessionEnded        = "session-ended"
	EventError               = "error"
)

// Event is the envelope for every message on the realtime channel, in both
// directions. Payload stays raw until the router knows the concrete shape.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an outbound event envelope.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	if payload == nil {
		return &Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, Payload: raw}, nil
}

// DrawActionPayload carries a layer's full current stroke list. Email is
// stamped by the server on relay; client-supplied values are ignored.
type DrawActionPayload struct {
	LayerID string   `json:"layerId"`
	Lines   []Stroke `json:"lines"`
	Email   string   `json:"email,omitempty"`
}

// ViewportUpdatePayload is the host-authoritative pan/zoom broadcast.
type ViewportUpdatePayload struct {
	Offset Vec     `json:"offset"`
	Scale  float64 `json:"scale"`
}

// ClearLayerPayload names the layer whose strokes are dropped.
type ClearLayerPayload struct {
	LayerID string `json:"layerId"`
}

// PermissionChangePayload is the client request to grant or revoke drawing
// permission for a target identity.
type PermissionChangePayload struct {
	BoardID string `json:"boardId"`
	Email   string `json:"email"`
}

// PermissionUpdatedPayload is the server broadcast after a grant/revoke or
// at admission when peers are re-synchronized.
type PermissionUpdatedPayload struct {
	Email   string `json:"email"`
	CanDraw bool   `json:"canDraw"`
}

// HostUpdatedPayload announces the session host.
type HostUpdatedPayload struct {
	Host string `json:"host"`
}

// EndSessionPayload is the host request to terminate a session.
type EndSessionPayload struct {
	BoardID string `json:"boardId"`
}

// ErrorPayload carries a human-readable error message to one client.
type ErrorPayload struct {
	Message string `json:"message"`
}
