package types

import (
	"time"
)

// Layer IDs are fixed by convention: the first layer belongs to the board's
// creator (the session host), the second to everyone else.
const (
	HostLayerID  = "layer-0"
	GuestLayerID = "layer-1"
)

// Stroke is an ordered point sequence with style attributes. Points alternate
// x/y and grow append-only while the stroke is being drawn.
type Stroke struct {
	Points     []float64 `json:"points"`
	Color      string    `json:"color"`
	BrushWidth float64   `json:"brushWidth"`
}

// Layer is a named, independently visible collection of strokes.
// IsVisible is local presentation state and is never synchronized.
type Layer struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Lines     []Stroke `json:"lines"`
	IsVisible bool     `json:"isVisible"`
}

// Board is the persisted whiteboard record owned by the board store.
// The realtime core reads it once at session creation and writes it back
// only on an explicit checkpoint save.
type Board struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Layers       []Layer   `json:"layers" db:"layers"`
	CreatorEmail string    `json:"creatorEmail" db:"creator_email"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultLayers returns the two-layer set every new board starts with.
func DefaultLayers() []Layer {
	return []Layer{
		{ID: HostLayerID, Name: "Host Layer", Lines: []Stroke{}, IsVisible: true},
		{ID: GuestLayerID, Name: "Guest Layer", Lines: []Stroke{}, IsVisible: true},
	}
}

// Participant identifies a connected user as presented to peers.
type Participant struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Viewport is the host-authoritative pan/zoom state. Guests must not diverge
// from the last host-broadcast value.
type Viewport struct {
	Offset Vec     `json:"offset"`
	Scale  float64 `json:"scale"`
}

// Vec is a 2D point or offset in canvas or screen space.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
