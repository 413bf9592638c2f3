package canvas

import (
	"collabboard/pkg/types"
)

// Action is one transition input to the canvas reducer. Local pointer and
// tool actions originate from the UI; Remote* actions arrive off the wire.
type Action interface {
	isAction()
}

// PointerDown begins a stroke (pen) or an erase drag (eraser). Pos is in
// screen space; the reducer applies the viewport transform.
type PointerDown struct {
	Pos types.Vec
}

// PointerMove extends the stroke in progress or continues erasing.
type PointerMove struct {
	Pos types.Vec
}

// PointerUp commits the stroke in progress to the undo history.
type PointerUp struct{}

// SetTool switches between pen and eraser.
type SetTool struct {
	Tool Tool
}

// SetColor changes the pen color for subsequent strokes.
type SetColor struct {
	Color string
}

// SetBrushWidth changes the brush width for drawing and erasing.
type SetBrushWidth struct {
	Width float64
}

// SetActiveLayer selects the layer local edits target.
type SetActiveLayer struct {
	LayerID string
}

// ToggleLayerVisibility flips a layer's local visibility. Never synchronized.
type ToggleLayerVisibility struct {
	LayerID string
}

// ClearLayer drops all strokes on a layer and records an undo snapshot.
type ClearLayer struct {
	LayerID string
}

// SetViewport applies a local pan/zoom change (host side).
type SetViewport struct {
	Viewport types.Viewport
}

// Undo restores the previous snapshot; Redo is its mirror. Both are
// local-only and never broadcast.
type Undo struct{}
type Redo struct{}

// RemoteDraw reconciles a peer's draw-action: the named layer's stroke list
// is replaced wholesale (last writer wins at layer granularity). Events
// stamped with the local identity are skipped; they echo our own edits.
type RemoteDraw struct {
	LayerID string
	Lines   []types.Stroke
	Email   string
}

// RemoteClear reconciles a clear-layer broadcast.
type RemoteClear struct {
	LayerID string
}

// RemoteViewport adopts the host's broadcast pan/zoom state. Guests must not
// diverge from it.
type RemoteViewport struct {
	Viewport types.Viewport
}

func (PointerDown) isAction()           {}
func (PointerMove) isAction()           {}
func (PointerUp) isAction()             {}
func (SetTool) isAction()               {}
func (SetColor) isAction()              {}
func (SetBrushWidth) isAction()         {}
func (SetActiveLayer) isAction()        {}
func (ToggleLayerVisibility) isAction() {}
func (ClearLayer) isAction()            {}
func (SetViewport) isAction()           {}
func (Undo) isAction()                  {}
func (Redo) isAction()                  {}
func (RemoteDraw) isAction()            {}
func (RemoteClear) isAction()           {}
func (RemoteViewport) isAction()        {}
