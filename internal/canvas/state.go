package canvas

import (
	"collabboard/pkg/types"
)

// Tool selects how pointer input mutates the active layer.
type Tool int

const (
	ToolPen Tool = iota
	ToolEraser
)

// State is the client's authoritative view of the board: layers, tool mode,
// viewport, and history stacks. Reduce is the only way it changes, keeping
// every transition pure and independent of any rendering concern.
type State struct {
	Identity      string // local identity; used to skip echoed remote events
	IsHost        bool
	Layers        []types.Layer
	ActiveLayerID string
	Tool          Tool
	Color         string
	BrushWidth    float64
	Viewport      types.Viewport
	Drawing       bool

	// History: snapshots of the layer set being left behind. Pushed on
	// stroke completion and layer-clear; redo clears on any new mutation.
	// Local-only, unbounded.
	undoStack [][]types.Layer
	redoStack [][]types.Layer

	// Layer set captured at pointer-down, promoted to the undo stack when
	// the stroke commits.
	pending []types.Layer
}

// NewState creates the initial canvas state for an identity. The active
// layer follows the layer-affinity rule: hosts edit the host layer,
// everyone else the guest layer.
func NewState(identity string, isHost bool, layers []types.Layer) State {
	if layers == nil {
		layers = types.DefaultLayers()
	}
	active := types.GuestLayerID
	if isHost {
		active = types.HostLayerID
	}
	return State{
		Identity:      identity,
		IsHost:        isHost,
		Layers:        cloneLayers(layers),
		ActiveLayerID: active,
		Tool:          ToolPen,
		Color:         "#000000",
		BrushWidth:    5,
		Viewport:      types.Viewport{Scale: 1},
	}
}

// NewStateFrom rebinds an existing state to a host role, keeping layers,
// history, and tool settings. Used when the host identity is learned or
// changes after the state was created. The active layer follows the
// affinity rule unless the user already picked a different layer.
func NewStateFrom(s State, isHost bool) State {
	wasDefault := s.ActiveLayerID == types.GuestLayerID || s.ActiveLayerID == types.HostLayerID
	s.IsHost = isHost
	if wasDefault {
		if isHost {
			s.ActiveLayerID = types.HostLayerID
		} else {
			s.ActiveLayerID = types.GuestLayerID
		}
	}
	return s
}

// CanUndo reports whether an undo snapshot is available.
func (s State) CanUndo() bool { return len(s.undoStack) > 0 }

// CanRedo reports whether a redo snapshot is available.
func (s State) CanRedo() bool { return len(s.redoStack) > 0 }

// ActiveLayer returns a copy of the layer local edits target.
func (s State) ActiveLayer() (types.Layer, bool) {
	for _, layer := range s.Layers {
		if layer.ID == s.ActiveLayerID {
			return cloneLayer(layer), true
		}
	}
	return types.Layer{}, false
}

// VisibleLayers returns the layers currently rendered, honoring the local
// visibility toggles.
func (s State) VisibleLayers() []types.Layer {
	visible := make([]types.Layer, 0, len(s.Layers))
	for _, layer := range s.Layers {
		if layer.IsVisible {
			visible = append(visible, cloneLayer(layer))
		}
	}
	return visible
}

// LayerList returns the layers offered in the UI's layer panel. The host
// layer is hidden entirely from non-hosts; its content still renders.
func (s State) LayerList() []types.Layer {
	list := make([]types.Layer, 0, len(s.Layers))
	for _, layer := range s.Layers {
		if !s.IsHost && layer.ID == types.HostLayerID {
			continue
		}
		list = append(list, cloneLayer(layer))
	}
	return list
}

// Reduce applies one action and returns the next state. The input state is
// never mutated; layer slices are cloned before modification.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case PointerDown:
		return reducePointerDown(s, a)
	case PointerMove:
		return reducePointerMove(s, a)
	case PointerUp:
		return reducePointerUp(s)
	case SetTool:
		s.Tool = a.Tool
		return s
	case SetColor:
		s.Color = a.Color
		return s
	case SetBrushWidth:
		if a.Width > 0 {
			s.BrushWidth = a.Width
		}
		return s
	case SetActiveLayer:
		if hasLayer(s.Layers, a.LayerID) {
			s.ActiveLayerID = a.LayerID
		}
		return s
	case ToggleLayerVisibility:
		layers := cloneLayers(s.Layers)
		for i := range layers {
			if layers[i].ID == a.LayerID {
				layers[i].IsVisible = !layers[i].IsVisible
			}
		}
		s.Layers = layers
		return s
	case ClearLayer:
		return reduceClearLayer(s, a.LayerID)
	case SetViewport:
		if a.Viewport.Scale > 0 {
			s.Viewport = a.Viewport
		}
		return s
	case Undo:
		return reduceUndo(s)
	case Redo:
		return reduceRedo(s)
	case RemoteDraw:
		return reduceRemoteDraw(s, a)
	case RemoteClear:
		return reduceRemoteClear(s, a.LayerID)
	case RemoteViewport:
		if a.Viewport.Scale > 0 {
			s.Viewport = a.Viewport
		}
		return s
	default:
		return s
	}
}

func reducePointerDown(s State, a PointerDown) State {
	s.pending = cloneLayers(s.Layers)
	s.Drawing = true

	if s.Tool == ToolEraser {
		return s
	}

	pos := ToCanvas(s.Viewport, a.Pos)
	layers := cloneLayers(s.Layers)
	for i := range layers {
		if layers[i].ID == s.ActiveLayerID {
			layers[i].Lines = append(layers[i].Lines, types.Stroke{
				Points:     []float64{pos.X, pos.Y},
				Color:      s.Color,
				BrushWidth: s.BrushWidth,
			})
		}
	}
	s.Layers = layers
	return s
}

func reducePointerMove(s State, a PointerMove) State {
	if !s.Drawing {
		return s
	}

	pos := ToCanvas(s.Viewport, a.Pos)
	layers := cloneLayers(s.Layers)
	for i := range layers {
		if layers[i].ID != s.ActiveLayerID {
			continue
		}

		if s.Tool == ToolEraser {
			// Evaluated continuously: a stroke vanishes the moment the
			// cursor passes within brush width of any sampled point.
			kept := layers[i].Lines[:0:0]
			for _, line := range layers[i].Lines {
				if !strokeHit(line, pos, s.BrushWidth) {
					kept = append(kept, line)
				}
			}
			layers[i].Lines = kept
		} else if n := len(layers[i].Lines); n > 0 {
			layers[i].Lines[n-1].Points = append(layers[i].Lines[n-1].Points, pos.X, pos.Y)
		}
	}
	s.Layers = layers
	return s
}

func reducePointerUp(s State) State {
	if !s.Drawing {
		return s
	}
	s.Drawing = false
	if s.pending != nil {
		s.undoStack = appendSnapshot(s.undoStack, s.pending)
		s.redoStack = nil
		s.pending = nil
	}
	return s
}

func reduceClearLayer(s State, layerID string) State {
	if !hasLayer(s.Layers, layerID) {
		return s
	}
	s.undoStack = appendSnapshot(s.undoStack, s.Layers)
	s.redoStack = nil

	layers := cloneLayers(s.Layers)
	for i := range layers {
		if layers[i].ID == layerID {
			layers[i].Lines = []types.Stroke{}
		}
	}
	s.Layers = layers
	return s
}

func reduceUndo(s State) State {
	n := len(s.undoStack)
	if n == 0 {
		return s
	}
	s.redoStack = appendSnapshot(s.redoStack, s.Layers)
	s.Layers = cloneLayers(s.undoStack[n-1])
	s.undoStack = s.undoStack[:n-1]
	return s
}

func reduceRedo(s State) State {
	n := len(s.redoStack)
	if n == 0 {
		return s
	}
	s.undoStack = appendSnapshot(s.undoStack, s.Layers)
	s.Layers = cloneLayers(s.redoStack[n-1])
	s.redoStack = s.redoStack[:n-1]
	return s
}

func reduceRemoteDraw(s State, a RemoteDraw) State {
	if a.Email == s.Identity {
		return s // echo of our own broadcast
	}
	layers := cloneLayers(s.Layers)
	for i := range layers {
		if layers[i].ID == a.LayerID {
			layers[i].Lines = cloneStrokes(a.Lines)
		}
	}
	s.Layers = layers
	return s
}

func reduceRemoteClear(s State, layerID string) State {
	layers := cloneLayers(s.Layers)
	for i := range layers {
		if layers[i].ID == layerID {
			layers[i].Lines = []types.Stroke{}
		}
	}
	s.undoStack = appendSnapshot(s.undoStack, s.Layers)
	s.redoStack = nil
	s.Layers = layers
	return s
}

func hasLayer(layers []types.Layer, id string) bool {
	for _, layer := range layers {
		if layer.ID == id {
			return true
		}
	}
	return false
}

func appendSnapshot(stack [][]types.Layer, layers []types.Layer) [][]types.Layer {
	next := make([][]types.Layer, len(stack), len(stack)+1)
	copy(next, stack)
	return append(next, cloneLayers(layers))
}

func cloneLayers(layers []types.Layer) []types.Layer {
	cloned := make([]types.Layer, len(layers))
	for i, layer := range layers {
		cloned[i] = cloneLayer(layer)
	}
	return cloned
}

func cloneLayer(layer types.Layer) types.Layer {
	layer.Lines = cloneStrokes(layer.Lines)
	return layer
}

func cloneStrokes(strokes []types.Stroke) []types.Stroke {
	cloned := make([]types.Stroke, len(strokes))
	for i, stroke := range strokes {
		points := make([]float64, len(stroke.Points))
		copy(points, stroke.Points)
		cloned[i] = types.Stroke{
			Points:     points,
			Color:      stroke.Color,
			BrushWidth: stroke.BrushWidth,
		}
	}
	return cloned
}
