package canvas

import (
	"math"

	"collabboard/pkg/types"
)

// ToCanvas converts a screen-space point to canvas space under the viewport
// transform. Stroke points are always recorded in canvas space so pan/zoom
// never distorts already-drawn geometry.
func ToCanvas(vp types.Viewport, p types.Vec) types.Vec {
	return types.Vec{
		X: (p.X - vp.Offset.X) / vp.Scale,
		Y: (p.Y - vp.Offset.Y) / vp.Scale,
	}
}

// ToScreen converts a canvas-space point back to screen space. Inverse of
// ToCanvas modulo floating point.
func ToScreen(vp types.Viewport, p types.Vec) types.Vec {
	return types.Vec{
		X: p.X*vp.Scale + vp.Offset.X,
		Y: p.Y*vp.Scale + vp.Offset.Y,
	}
}

// strokeHit reports whether any sampled point of the stroke falls within
// radius of pos. Used by the eraser: one hit removes the whole stroke.
func strokeHit(stroke types.Stroke, pos types.Vec, radius float64) bool {
	for i := 0; i+1 < len(stroke.Points); i += 2 {
		dx := pos.X - stroke.Points[i]
		dy := pos.Y - stroke.Points[i+1]
		if math.Sqrt(dx*dx+dy*dy) < radius {
			return true
		}
	}
	return false
}
