package vehicle

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"neurodrive/internal/geom"
	"neurodrive/internal/track"
)

// Reason records why a vehicle stopped.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonCollision Reason = "collision"
	ReasonTickLimit Reason = "tick_limit"
	ReasonStalled   Reason = "stalled"
)

// Vehicle is a rigid rectangle with attached sensors, driven by a Controller
// along a Track. Once inactive it ignores further ticks.
type Vehicle struct {
	params     Params
	body       DirectedRectangle
	sensors    []geom.Ray
	controller Controller

	speed   float64
	segment track.SegmentID
	ticks   int
	reason  Reason
	active  bool
}

// New creates a stationary vehicle at the origin heading along +X, with the
// standard surrounding sensors.
func New(params Params, controller Controller) *Vehicle {
	body := NewAtOrigin(params.Width, params.Length)
	return &Vehicle{
		params:     params,
		body:       body,
		sensors:    body.SurroundingRays(),
		controller: controller,
		ticks:      1,
		active:     true,
	}
}

// Place moves the vehicle rigidly so its center is at position and it faces
// heading. Call it before the first tick.
func (v *Vehicle) Place(position, heading r2.Vec, segment track.SegmentID) {
	d := v.body.Direction()
	angle := angleBetween(d, heading)
	v.transform(geom.RotationAround(v.body.Center(), angle).Then(geom.Translation(r2.Sub(position, v.body.Center()))))
	v.segment = segment
}

// Tick runs one step: sense, decide, move, collide, accelerate. A collision
// deactivates the vehicle and is not an error; errors are geometry or
// controller faults.
func (v *Vehicle) Tick(t *track.Track, dt float64) error {
	if !v.active {
		return nil
	}
	distances, err := t.SenseClosest(v.sensors, v.segment)
	if err != nil {
		return err
	}
	in, err := v.controller.Control(distances, v.speed)
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}

	v.transform(v.body.CurveTransform(v.speed, v.params.Traction, in.TurningRate, dt))
	segment, err := t.UpdateActive(v.segment, v.body.Center())
	if err != nil {
		// the center may leave the track in the same step the body hits a wall
		if errors.Is(err, track.ErrSegmentNotFound) && t.Intersects(v.body.Shape, v.segment) {
			v.Deactivate(ReasonCollision)
			return nil
		}
		return err
	}
	v.segment = segment

	if t.Intersects(v.body.Shape, v.segment) {
		v.Deactivate(ReasonCollision)
		return nil
	}
	v.speed = v.params.NextSpeed(v.speed, in.Acceleration, dt)
	v.ticks++
	return nil
}

func (v *Vehicle) Deactivate(reason Reason) {
	if !v.active {
		return
	}
	v.active = false
	v.reason = reason
}

func (v *Vehicle) Active() bool {
	return v.active
}

func (v *Vehicle) Reason() Reason {
	return v.reason
}

func (v *Vehicle) Speed() float64 {
	return v.speed
}

func (v *Vehicle) Segment() track.SegmentID {
	return v.segment
}

// Ticks counts completed steps, starting at 1.
func (v *Vehicle) Ticks() int {
	return v.ticks
}

func (v *Vehicle) Body() DirectedRectangle {
	return v.body
}

// View is a read-only snapshot for renderers and observers.
type View struct {
	Corners geom.Polygon
	Center  r2.Vec
	Heading r2.Vec
	Speed   float64
	Segment track.SegmentID
	Ticks   int
	Active  bool
	Reason  Reason
}

func (v *Vehicle) View() View {
	return View{
		Corners: append(geom.Polygon(nil), v.body.Shape...),
		Center:  v.body.Center(),
		Heading: v.body.Direction(),
		Speed:   v.speed,
		Segment: v.segment,
		Ticks:   v.ticks,
		Active:  v.active,
		Reason:  v.reason,
	}
}

func (v *Vehicle) transform(a geom.Affine) {
	if a.IsIdentity() {
		return
	}
	v.body.Transform(a)
	for i := range v.sensors {
		v.sensors[i] = v.sensors[i].Transform(a)
	}
}

func angleBetween(from, to r2.Vec) float64 {
	return math.Atan2(r2.Cross(from, to), r2.Dot(from, to))
}
