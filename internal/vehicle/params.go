package vehicle

import (
	"errors"
	"fmt"
	"math"
)

// Params are the physical constants of a vehicle. Speeds are signed: forward
// motion is clamped to [MinForwardSpeed, MaxForwardSpeed] and backward motion
// to [-MaxBackwardSpeed, -MinBackwardSpeed].
type Params struct {
	Width            float64 `ini:"width"`
	Length           float64 `ini:"length"`
	Traction         float64 `ini:"traction"`
	AccelerationRate float64 `ini:"acceleration_rate"`
	BrakingRate      float64 `ini:"braking_rate"`
	MaxForwardSpeed  float64 `ini:"max_forward_speed"`
	MinForwardSpeed  float64 `ini:"min_forward_speed"`
	MaxBackwardSpeed float64 `ini:"max_backward_speed"`
	MinBackwardSpeed float64 `ini:"min_backward_speed"`
}

func DefaultParams() Params {
	return Params{
		Width:            10,
		Length:           20,
		Traction:         8,
		AccelerationRate: 10,
		BrakingRate:      5,
		MaxForwardSpeed:  200,
		MinForwardSpeed:  30,
		MaxBackwardSpeed: 50,
		MinBackwardSpeed: 5,
	}
}

func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Length <= 0:
		return fmt.Errorf("vehicle size must be positive: %gx%g", p.Width, p.Length)
	case p.Traction <= 0:
		return errors.New("traction must be positive")
	case p.AccelerationRate <= 0 || p.BrakingRate <= 0:
		return errors.New("acceleration and braking rates must be positive")
	case p.MinForwardSpeed < 0 || p.MinForwardSpeed > p.MaxForwardSpeed:
		return fmt.Errorf("invalid forward speed range [%g, %g]", p.MinForwardSpeed, p.MaxForwardSpeed)
	case p.MinBackwardSpeed < 0 || p.MinBackwardSpeed > p.MaxBackwardSpeed:
		return fmt.Errorf("invalid backward speed range [%g, %g]", p.MinBackwardSpeed, p.MaxBackwardSpeed)
	}
	return nil
}

// NextSpeed advances speed by dt seconds of acceleration in [-1, 1].
//
// Acceleration along the direction of travel uses AccelerationRate, against
// it BrakingRate. A standstill vehicle faces forward, so a negative request at
// standstill has nothing to brake and speed stays at zero. When braking
// carries the vehicle through zero within dt, the remaining time accelerates
// it in the opposite direction. There is at most one direction change per
// call.
func (p Params) NextSpeed(speed, acceleration, dt float64) float64 {
	if math.IsNaN(acceleration) || dt <= 0 {
		return speed
	}
	acceleration = math.Max(-1, math.Min(1, acceleration))
	dir := sign(speed)
	if dir == 0 {
		if acceleration <= 0 {
			return 0
		}
		dir = 1
	}
	for {
		rate := p.AccelerationRate
		if acceleration*dir < 0 {
			rate = p.BrakingRate
		}
		delta := rate * acceleration
		next := speed + delta*dt
		if speed != 0 && next*dir < 0 {
			dt -= -speed / delta
			speed = 0
			dir = -dir
			continue
		}
		return p.clamp(next, dir)
	}
}

func (p Params) clamp(speed, dir float64) float64 {
	if dir > 0 {
		return math.Max(p.MinForwardSpeed, math.Min(p.MaxForwardSpeed, speed))
	}
	return math.Max(-p.MaxBackwardSpeed, math.Min(-p.MinBackwardSpeed, speed))
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
