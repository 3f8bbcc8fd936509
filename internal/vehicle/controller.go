package vehicle

import (
	"errors"
	"fmt"

	"neurodrive/internal/nn"
)

// ControlOutputs is the number of values a controlling network must produce.
const ControlOutputs = 2

// DefaultInputScale maps raw distances and speeds into the range the
// networks were trained on.
const DefaultInputScale = 1.0 / 100

var ErrControllerWidth = errors.New("network does not fit the vehicle")

// Instructions are the per-tick control signals.
type Instructions struct {
	TurningRate  float64
	Acceleration float64
}

// Controller decides how to drive from sensor distances and current speed.
type Controller interface {
	Control(distances []float64, speed float64) (Instructions, error)
}

// NetworkController feeds scaled distances, and optionally the speed, to a
// network whose two outputs are the turning rate and the acceleration.
type NetworkController struct {
	net        *nn.Network
	feedSpeed  bool
	inputScale float64
	input      []float64
}

func NewNetworkController(net *nn.Network, sensors int, feedSpeed bool) (*NetworkController, error) {
	want := sensors
	if feedSpeed {
		want++
	}
	if net.InputWidth() != want {
		return nil, fmt.Errorf("%w: network takes %d inputs, vehicle provides %d", ErrControllerWidth, net.InputWidth(), want)
	}
	if net.OutputWidth() != ControlOutputs {
		return nil, fmt.Errorf("%w: network gives %d outputs, want %d", ErrControllerWidth, net.OutputWidth(), ControlOutputs)
	}
	return &NetworkController{
		net:        net,
		feedSpeed:  feedSpeed,
		inputScale: DefaultInputScale,
		input:      make([]float64, 0, want),
	}, nil
}

func (c *NetworkController) Control(distances []float64, speed float64) (Instructions, error) {
	c.input = c.input[:0]
	for _, d := range distances {
		c.input = append(c.input, d*c.inputScale)
	}
	if c.feedSpeed {
		c.input = append(c.input, speed*c.inputScale)
	}
	out, err := c.net.Predict(c.input)
	if err != nil {
		return Instructions{}, err
	}
	return Instructions{TurningRate: out[0], Acceleration: out[1]}, nil
}

// ControllerFunc adapts a plain function to Controller.
type ControllerFunc func(distances []float64, speed float64) (Instructions, error)

func (f ControllerFunc) Control(distances []float64, speed float64) (Instructions, error) {
	return f(distances, speed)
}
