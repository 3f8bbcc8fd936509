package nn

import "fmt"

// Derivative evaluates the registered derivative of the named activation at x.
// Feed-forward evaluation never needs it.
func Derivative(name string, x float64) (float64, error) {
	a, err := LookupActivation(name)
	if err != nil {
		return 0, err
	}
	if a.Derivative == nil {
		return 0, fmt.Errorf("unsupported derivative: %s", name)
	}
	return a.Derivative(x), nil
}
