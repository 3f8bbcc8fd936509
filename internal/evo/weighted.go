package evo

import (
	"errors"
	"fmt"
	"math/rand"
)

var ErrNoOperatorChoice = errors.New("no operator with positive weight")

// Weighted pairs an operator with its relative selection weight.
type Weighted[T any] struct {
	Operator T
	Weight   float64
}

func validateWeighted[T any](kind string, items []Weighted[T]) error {
	positive := false
	for i, item := range items {
		if item.Weight < 0 {
			return fmt.Errorf("%s weight must be >= 0 at index %d", kind, i)
		}
		if item.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return fmt.Errorf("%s: %w", kind, ErrNoOperatorChoice)
	}
	return nil
}

// choose draws one operator from the categorical distribution given by the
// weights. Items must have been validated.
func choose[T any](rng *rand.Rand, items []Weighted[T]) T {
	total := 0.0
	for _, item := range items {
		total += item.Weight
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, item := range items {
		acc += item.Weight
		if pick < acc {
			return item.Operator
		}
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Weight > 0 {
			return items[i].Operator
		}
	}
	return items[len(items)-1].Operator
}
