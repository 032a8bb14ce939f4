// Package metrics derives the per run and per run plan quantities shown
// on the site: beam flux, fit parameter means and attenuation corrected
// pulse heights, plus the display strings built from them.
package metrics

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoValues is returned when averaging an empty list.
var ErrNoValues = errors.New("no values")

// Value is a number with a standard uncertainty.
type Value struct {
	N float64 `json:"n"`
	S float64 `json:"s"`
}

// Mul returns v*o with uncorrelated error propagation.
func (v Value) Mul(o Value) Value {
	n := v.N * o.N

	return Value{
		N: n,
		S: math.Sqrt(o.N*o.N*v.S*v.S + v.N*v.N*o.S*o.S),
	}
}

func (v Value) String() string {
	return fmt.Sprintf("%.2f (%.2f)", v.N, v.S)
}

// MeanSigma returns the mean of values weighted with 1/S and the
// population weighted standard deviation. A single value is returned
// unchanged. If every weight is zero the result is (0, 0).
func MeanSigma(values []Value) (Value, error) {
	switch len(values) {
	case 0:
		return Value{}, ErrNoValues
	case 1:
		return values[0], nil
	}

	xs := make([]float64, len(values))
	ws := make([]float64, len(values))

	for i, v := range values {
		xs[i] = v.N

		if v.S != 0 {
			ws[i] = 1 / v.S
		}
	}

	mean, sigma, err := WeightedMeanSigma(xs, ws)
	if err != nil {
		return Value{}, err
	}

	return Value{N: mean, S: sigma}, nil
}

// WeightedMeanSigma returns the weighted average of xs and the square
// root of the weighted variance. Nil weights weight all values equally.
func WeightedMeanSigma(xs, ws []float64) (float64, float64, error) {
	if len(xs) == 0 {
		return 0, 0, ErrNoValues
	}

	if ws == nil {
		ws = make([]float64, len(xs))
		for i := range ws {
			ws[i] = 1
		}
	}

	if len(ws) != len(xs) {
		return 0, 0, fmt.Errorf("got %d weights for %d values", len(ws), len(xs))
	}

	var sumW, sumWX float64

	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, 0, fmt.Errorf("value %d is not finite", i)
		}

		sumW += ws[i]
		sumWX += ws[i] * x
	}

	if sumW == 0 {
		return 0, 0, nil
	}

	mean := sumWX / sumW

	var sumWD float64
	for i, x := range xs {
		d := x - mean
		sumWD += ws[i] * d * d
	}

	return mean, math.Sqrt(sumWD / sumW), nil
}
