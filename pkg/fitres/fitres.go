// Package fitres reads the per run fit results (pulse height, pedestal
// and pulser fits) and exposes their parameters.
package fitres

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/diamondpsi/psiweb/pkg/metrics"
)

// Fit is a fit result with exported parameter and error slices.
type Fit struct {
	Pars   []float64 `json:"pars"`
	Errors []float64 `json:"errors"`
}

// Legacy is the accessor interface of older fit results.
type Legacy interface {
	Parameters() []float64
	Errors() []float64
}

// Result is a read-only view of a fit. The zero index of Empty() exists
// but holds no value.
type Result struct {
	pars   []*float64
	errs   []*float64
	format string
}

// FromFit wraps a fit with Pars/Errors fields. A nil fit yields Empty().
func FromFit(f *Fit) *Result {
	if f == nil {
		return Empty()
	}

	return &Result{pars: ptrs(f.Pars), errs: ptrs(f.Errors)}
}

// FromLegacy wraps an older fit result. A nil value yields Empty().
func FromLegacy(l Legacy) *Result {
	if l == nil {
		return Empty()
	}

	return &Result{pars: ptrs(l.Parameters()), errs: ptrs(l.Errors())}
}

// Empty returns the "no fit available" marker.
func Empty() *Result {
	return &Result{pars: []*float64{nil}, errs: []*float64{nil}}
}

func ptrs(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i := range vs {
		v := vs[i]
		out[i] = &v
	}

	return out
}

// WithFormat returns a copy whose string accessors use the printf verb
// format, e.g. "%.2f".
func (r *Result) WithFormat(format string) *Result {
	return &Result{pars: r.pars, errs: r.errs, format: format}
}

// IsEmpty reports whether the result holds no parameter value.
func (r *Result) IsEmpty() bool {
	for _, p := range r.pars {
		if p != nil {
			return false
		}
	}

	return true
}

// Len returns the number of parameters.
func (r *Result) Len() int {
	return len(r.pars)
}

// Parameter returns parameter i. The second result is false when i is
// out of range or the value is unset.
func (r *Result) Parameter(i int) (float64, bool) {
	return at(r.pars, i)
}

// ParError returns the error of parameter i.
func (r *Result) ParError(i int) (float64, bool) {
	return at(r.errs, i)
}

// ParameterString returns parameter i formatted, "" if unavailable.
func (r *Result) ParameterString(i int) string {
	return r.str(r.pars, i)
}

// ParErrorString returns the error of parameter i formatted, "" if
// unavailable.
func (r *Result) ParErrorString(i int) string {
	return r.str(r.errs, i)
}

// Value returns parameter i with its error.
func (r *Result) Value(i int) (metrics.Value, bool) {
	n, ok := r.Parameter(i)
	if !ok {
		return metrics.Value{}, false
	}

	s, ok := r.ParError(i)
	if !ok {
		return metrics.Value{}, false
	}

	return metrics.Value{N: n, S: s}, true
}

func at(vs []*float64, i int) (float64, bool) {
	if i < 0 || i >= len(vs) || vs[i] == nil {
		return 0, false
	}

	return *vs[i], true
}

func (r *Result) str(vs []*float64, i int) string {
	v, ok := at(vs, i)
	if !ok {
		return ""
	}

	if r.format == "" {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	return fmt.Sprintf(r.format, v)
}

// document covers both serialized shapes.
type document struct {
	Pars            []float64 `json:"pars"`
	Errors          []float64 `json:"errors"`
	Parameters      []float64 `json:"parameters"`
	ParameterErrors []float64 `json:"parameter_errors"`
}

type legacyFit struct {
	pars []float64
	errs []float64
}

func (l legacyFit) Parameters() []float64 {
	return l.pars
}

func (l legacyFit) Errors() []float64 {
	return l.errs
}

// Decode parses a JSON fit file. {"pars", "errors"} is the current
// layout, {"parameters", "parameter_errors"} the legacy one.
func Decode(data []byte) (*Result, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing fit: %w", err)
	}

	switch {
	case doc.Pars != nil:
		return FromFit(&Fit{Pars: doc.Pars, Errors: doc.Errors}), nil
	case doc.Parameters != nil:
		return FromLegacy(legacyFit{pars: doc.Parameters, errs: doc.ParameterErrors}), nil
	default:
		return nil, fmt.Errorf("fit has neither pars nor parameters")
	}
}

// MarshalJSON writes the current layout. Unset values become null.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Pars   []*float64 `json:"pars"`
		Errors []*float64 `json:"errors"`
	}{Pars: r.pars, Errors: r.errs})
}
