/*
Copyright 2020 GramLabs, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package searchspace

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/api/v1alpha1/numstr"
)

// The unit transform maps every parameter kind onto a continuous interval so
// the density estimators never need to know about integers, grids or log
// scales: uniform is the identity, log uniform becomes uniform on
// (log min, log max), int becomes uniform on (min-0.5, max+0.5) rounded on the
// way out, discrete uniform snaps to the nearest grid point on the way out,
// and categorical maps choices to their index.

// IsContinuous checks whether the parameter occupies a continuous interval in
// unit space; only categorical parameters do not.
func IsContinuous(p *v1alpha1.Parameter) bool {
	return p.Type != v1alpha1.ParameterTypeCategorical
}

// UnitRange returns the bounds of the parameter in unit space.
func UnitRange(p *v1alpha1.Parameter) (lo, hi float64) {
	switch p.Type {
	case v1alpha1.ParameterTypeUniform:
		return p.Bounds.Min, p.Bounds.Max
	case v1alpha1.ParameterTypeLogUniform:
		return math.Log(p.Bounds.Min), math.Log(p.Bounds.Max)
	case v1alpha1.ParameterTypeInt:
		return p.Bounds.Min - 0.5, p.Bounds.Max + 0.5
	case v1alpha1.ParameterTypeDiscreteUniform:
		return p.Bounds.Min - p.Step/2, p.Bounds.Max + p.Step/2
	case v1alpha1.ParameterTypeCategorical:
		return 0, float64(len(p.Choices))
	}
	return 0, 0
}

// ToUnit maps an assigned value into unit space.
func ToUnit(p *v1alpha1.Parameter, v numstr.NumberOrString) (float64, error) {
	switch p.Type {
	case v1alpha1.ParameterTypeUniform, v1alpha1.ParameterTypeDiscreteUniform:
		return v.Float64Value(), nil
	case v1alpha1.ParameterTypeLogUniform:
		f := v.Float64Value()
		if f <= 0 {
			return 0, fmt.Errorf("parameter %q: value %g is not positive", p.Name, f)
		}
		return math.Log(f), nil
	case v1alpha1.ParameterTypeInt:
		return float64(v.Int64Value()), nil
	case v1alpha1.ParameterTypeCategorical:
		for i, c := range p.Choices {
			if c == v.String() {
				return float64(i), nil
			}
		}
		return 0, fmt.Errorf("parameter %q: %q is not a choice", p.Name, v.String())
	}
	return 0, fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
}

// FromUnit maps a unit space point back to an assignment value, snapping to
// the parameter's grid and clamping into bounds.
func FromUnit(p *v1alpha1.Parameter, x float64) numstr.NumberOrString {
	switch p.Type {
	case v1alpha1.ParameterTypeUniform:
		return numstr.FromFloat64(clamp(x, p.Bounds.Min, p.Bounds.Max))
	case v1alpha1.ParameterTypeLogUniform:
		return numstr.FromFloat64(clamp(math.Exp(x), p.Bounds.Min, p.Bounds.Max))
	case v1alpha1.ParameterTypeInt:
		v := math.Round(x)
		return numstr.FromInt64(int64(clamp(v, p.Bounds.Min, p.Bounds.Max)))
	case v1alpha1.ParameterTypeDiscreteUniform:
		k := math.Round((x - p.Bounds.Min) / p.Step)
		v := p.Bounds.Min + k*p.Step
		return numstr.FromFloat64(clamp(v, p.Bounds.Min, p.Bounds.Max))
	case v1alpha1.ParameterTypeCategorical:
		i := int(math.Floor(x))
		if i < 0 {
			i = 0
		}
		if i >= len(p.Choices) {
			i = len(p.Choices) - 1
		}
		return numstr.FromString(p.Choices[i])
	}
	return numstr.NumberOrString{}
}

// SampleUnit draws a point uniformly from the parameter's unit range.
func SampleUnit(p *v1alpha1.Parameter, rng *rand.Rand) float64 {
	lo, hi := UnitRange(p)
	return lo + rng.Float64()*(hi-lo)
}

// Contains reports whether the assigned value satisfies the parameter
// specification.
func Contains(p *v1alpha1.Parameter, v numstr.NumberOrString) bool {
	switch p.Type {
	case v1alpha1.ParameterTypeUniform, v1alpha1.ParameterTypeLogUniform:
		f := v.Float64Value()
		return f >= p.Bounds.Min && f <= p.Bounds.Max
	case v1alpha1.ParameterTypeInt:
		i := float64(v.Int64Value())
		return i >= p.Bounds.Min && i <= p.Bounds.Max
	case v1alpha1.ParameterTypeDiscreteUniform:
		f := v.Float64Value()
		if f < p.Bounds.Min || f > p.Bounds.Max {
			return false
		}
		k := (f - p.Bounds.Min) / p.Step
		return math.Abs(k-math.Round(k)) < 1e-9
	case v1alpha1.ParameterTypeCategorical:
		for _, c := range p.Choices {
			if c == v.String() {
				return true
			}
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
