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

package v1alpha1

import (
	"fmt"
)

// ParameterType identifies the domain of a tunable parameter.
type ParameterType string

const (
	// ParameterTypeUniform is a continuous parameter drawn uniformly from [Min,Max).
	ParameterTypeUniform ParameterType = "uniform"
	// ParameterTypeLogUniform is a continuous parameter drawn log-uniformly from [Min,Max), Min > 0.
	ParameterTypeLogUniform ParameterType = "logUniform"
	// ParameterTypeDiscreteUniform is a continuous parameter restricted to the grid Min, Min+Step, ... Max.
	ParameterTypeDiscreteUniform ParameterType = "discreteUniform"
	// ParameterTypeInt is an integer parameter drawn from [Min,Max] inclusive.
	ParameterTypeInt ParameterType = "int"
	// ParameterTypeCategorical is a parameter drawn from an explicit list of choices.
	ParameterTypeCategorical ParameterType = "categorical"
)

// Bounds is the numeric domain of a parameter.
type Bounds struct {
	// The minimum value for a numeric parameter.
	Min float64 `json:"min" yaml:"min"`
	// The maximum value for a numeric parameter.
	Max float64 `json:"max" yaml:"max"`
}

// Parameter is a variable that is going to be tuned in a study.
type Parameter struct {
	// The name of the parameter.
	Name string `json:"name" yaml:"name"`
	// The type of the parameter.
	Type ParameterType `json:"type" yaml:"type"`
	// The domain of a numeric parameter.
	Bounds Bounds `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	// The grid step of a discrete uniform parameter.
	Step float64 `json:"step,omitempty" yaml:"step,omitempty"`
	// The choices of a categorical parameter.
	Choices []string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// Parameters is an ordered collection of parameters, i.e. a search space.
type Parameters []Parameter

// Validate rejects parameter specifications whose domain is empty or inverted.
func (p *Parameter) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name must not be empty")
	}

	switch p.Type {
	case ParameterTypeUniform, ParameterTypeInt:
		if p.Bounds.Min >= p.Bounds.Max {
			return fmt.Errorf("parameter %q: min (%g) must be less than max (%g)", p.Name, p.Bounds.Min, p.Bounds.Max)
		}
	case ParameterTypeLogUniform:
		if p.Bounds.Min <= 0 {
			return fmt.Errorf("parameter %q: min (%g) must be positive for log uniform", p.Name, p.Bounds.Min)
		}
		if p.Bounds.Min >= p.Bounds.Max {
			return fmt.Errorf("parameter %q: min (%g) must be less than max (%g)", p.Name, p.Bounds.Min, p.Bounds.Max)
		}
	case ParameterTypeDiscreteUniform:
		if p.Bounds.Min >= p.Bounds.Max {
			return fmt.Errorf("parameter %q: min (%g) must be less than max (%g)", p.Name, p.Bounds.Min, p.Bounds.Max)
		}
		if p.Step <= 0 {
			return fmt.Errorf("parameter %q: step (%g) must be positive", p.Name, p.Step)
		}
	case ParameterTypeCategorical:
		if len(p.Choices) == 0 {
			return fmt.Errorf("parameter %q: choices must not be empty", p.Name)
		}
	default:
		return fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
	}

	return nil
}

// Validate rejects search spaces containing duplicate names or invalid parameters.
func (p Parameters) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for i := range p {
		if err := p[i].Validate(); err != nil {
			return err
		}
		if _, ok := seen[p[i].Name]; ok {
			return fmt.Errorf("parameter %q: duplicate name", p[i].Name)
		}
		seen[p[i].Name] = struct{}{}
	}
	return nil
}

// Parameter returns the named parameter or nil.
func (p Parameters) Parameter(name string) *Parameter {
	for i := range p {
		if p[i].Name == name {
			return &p[i]
		}
	}
	return nil
}
