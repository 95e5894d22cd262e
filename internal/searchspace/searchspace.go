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

// Package searchspace resolves the tunable parameters of a study and maps
// assigned values to and from the unit transform the samplers operate in.
package searchspace

import (
	"fmt"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

// Resolver produces the concrete search space for a trial. Conditional
// dimensions are supported by returning different parameter sets for
// different trials; a dimension name must keep the same specification on
// every trial where it is present.
type Resolver func(trialNumber int64) (v1alpha1.Parameters, error)

// Static returns a resolver for a search space that is the same on every trial.
func Static(params v1alpha1.Parameters) Resolver {
	return func(int64) (v1alpha1.Parameters, error) {
		return params, nil
	}
}

// Resolve validates and returns the search space for the supplied trial.
func (r Resolver) Resolve(trialNumber int64) (v1alpha1.Parameters, error) {
	params, err := r(trialNumber)
	if err != nil {
		return nil, fmt.Errorf("resolve search space for trial %d: %w", trialNumber, err)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// CheckAssignments verifies that every assignment satisfies its parameter
// specification and that no parameter is missing. An out of range value here
// indicates a sampler bug and is treated as fatal by the caller.
func CheckAssignments(params v1alpha1.Parameters, assignments v1alpha1.Assignments) error {
	for i := range params {
		p := &params[i]
		a := assignments.Get(p.Name)
		if a == nil {
			return fmt.Errorf("parameter %q: missing assignment", p.Name)
		}
		if !Contains(p, a.Value) {
			return fmt.Errorf("parameter %q: assignment %s is out of range", p.Name, a.Value.String())
		}
	}
	return nil
}
