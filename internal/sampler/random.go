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

package sampler

import (
	"math/rand"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
)

// Random draws every parameter independently and uniformly from its unit
// range. It is the baseline sampler and the fallback for model-based samplers
// that do not have enough history yet.
type Random struct{}

var _ Sampler = Random{}

// Sample proposes a uniform random assignment.
func (Random) Sample(params v1alpha1.Parameters, _ int64, _ []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error) {
	assignments := make(v1alpha1.Assignments, 0, len(params))
	for i := range params {
		p := &params[i]
		assignments = append(assignments, v1alpha1.Assignment{
			ParameterName: p.Name,
			Value:         searchspace.FromUnit(p, searchspace.SampleUnit(p, rng)),
		})
	}
	return assignments, nil
}
