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

// Package sampler proposes parameter assignments for new trials. Samplers are
// pure functions of their configuration, the trial history and the supplied
// random source: the same inputs always yield the same proposal.
package sampler

import (
	"math/rand"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

// Sampler proposes the parameter assignment for one trial. The history is the
// list of terminal trials in creation order; in-flight trials are only visible
// to samplers explicitly wrapped for them.
type Sampler interface {
	Sample(params v1alpha1.Parameters, trialNumber int64, history []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error)
}

// InFlightAware is implemented by samplers that want to see in-flight trials,
// e.g. the constant liar wrapper. The executor calls SetInFlight before each
// Sample call.
type InFlightAware interface {
	SetInFlight(trials []v1alpha1.Trial)
}

// Score extracts the objective value TPE-style samplers rank a historical
// trial by: the final value for succeeded trials, the latest intermediate
// value for pruned trials, nothing for failed trials.
func Score(t *v1alpha1.Trial) (float64, bool) {
	if t.FinalValue != nil {
		return *t.FinalValue, true
	}
	if t.Status == v1alpha1.TrialPruned {
		if obs := t.LatestObservation(); obs != nil {
			return obs.Value, true
		}
	}
	return 0, false
}
