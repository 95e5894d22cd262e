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
	"sync"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

// WarmStart prepends an imported history to the live history before
// delegating. The imported trials are copied by value into the study; they are
// never referenced across study boundaries.
type WarmStart struct {
	Sampler  Sampler
	Imported []v1alpha1.Trial
}

var _ Sampler = &WarmStart{}

// Sample delegates with the imported trials prefixed onto the history.
func (w *WarmStart) Sample(params v1alpha1.Parameters, trialNumber int64, history []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error) {
	merged := make([]v1alpha1.Trial, 0, len(w.Imported)+len(history))
	merged = append(merged, w.Imported...)
	merged = append(merged, history...)
	return w.Sampler.Sample(params, trialNumber, merged, rng)
}

// ConstantLiar makes parallel proposals repel each other: every in-flight
// trial is presented to the delegate as if it had finished with a
// conservative value (the worst score seen so far), discouraging the model
// from proposing the same region twice while a result is pending.
type ConstantLiar struct {
	Sampler Sampler
	Goal    v1alpha1.Goal

	mu       sync.Mutex
	inFlight []v1alpha1.Trial
}

var _ Sampler = &ConstantLiar{}
var _ InFlightAware = &ConstantLiar{}

// SetInFlight records the currently running trials for the next Sample call.
func (c *ConstantLiar) SetInFlight(trials []v1alpha1.Trial) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = trials
}

// Sample delegates with lies appended for each in-flight trial.
func (c *ConstantLiar) Sample(params v1alpha1.Parameters, trialNumber int64, history []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error) {
	c.mu.Lock()
	inFlight := c.inFlight
	c.mu.Unlock()

	lie, ok := c.lieValue(history)
	if !ok || len(inFlight) == 0 {
		return c.Sampler.Sample(params, trialNumber, history, rng)
	}

	merged := make([]v1alpha1.Trial, 0, len(history)+len(inFlight))
	merged = append(merged, history...)
	for i := range inFlight {
		t := inFlight[i]
		v := lie
		t.Status = v1alpha1.TrialSucceeded
		t.FinalValue = &v
		merged = append(merged, t)
	}
	return c.Sampler.Sample(params, trialNumber, merged, rng)
}

func (c *ConstantLiar) lieValue(history []v1alpha1.Trial) (float64, bool) {
	var worst float64
	found := false
	for i := range history {
		v, ok := Score(&history[i])
		if !ok {
			continue
		}
		if !found || c.Goal.IsBetter(worst, v) {
			worst = v
		}
		found = true
	}
	return worst, found
}

// Conditional pools history by active dimension signature: only trials whose
// assignments cover exactly the dimensions of the current space contribute to
// the model. Absent dimensions are missing data, not zeros.
type Conditional struct {
	Sampler Sampler
}

var _ Sampler = &Conditional{}

// Sample delegates with the history restricted to the current dimension group.
func (c *Conditional) Sample(params v1alpha1.Parameters, trialNumber int64, history []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error) {
	group := make([]v1alpha1.Trial, 0, len(history))
	for i := range history {
		if sameDimensions(params, history[i].Assignments) {
			group = append(group, history[i])
		}
	}
	return c.Sampler.Sample(params, trialNumber, group, rng)
}

func sameDimensions(params v1alpha1.Parameters, assignments v1alpha1.Assignments) bool {
	if len(params) != len(assignments) {
		return false
	}
	for i := range params {
		if assignments.Get(params[i].Name) == nil {
			return false
		}
	}
	return true
}

// Scalarized reduces multi-objective trials to a single value with a weighted
// sum before delegating, so a single-goal sampler can drive a multi-objective
// study.
type Scalarized struct {
	Sampler Sampler
	// Weights applied to each trial's metric values in order.
	Weights []float64
}

var _ Sampler = &Scalarized{}

// Sample delegates with every multi-valued trial collapsed to its weighted sum.
func (s *Scalarized) Sample(params v1alpha1.Parameters, trialNumber int64, history []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error) {
	scalarized := make([]v1alpha1.Trial, len(history))
	for i := range history {
		scalarized[i] = history[i]
		if len(history[i].Values) == 0 {
			continue
		}
		var sum float64
		for j, v := range history[i].Values {
			w := 1.0
			if j < len(s.Weights) {
				w = s.Weights[j]
			}
			sum += w * v
		}
		scalarized[i].FinalValue = &sum
	}
	return s.Sampler.Sample(params, trialNumber, scalarized, rng)
}
