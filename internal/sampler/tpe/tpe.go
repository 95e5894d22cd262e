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

// Package tpe implements the Tree-structured Parzen Estimator sampler.
//
// Each proposal splits the scored history into a "good" set G (the top gamma
// fraction in the goal direction) and a "bad" set B, fits a density l(x) over
// G and g(x) over B per dimension, draws candidates from l and keeps the one
// maximizing the expected improvement ratio l(x)/g(x). In multivariate mode a
// Gaussian copula couples the continuous dimensions of G; with an identity
// correlation the proposal distribution is exactly the univariate one.
//
// The defaults (gamma 0.25, ten observations before the model engages) sit
// where the good set is informative without being overfit: smaller gammas
// starve l, larger ones blur the good/bad distinction on problems with strong
// local structure. Both remain configurable on the study's sampler spec.
package tpe

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/sampler"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
)

// maxGood caps the size of the good split regardless of gamma.
const maxGood = 25

// logEps is the log of the epsilon added to g(x) to keep the acquisition
// ratio finite.
const logEps = -27.631021115928547 // ln 1e-12

// Sampler proposes assignments with the Tree-structured Parzen Estimator.
type Sampler struct {
	// Direction the study optimizes in.
	Goal v1alpha1.Goal
	// Top fraction of the history treated as the good split.
	Gamma float64
	// Completed trials required before the model engages; Random below that.
	MinObservations int
	// Candidate proposals scored per step.
	Candidates int
	// Weight of the uniform prior mixed into every density.
	PriorWeight float64
	// Couple continuous dimensions through a Gaussian copula.
	Multivariate bool

	fallback sampler.Random
}

var _ sampler.Sampler = &Sampler{}

// FromSpec builds a TPE sampler from a defaulted sampler spec.
func FromSpec(spec v1alpha1.SamplerSpec, goal v1alpha1.Goal) *Sampler {
	return &Sampler{
		Goal:            goal,
		Gamma:           spec.Gamma,
		MinObservations: spec.MinObservations,
		Candidates:      spec.Candidates,
		PriorWeight:     spec.PriorWeight,
		Multivariate:    spec.Multivariate,
	}
}

type scored struct {
	trial *v1alpha1.Trial
	value float64
}

// Sample proposes the assignment maximizing l(x)/g(x) over the drawn
// candidates, or delegates to Random while the history is too small.
func (s *Sampler) Sample(params v1alpha1.Parameters, trialNumber int64, history []v1alpha1.Trial, rng *rand.Rand) (v1alpha1.Assignments, error) {
	observations := make([]scored, 0, len(history))
	for i := range history {
		if v, ok := sampler.Score(&history[i]); ok {
			observations = append(observations, scored{trial: &history[i], value: v})
		}
	}
	if len(observations) < s.MinObservations || len(observations) == 0 {
		return s.fallback.Sample(params, trialNumber, history, rng)
	}

	good, bad := s.split(observations)

	dims, err := s.fit(params, good, bad)
	if err != nil {
		return nil, err
	}

	var cop *copula
	if s.Multivariate {
		cop = s.fitDependence(params, dims, good)
	}

	best, err := s.propose(dims, cop, rng)
	if err != nil {
		return nil, err
	}

	assignments := make(v1alpha1.Assignments, 0, len(params))
	for i := range dims {
		assignments = append(assignments, v1alpha1.Assignment{
			ParameterName: dims[i].param.Name,
			Value:         searchspace.FromUnit(dims[i].param, best[i]),
		})
	}
	return assignments, nil
}

// split sorts by score in the goal direction (ties keep creation order) and
// takes the top max(1, min(25, floor(gamma*n))) as the good set.
func (s *Sampler) split(observations []scored) (good, bad []scored) {
	sorted := make([]scored, len(observations))
	copy(sorted, observations)
	stableSortByValue(sorted, s.Goal)

	nGood := int(math.Floor(s.Gamma * float64(len(sorted))))
	if nGood < 1 {
		nGood = 1
	}
	if nGood > maxGood {
		nGood = maxGood
	}
	if nGood > len(sorted) {
		nGood = len(sorted)
	}
	return sorted[:nGood], sorted[nGood:]
}

// dimension carries the pair of density estimates for one parameter.
type dimension struct {
	param      *v1alpha1.Parameter
	continuous bool

	good, bad       *parzen
	goodCat, badCat *multinomial
}

func (s *Sampler) fit(params v1alpha1.Parameters, good, bad []scored) ([]dimension, error) {
	dims := make([]dimension, len(params))
	for i := range params {
		p := &params[i]
		dims[i].param = p
		dims[i].continuous = searchspace.IsContinuous(p)

		if dims[i].continuous {
			lo, hi := searchspace.UnitRange(p)
			gv, err := unitValues(p, good)
			if err != nil {
				return nil, err
			}
			bv, err := unitValues(p, bad)
			if err != nil {
				return nil, err
			}
			dims[i].good = newParzen(gv, lo, hi, s.PriorWeight)
			dims[i].bad = newParzen(bv, lo, hi, s.PriorWeight)
			continue
		}

		k := len(p.Choices)
		gi, err := choiceIndices(p, good)
		if err != nil {
			return nil, err
		}
		bi, err := choiceIndices(p, bad)
		if err != nil {
			return nil, err
		}
		dims[i].goodCat = newMultinomial(gi, k, s.PriorWeight)
		dims[i].badCat = newMultinomial(bi, k, s.PriorWeight)
	}
	return dims, nil
}

// fitDependence estimates the copula over the continuous dimensions using the
// good-set rows that carry every continuous dimension; trials with absent
// dimensions are missing data and do not contribute.
func (s *Sampler) fitDependence(params v1alpha1.Parameters, dims []dimension, good []scored) *copula {
	var continuous []int
	for i := range dims {
		if dims[i].continuous {
			continuous = append(continuous, i)
		}
	}
	if len(continuous) < 2 {
		return nil
	}

	columns := make([][]float64, len(continuous))
rows:
	for _, o := range good {
		row := make([]float64, len(continuous))
		for j, i := range continuous {
			a := o.trial.Assignments.Get(params[i].Name)
			if a == nil {
				continue rows
			}
			x, err := searchspace.ToUnit(dims[i].param, a.Value)
			if err != nil {
				continue rows
			}
			row[j] = x
		}
		for j := range row {
			columns[j] = append(columns[j], row[j])
		}
	}
	return fitCopula(columns)
}

// propose draws candidates from l and returns the unit-space point with the
// highest acquisition score.
func (s *Sampler) propose(dims []dimension, cop *copula, rng *rand.Rand) ([]float64, error) {
	candidates := s.Candidates
	if candidates < 1 {
		candidates = 1
	}

	var continuous []int
	for i := range dims {
		if dims[i].continuous {
			continuous = append(continuous, i)
		}
	}

	var best []float64
	bestScore := math.Inf(-1)
	for c := 0; c < candidates; c++ {
		point := make([]float64, len(dims))

		// Continuous dimensions: coupled uniforms through the copula when one
		// was fitted, independent uniforms otherwise, then back through the
		// good-set marginal quantile.
		var u []float64
		if cop != nil {
			u = cop.sample(rng)
		}
		for j, i := range continuous {
			var ui float64
			if u != nil {
				ui = u[j]
			} else {
				ui = rng.Float64()
			}
			point[i] = dims[i].good.quantile(ui)
		}
		for i := range dims {
			if !dims[i].continuous {
				point[i] = float64(dims[i].goodCat.sample(rng.Float64()))
			}
		}

		score, err := s.acquisition(dims, point)
		if err != nil {
			return nil, err
		}
		if score > bestScore {
			bestScore = score
			best = point
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no finite acquisition score over %d candidates", candidates)
	}
	return best, nil
}

// acquisition is log l(x) - log(g(x)+eps) summed over dimensions, clamped to
// a finite range.
func (s *Sampler) acquisition(dims []dimension, point []float64) (float64, error) {
	var score float64
	for i := range dims {
		var lg, lb float64
		if dims[i].continuous {
			lg = dims[i].good.logPDF(point[i])
			lb = dims[i].bad.logPDF(point[i])
		} else {
			idx := int(point[i])
			lg = dims[i].goodCat.logProb(idx)
			lb = dims[i].badCat.logProb(idx)
		}
		score += lg - logAddExp(lb, logEps)
	}
	if math.IsNaN(score) {
		return 0, fmt.Errorf("acquisition score is NaN")
	}
	// Overflow clamps rather than propagates
	if math.IsInf(score, 1) {
		score = math.MaxFloat64
	}
	if math.IsInf(score, -1) {
		score = -math.MaxFloat64
	}
	return score, nil
}

func unitValues(p *v1alpha1.Parameter, observations []scored) ([]float64, error) {
	values := make([]float64, 0, len(observations))
	for _, o := range observations {
		a := o.trial.Assignments.Get(p.Name)
		if a == nil {
			// Dimension not active for this trial; missing, not zero
			continue
		}
		x, err := searchspace.ToUnit(p, a.Value)
		if err != nil {
			return nil, err
		}
		values = append(values, x)
	}
	return values, nil
}

func choiceIndices(p *v1alpha1.Parameter, observations []scored) ([]int, error) {
	indices := make([]int, 0, len(observations))
	for _, o := range observations {
		a := o.trial.Assignments.Get(p.Name)
		if a == nil {
			continue
		}
		x, err := searchspace.ToUnit(p, a.Value)
		if err != nil {
			return nil, err
		}
		indices = append(indices, int(x))
	}
	return indices, nil
}

// stableSortByValue orders best first in the goal direction, preserving
// creation order among equal values.
func stableSortByValue(observations []scored, goal v1alpha1.Goal) {
	sort.SliceStable(observations, func(i, j int) bool {
		return goal.IsBetter(observations[i].value, observations[j].value)
	})
}
