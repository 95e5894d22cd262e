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

package tpe

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/api/v1alpha1/numstr"
	"github.com/thestormforge/optimize-engine/internal/rng"
	"github.com/thestormforge/optimize-engine/internal/sampler"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
)

func newTPE() *Sampler {
	spec := v1alpha1.SamplerSpec{Type: v1alpha1.SamplerTPE}
	spec.Default()
	return FromSpec(spec, v1alpha1.GoalMinimize)
}

func testSpace() v1alpha1.Parameters {
	return v1alpha1.Parameters{
		{Name: "x", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
		{Name: "y", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
		{Name: "opt", Type: v1alpha1.ParameterTypeCategorical, Choices: []string{"sgd", "adam"}},
	}
}

// succeededTrial builds a terminal trial over the test space.
func succeededTrial(number int64, x, y float64, opt string, value float64) v1alpha1.Trial {
	return v1alpha1.Trial{
		Number: number,
		Status: v1alpha1.TrialSucceeded,
		Assignments: v1alpha1.Assignments{
			{ParameterName: "x", Value: numstr.FromFloat64(x)},
			{ParameterName: "y", Value: numstr.FromFloat64(y)},
			{ParameterName: "opt", Value: numstr.FromString(opt)},
		},
		FinalValue: &value,
	}
}

func TestSampleDelegatesBelowMinObservations(t *testing.T) {
	params := testSpace()
	s := newTPE()

	history := []v1alpha1.Trial{succeededTrial(0, 1, 1, "sgd", 2)}

	got, err := s.Sample(params, 1, history, rng.New(42, 1))
	require.NoError(t, err)
	want, err := sampler.Random{}.Sample(params, 1, history, rng.New(42, 1))
	require.NoError(t, err)
	assert.Equal(t, want, got, "short histories fall through to the random sampler")
}

func TestSplit(t *testing.T) {
	s := newTPE()

	trials := make([]v1alpha1.Trial, 20)
	observations := make([]scored, 20)
	for i := range observations {
		trials[i] = succeededTrial(int64(i), 0, 0, "sgd", float64(i))
		observations[i] = scored{trial: &trials[i], value: float64(i)}
	}

	good, bad := s.split(observations)
	require.Len(t, good, 5, "gamma 0.25 of 20")
	assert.Len(t, bad, 15)
	for i, o := range good {
		assert.Equal(t, float64(i), o.value, "good split holds the best values")
	}
}

func TestSplitAlwaysKeepsOne(t *testing.T) {
	s := newTPE()

	trials := []v1alpha1.Trial{succeededTrial(0, 0, 0, "sgd", 1), succeededTrial(1, 0, 0, "sgd", 2)}
	observations := []scored{{trial: &trials[0], value: 1}, {trial: &trials[1], value: 2}}

	good, bad := s.split(observations)
	assert.Len(t, good, 1)
	assert.Len(t, bad, 1)
}

func TestSplitCapsAtMaxGood(t *testing.T) {
	s := newTPE()
	s.Gamma = 1

	trials := make([]v1alpha1.Trial, 40)
	observations := make([]scored, 40)
	for i := range observations {
		trials[i] = succeededTrial(int64(i), 0, 0, "sgd", float64(i))
		observations[i] = scored{trial: &trials[i], value: float64(i)}
	}
	good, _ := s.split(observations)
	assert.Len(t, good, maxGood)
}

func modelHistory(n int) []v1alpha1.Trial {
	history := make([]v1alpha1.Trial, 0, n)
	r := rng.New(7, 1000)
	for i := 0; i < n; i++ {
		x := -5 + 10*r.Float64()
		y := -5 + 10*r.Float64()
		opt := "sgd"
		if r.Float64() < 0.5 {
			opt = "adam"
		}
		history = append(history, succeededTrial(int64(i), x, y, opt, x*x+y*y))
	}
	return history
}

func TestSampleInRange(t *testing.T) {
	params := testSpace()
	history := modelHistory(30)

	for _, multivariate := range []bool{false, true} {
		t.Run(fmt.Sprintf("multivariate=%t", multivariate), func(t *testing.T) {
			s := newTPE()
			s.Multivariate = multivariate
			for trial := int64(30); trial < 40; trial++ {
				assignments, err := s.Sample(params, trial, history, rng.New(42, trial))
				require.NoError(t, err)
				require.NoError(t, searchspace.CheckAssignments(params, assignments))
			}
		})
	}
}

func TestSampleDeterministic(t *testing.T) {
	params := testSpace()
	history := modelHistory(30)
	s := newTPE()

	a, err := s.Sample(params, 31, history, rng.New(42, 31))
	require.NoError(t, err)
	b, err := s.Sample(params, 31, history, rng.New(42, 31))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSampleSkipsFailedTrials(t *testing.T) {
	params := testSpace()
	s := newTPE()

	// Nine succeeded plus one failed stays below the model threshold
	history := modelHistory(9)
	history = append(history, v1alpha1.Trial{Number: 9, Status: v1alpha1.TrialFailed})

	got, err := s.Sample(params, 10, history, rng.New(42, 10))
	require.NoError(t, err)
	want, err := sampler.Random{}.Sample(params, 10, history, rng.New(42, 10))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSampleHandlesMissingDimensions(t *testing.T) {
	params := testSpace()
	s := newTPE()
	s.Multivariate = true

	// Half the history is missing the y dimension entirely
	history := modelHistory(30)
	for i := 0; i < len(history); i += 2 {
		history[i].Assignments = history[i].Assignments[:1]
	}

	assignments, err := s.Sample(params, 30, history, rng.New(42, 30))
	require.NoError(t, err)
	require.NoError(t, searchspace.CheckAssignments(params, assignments))
}

func TestSampleDegenerateHistory(t *testing.T) {
	params := testSpace()
	s := newTPE()

	// Every observation at the same point must not collapse the model
	history := make([]v1alpha1.Trial, 12)
	for i := range history {
		history[i] = succeededTrial(int64(i), 1, 1, "sgd", 2)
	}

	assignments, err := s.Sample(params, 12, history, rng.New(42, 12))
	require.NoError(t, err)
	require.NoError(t, searchspace.CheckAssignments(params, assignments))
}

func TestIdentityCopulaMatchesUnivariate(t *testing.T) {
	params := v1alpha1.Parameters{
		{Name: "x", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
		{Name: "y", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
	}
	s := newTPE()
	// A single candidate makes each proposal a direct draw from the model
	s.Candidates = 1

	history := modelHistory(30)
	observations := make([]scored, 0, len(history))
	for i := range history {
		if v, ok := sampler.Score(&history[i]); ok {
			observations = append(observations, scored{trial: &history[i], value: v})
		}
	}
	good, bad := s.split(observations)
	dims, err := s.fit(params, good, bad)
	require.NoError(t, err)

	// An identity correlation couples nothing: the coupled uniforms are
	// independent, so the proposal distribution must match the univariate one.
	// The two paths consume randomness differently, so the comparison is over
	// the empirical moments rather than draw by draw.
	identity := &copula{chol: [][]float64{{1, 0}, {0, 1}}}

	const draws = 8000
	var sumU, sqU, sumM, sqM [2]float64
	rUni, rMulti := rng.New(3, 1), rng.New(3, 2)
	for n := 0; n < draws; n++ {
		p, err := s.propose(dims, nil, rUni)
		require.NoError(t, err)
		q, err := s.propose(dims, identity, rMulti)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			sumU[i] += p[i]
			sqU[i] += p[i] * p[i]
			sumM[i] += q[i]
			sqM[i] += q[i] * q[i]
		}
	}

	for i := 0; i < 2; i++ {
		meanU, meanM := sumU[i]/draws, sumM[i]/draws
		sdU := math.Sqrt(sqU[i]/draws - meanU*meanU)
		sdM := math.Sqrt(sqM[i]/draws - meanM*meanM)
		assert.InDelta(t, meanU, meanM, 0.2, "dimension %d mean", i)
		assert.InDelta(t, sdU, sdM, 0.15, "dimension %d spread", i)
	}
}

func TestSphereConvergence(t *testing.T) {
	params := v1alpha1.Parameters{
		{Name: "x", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
		{Name: "y", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
	}

	for _, multivariate := range []bool{false, true} {
		t.Run(fmt.Sprintf("multivariate=%t", multivariate), func(t *testing.T) {
			s := newTPE()
			s.Multivariate = multivariate

			var history []v1alpha1.Trial
			best := 100.0
			for i := int64(0); i < 100; i++ {
				assignments, err := s.Sample(params, i, history, rng.New(11, i))
				require.NoError(t, err)

				x := assignments.Get("x").Value.Float64Value()
				y := assignments.Get("y").Value.Float64Value()
				value := x*x + y*y
				if value < best {
					best = value
				}
				history = append(history, v1alpha1.Trial{
					Number:      i,
					Status:      v1alpha1.TrialSucceeded,
					Assignments: assignments,
					FinalValue:  &value,
				})
			}
			// The optimum is 0 at the origin; the neighbor-scaled kernels let
			// the model exploit the basin once the history concentrates there
			assert.Less(t, best, 0.1)
		})
	}
}
