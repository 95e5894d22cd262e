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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudyDefault(t *testing.T) {
	study := &Study{MaxTrials: 10}
	study.Default()

	assert.Equal(t, GoalMinimize, study.Goal)
	assert.Equal(t, 1, study.Parallelism)
	assert.Equal(t, StudyRunning, study.Status)

	assert.Equal(t, SamplerTPE, study.Sampler.Type)
	assert.Equal(t, 0.25, study.Sampler.Gamma)
	assert.Equal(t, 10, study.Sampler.MinObservations)
	assert.Equal(t, 24, study.Sampler.Candidates)
	assert.Equal(t, BandwidthScott, study.Sampler.BandwidthRule)
	assert.Equal(t, 1.0, study.Sampler.PriorWeight)

	assert.Equal(t, PrunerNone, study.Pruner.Type)
}

func TestStudyDefault_Hyperband(t *testing.T) {
	study := &Study{MaxTrials: 10, Pruner: PrunerSpec{Type: PrunerHyperband}}
	study.Default()

	assert.Equal(t, 3, study.Pruner.ReductionFactor)
	assert.Equal(t, 1.0, study.Pruner.MinResource)
	assert.Equal(t, 81.0, study.Pruner.MaxResource)
	assert.Equal(t, 3, study.Pruner.WarmupPeers)
}

func TestStudyValidate(t *testing.T) {
	cases := []struct {
		desc    string
		mutate  func(*Study)
		invalid bool
	}{
		{
			desc:   "defaults",
			mutate: func(*Study) {},
		},
		{
			desc:    "unknown goal",
			mutate:  func(s *Study) { s.Goal = "left" },
			invalid: true,
		},
		{
			desc:    "no trial budget",
			mutate:  func(s *Study) { s.MaxTrials = 0 },
			invalid: true,
		},
		{
			desc:    "negative parallelism",
			mutate:  func(s *Study) { s.Parallelism = -2 },
			invalid: true,
		},
		{
			desc:    "unknown sampler",
			mutate:  func(s *Study) { s.Sampler.Type = "annealing" },
			invalid: true,
		},
		{
			desc:    "gamma above one",
			mutate:  func(s *Study) { s.Sampler.Gamma = 1.5 },
			invalid: true,
		},
		{
			desc:    "unknown bandwidth rule",
			mutate:  func(s *Study) { s.Sampler.BandwidthRule = "silverman" },
			invalid: true,
		},
		{
			desc: "inverted resource range",
			mutate: func(s *Study) {
				s.Pruner = PrunerSpec{Type: PrunerHyperband, ReductionFactor: 3, MinResource: 10, MaxResource: 1, WarmupPeers: 3}
			},
			invalid: true,
		},
		{
			desc: "hyperband eta of one is allowed",
			mutate: func(s *Study) {
				s.Pruner = PrunerSpec{Type: PrunerHyperband, ReductionFactor: 1, MinResource: 1, MaxResource: 9, WarmupPeers: 1}
			},
		},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			study := &Study{MaxTrials: 10}
			study.Default()
			c.mutate(study)

			err := study.Validate()
			if c.invalid {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGoalIsBetter(t *testing.T) {
	assert.True(t, GoalMinimize.IsBetter(1, 2))
	assert.False(t, GoalMinimize.IsBetter(2, 1))
	assert.True(t, GoalMaximize.IsBetter(2, 1))
	assert.False(t, GoalMaximize.IsBetter(1, 2))
}
