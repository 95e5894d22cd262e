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

package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/api/v1alpha1/numstr"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
	"github.com/thestormforge/optimize-engine/internal/storage"
)

func testStudy(id string) *v1alpha1.Study {
	return &v1alpha1.Study{
		ID:        id,
		Goal:      v1alpha1.GoalMinimize,
		MaxTrials: 20,
		Seed:      42,
		Sampler:   v1alpha1.SamplerSpec{Type: v1alpha1.SamplerRandom},
	}
}

func testSpace() searchspace.Resolver {
	return searchspace.Static(v1alpha1.Parameters{
		{Name: "x", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
		{Name: "y", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 5}},
	})
}

func sphereObjective(_ context.Context, assignments v1alpha1.Assignments, _ Report) (float64, error) {
	x := assignments.Get("x").Value.Float64Value()
	y := assignments.Get("y").Value.Float64Value()
	return x*x + y*y, nil
}

func TestRunCompletesStudy(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study, best, err := e.Run(context.Background(), testStudy("s1"), testSpace(), sphereObjective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCompleted, study.Status)
	require.NotNil(t, best)
	require.NotNil(t, best.FinalValue)

	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)
	require.Len(t, trials, 20)
	for i := range trials {
		assert.Equal(t, v1alpha1.TrialSucceeded, trials[i].Status)
		require.NotNil(t, trials[i].FinalValue)
		assert.LessOrEqual(t, *best.FinalValue, *trials[i].FinalValue)
	}
}

func TestRunConvergesOnShiftedSphere(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 50
	study.Seed = 42
	study.Sampler = v1alpha1.SamplerSpec{Type: v1alpha1.SamplerTPE, Multivariate: true}

	space := searchspace.Static(v1alpha1.Parameters{
		{Name: "x", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 10}},
		{Name: "y", Type: v1alpha1.ParameterTypeUniform, Bounds: v1alpha1.Bounds{Min: -5, Max: 10}},
	})
	objective := func(_ context.Context, assignments v1alpha1.Assignments, _ Report) (float64, error) {
		x := assignments.Get("x").Value.Float64Value()
		y := assignments.Get("y").Value.Float64Value()
		return (x-2)*(x-2) + (y-3)*(y-3), nil
	}

	_, best, err := e.Run(context.Background(), study, space, objective)
	require.NoError(t, err)
	require.NotNil(t, best)
	require.NotNil(t, best.FinalValue)
	assert.Less(t, *best.FinalValue, 0.01, "fifty trials pin the shifted optimum")
}

func TestRunRespectsParallelism(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 12
	study.Parallelism = 3

	var active, peak int32
	objective := func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return sphereObjective(ctx, assignments, report)
	}

	_, _, err := e.Run(context.Background(), study, testSpace(), objective)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunObjectiveFailuresDoNotFailStudy(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 15

	var calls int32
	objective := func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error) {
		if atomic.AddInt32(&calls, 1)%3 == 0 {
			return 0, errors.New("transient infrastructure failure")
		}
		return sphereObjective(ctx, assignments, report)
	}

	result, best, err := e.Run(context.Background(), study, testSpace(), objective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCompleted, result.Status)
	require.NotNil(t, best)

	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)
	require.Len(t, trials, 15)

	var failed, succeeded int
	for i := range trials {
		switch trials[i].Status {
		case v1alpha1.TrialFailed:
			failed++
			assert.Equal(t, ReasonObjectiveError, trials[i].FailureReason)
			assert.Nil(t, trials[i].FinalValue)
		case v1alpha1.TrialSucceeded:
			succeeded++
		}
	}
	assert.Equal(t, 5, failed)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, v1alpha1.TrialSucceeded, best.Status, "failed trials never win")
}

func TestRunObjectivePanicIsContained(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 5

	var calls int32
	objective := func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return sphereObjective(ctx, assignments, report)
	}

	result, _, err := e.Run(context.Background(), study, testSpace(), objective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCompleted, result.Status)

	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)

	var panicked int
	for i := range trials {
		if trials[i].FailureReason == ReasonObjectivePanic {
			panicked++
		}
	}
	assert.Equal(t, 1, panicked)
}

func TestRunPruning(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 9
	study.Pruner = v1alpha1.PrunerSpec{Type: v1alpha1.PrunerHyperband, ReductionFactor: 3, MinResource: 1, MaxResource: 9, WarmupPeers: 3}

	// Later trials report monotonically worse values, so the halving at rung
	// zero cuts exactly the late arrivals once enough peers reported
	var calls int32
	objective := func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error) {
		value := float64(atomic.AddInt32(&calls, 1))
		for rung := 0; rung < 3; rung++ {
			if report(value, rung) == Prune {
				return 0, nil
			}
		}
		return value, nil
	}

	result, best, err := e.Run(context.Background(), study, testSpace(), objective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCompleted, result.Status)
	require.NotNil(t, best)

	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)
	require.Len(t, trials, 9)

	var pruned, succeeded int
	for i := range trials {
		switch trials[i].Status {
		case v1alpha1.TrialPruned:
			pruned++
			assert.NotEmpty(t, trials[i].Observations, "pruned trials reported at least once")
			assert.Nil(t, trials[i].FinalValue)
		case v1alpha1.TrialSucceeded:
			succeeded++
		}
	}
	assert.Greater(t, pruned, 0)
	assert.Greater(t, succeeded, 0)
	assert.Equal(t, v1alpha1.TrialSucceeded, trials[0].Status, "the best early trial survives")
}

func TestRunCancellation(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 100
	study.Parallelism = 2

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	objective := func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error) {
		once.Do(cancel)
		for rung := 0; ; rung++ {
			if report(1.0, rung) == Prune {
				return 0, nil
			}
			time.Sleep(time.Millisecond)
		}
	}

	result, _, err := e.Run(ctx, study, testSpace(), objective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCancelled, result.Status)

	// Every started trial was driven to a consistent terminal state
	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, trials)
	for i := range trials {
		assert.True(t, trials[i].IsTerminal(), "trial %d left in %s", trials[i].Number, trials[i].Status)
	}
}

func TestRunDeterministicReplay(t *testing.T) {
	run := func() []v1alpha1.Trial {
		store := storage.NewInMemory()
		e := &Engine{Store: store}
		study := testStudy("s1")
		study.MaxTrials = 10

		_, _, err := e.Run(context.Background(), study, testSpace(), sphereObjective)
		require.NoError(t, err)
		trials, err := store.ListTrials(context.Background(), study.ID)
		require.NoError(t, err)
		return trials
	}

	a, b := run(), run()
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Assignments, b[i].Assignments, "trial %d diverged", i)
	}
}

func TestRunBaselines(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = 5
	study.Baselines = v1alpha1.Assignments{
		{ParameterName: "x", Value: numstr.FromFloat64(1)},
		{ParameterName: "y", Value: numstr.FromFloat64(2)},
	}

	_, _, err := e.Run(context.Background(), study, testSpace(), sphereObjective)
	require.NoError(t, err)

	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)
	require.NotEmpty(t, trials)
	assert.Equal(t, study.Baselines, trials[0].Assignments, "trial zero evaluates the baseline")
}

func TestRunInvalidStudy(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store}

	study := testStudy("s1")
	study.MaxTrials = -1

	_, _, err := e.Run(context.Background(), study, testSpace(), sphereObjective)
	require.Error(t, err)

	// Configuration errors never reach the store
	_, err = store.GetStudy(context.Background(), "s1")
	assert.ErrorIs(t, err, storage.ErrStudyNotFound)
}

func TestRunResumeFailsOrphans(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemory()

	study := testStudy("s1")
	study.Default()
	require.NoError(t, store.CreateStudy(ctx, study))

	// A previous process died with two trials still running
	for i := 0; i < 2; i++ {
		trial := &v1alpha1.Trial{StudyID: study.ID, Status: v1alpha1.TrialRunning}
		require.NoError(t, store.AddTrial(ctx, trial))
	}

	e := &Engine{Store: store}
	result, _, err := e.Run(ctx, study, testSpace(), sphereObjective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCompleted, result.Status)

	trials, err := store.ListTrials(ctx, study.ID)
	require.NoError(t, err)
	assert.Len(t, trials, 20)
	for i := 0; i < 2; i++ {
		assert.Equal(t, v1alpha1.TrialFailed, trials[i].Status)
		assert.Equal(t, ReasonOrphaned, trials[i].FailureReason)
	}
}

func TestRunDeadline(t *testing.T) {
	store := storage.NewInMemory()
	e := &Engine{Store: store, Deadline: 20 * time.Millisecond}

	study := testStudy("s1")
	study.MaxTrials = 1000

	objective := func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error) {
		time.Sleep(time.Millisecond)
		return sphereObjective(ctx, assignments, report)
	}

	result, _, err := e.Run(context.Background(), study, testSpace(), objective)
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StudyCompleted, result.Status)

	trials, err := store.ListTrials(context.Background(), study.ID)
	require.NoError(t, err)
	assert.Less(t, len(trials), 1000, "the deadline stops dispatch early")
	for i := range trials {
		assert.True(t, trials[i].IsTerminal())
	}
}
