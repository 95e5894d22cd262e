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

package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/storage"
)

func value(v float64) *float64 { return &v }

func seedStudy(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	store := storage.NewInMemory()

	study := &v1alpha1.Study{ID: "s1", Goal: v1alpha1.GoalMinimize, MaxTrials: 10, Status: v1alpha1.StudyRunning}
	require.NoError(t, store.CreateStudy(ctx, study))

	trials := []v1alpha1.Trial{
		{Status: v1alpha1.TrialSucceeded, FinalValue: value(3), Bracket: 1},
		{Status: v1alpha1.TrialSucceeded, FinalValue: value(1), Bracket: 1},
		{Status: v1alpha1.TrialPruned, Bracket: 1},
		{Status: v1alpha1.TrialFailed, Bracket: 0},
		{Status: v1alpha1.TrialRunning, Bracket: 0},
		{Status: v1alpha1.TrialPending, Bracket: 0},
	}
	for i := range trials {
		trials[i].StudyID = study.ID
		require.NoError(t, store.AddTrial(ctx, &trials[i]))
	}

	// Bracket 1 saw three reporters at rung 0 and one survivor at rung 1
	for _, n := range []int64{0, 1, 2} {
		require.NoError(t, store.RecordObservation(ctx, study.ID, n, v1alpha1.Observation{Rung: 0, Value: 5}))
	}
	require.NoError(t, store.RecordObservation(ctx, study.ID, 1, v1alpha1.Observation{Rung: 1, Value: 2}))
	return store
}

func TestSummarize(t *testing.T) {
	store := seedStudy(t)

	s, err := Summarize(context.Background(), store, "s1")
	require.NoError(t, err)

	assert.Equal(t, "s1", s.StudyID)
	assert.Equal(t, v1alpha1.StudyRunning, s.Status)
	assert.False(t, s.Done())

	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Pruned)
	assert.Equal(t, 1, s.Failed)

	require.NotNil(t, s.Best)
	assert.Equal(t, int64(1), s.Best.Number)

	require.Contains(t, s.Brackets, 1)
	assert.Equal(t, 3, s.Brackets[1].Trials)
	assert.Equal(t, map[int]int{0: 3, 1: 1}, s.Brackets[1].Rungs)
	// Bracket 0 never reported, so it stays out of the summary
	assert.NotContains(t, s.Brackets, 0)
}

func TestSummarizeUnknownStudy(t *testing.T) {
	store := storage.NewInMemory()
	_, err := Summarize(context.Background(), store, "nope")
	assert.ErrorIs(t, err, storage.ErrStudyNotFound)
}

func TestSummaryDone(t *testing.T) {
	for _, status := range []v1alpha1.StudyStatus{v1alpha1.StudyCompleted, v1alpha1.StudyCancelled, v1alpha1.StudyFailed} {
		assert.True(t, (&Summary{Status: status}).Done(), "%s", status)
	}
	for _, status := range []v1alpha1.StudyStatus{v1alpha1.StudyRunning, v1alpha1.StudyPaused} {
		assert.False(t, (&Summary{Status: status}).Done(), "%s", status)
	}
}

func TestBestTrial(t *testing.T) {
	for _, c := range []struct {
		desc   string
		goal   v1alpha1.Goal
		trials []v1alpha1.Trial
		want   int64
		none   bool
	}{
		{
			desc: "empty history has no best",
			goal: v1alpha1.GoalMinimize,
			none: true,
		},
		{
			desc: "minimize picks the lowest final value",
			goal: v1alpha1.GoalMinimize,
			trials: []v1alpha1.Trial{
				{Number: 0, Status: v1alpha1.TrialSucceeded, FinalValue: value(5)},
				{Number: 1, Status: v1alpha1.TrialSucceeded, FinalValue: value(2)},
				{Number: 2, Status: v1alpha1.TrialSucceeded, FinalValue: value(4)},
			},
			want: 1,
		},
		{
			desc: "maximize picks the highest final value",
			goal: v1alpha1.GoalMaximize,
			trials: []v1alpha1.Trial{
				{Number: 0, Status: v1alpha1.TrialSucceeded, FinalValue: value(5)},
				{Number: 1, Status: v1alpha1.TrialSucceeded, FinalValue: value(2)},
			},
			want: 0,
		},
		{
			desc: "pruned and failed trials never win",
			goal: v1alpha1.GoalMinimize,
			trials: []v1alpha1.Trial{
				{Number: 0, Status: v1alpha1.TrialPruned, Observations: []v1alpha1.Observation{{Rung: 0, Value: 0}}},
				{Number: 1, Status: v1alpha1.TrialFailed},
				{Number: 2, Status: v1alpha1.TrialSucceeded, FinalValue: value(9)},
			},
			want: 2,
		},
		{
			desc: "ties go to the earlier trial",
			goal: v1alpha1.GoalMinimize,
			trials: []v1alpha1.Trial{
				{Number: 0, Status: v1alpha1.TrialSucceeded, FinalValue: value(3)},
				{Number: 1, Status: v1alpha1.TrialSucceeded, FinalValue: value(3)},
			},
			want: 0,
		},
		{
			desc: "only pruned trials has no best",
			goal: v1alpha1.GoalMinimize,
			trials: []v1alpha1.Trial{
				{Number: 0, Status: v1alpha1.TrialPruned},
			},
			none: true,
		},
	} {
		t.Run(c.desc, func(t *testing.T) {
			best := BestTrial(c.goal, c.trials)
			if c.none {
				assert.Nil(t, best)
				return
			}
			require.NotNil(t, best)
			assert.Equal(t, c.want, best.Number)
		})
	}
}
