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

// Package status projects the persisted state of a study into a read model
// suitable for display. It never mutates the store.
package status

import (
	"context"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/storage"
)

// Summary is a point in time view of a study's progress.
type Summary struct {
	StudyID string               `json:"studyId" yaml:"studyId"`
	Status  v1alpha1.StudyStatus `json:"status" yaml:"status"`

	// Counts of trials by status.
	Pending   int `json:"pending" yaml:"pending"`
	Running   int `json:"running" yaml:"running"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Pruned    int `json:"pruned" yaml:"pruned"`
	Failed    int `json:"failed" yaml:"failed"`

	// Best is the best finished trial by the study's goal, nil until one
	// finishes.
	Best *v1alpha1.Trial `json:"best,omitempty" yaml:"best,omitempty"`

	// Brackets describes pruning progress per bracket, keyed by bracket index.
	Brackets map[int]BracketSummary `json:"brackets,omitempty" yaml:"brackets,omitempty"`
}

// BracketSummary counts how many trials reported at each rung of a bracket.
type BracketSummary struct {
	Trials int         `json:"trials" yaml:"trials"`
	Rungs  map[int]int `json:"rungs,omitempty" yaml:"rungs,omitempty"`
}

// Done checks whether the study reached a terminal status.
func (s *Summary) Done() bool {
	switch s.Status {
	case v1alpha1.StudyCompleted, v1alpha1.StudyCancelled, v1alpha1.StudyFailed:
		return true
	}
	return false
}

// Summarize reads a study and its trials and builds the summary.
func Summarize(ctx context.Context, store storage.Store, studyID string) (*Summary, error) {
	study, err := store.GetStudy(ctx, studyID)
	if err != nil {
		return nil, err
	}
	trials, err := store.ListTrials(ctx, studyID)
	if err != nil {
		return nil, err
	}

	s := &Summary{StudyID: study.ID, Status: study.Status}
	for i := range trials {
		t := &trials[i]
		switch t.Status {
		case v1alpha1.TrialPending:
			s.Pending++
		case v1alpha1.TrialRunning:
			s.Running++
		case v1alpha1.TrialSucceeded:
			s.Succeeded++
		case v1alpha1.TrialPruned:
			s.Pruned++
		case v1alpha1.TrialFailed:
			s.Failed++
		}

		if len(t.Observations) > 0 {
			if s.Brackets == nil {
				s.Brackets = make(map[int]BracketSummary)
			}
			b := s.Brackets[t.Bracket]
			b.Trials++
			if b.Rungs == nil {
				b.Rungs = make(map[int]int)
			}
			for _, o := range t.Observations {
				b.Rungs[o.Rung]++
			}
			s.Brackets[t.Bracket] = b
		}
	}

	s.Best = BestTrial(study.Goal, trials)
	return s, nil
}

// BestTrial picks the best succeeded trial by the goal, breaking ties in
// favor of the earlier trial. Pruned and failed trials never win: a pruned
// trial's observations are censored, not final.
func BestTrial(goal v1alpha1.Goal, trials []v1alpha1.Trial) *v1alpha1.Trial {
	var best *v1alpha1.Trial
	for i := range trials {
		t := &trials[i]
		if t.Status != v1alpha1.TrialSucceeded || t.FinalValue == nil {
			continue
		}
		if best == nil || goal.IsBetter(*t.FinalValue, *best.FinalValue) {
			best = t
		}
	}
	return best
}
