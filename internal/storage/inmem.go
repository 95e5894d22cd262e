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

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

// InMemory is a process-wide store backed by per-study tables. The registry
// lock only guards the study map; each study carries its own lock so trial
// traffic on one study never blocks another.
type InMemory struct {
	mu      sync.RWMutex
	studies map[string]*studyRecord
}

type studyRecord struct {
	mu     sync.RWMutex
	study  v1alpha1.Study
	trials []v1alpha1.Trial
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{studies: make(map[string]*studyRecord)}
}

var _ Store = &InMemory{}

func (s *InMemory) record(id string) (*studyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, id)
	}
	return rec, nil
}

// CreateStudy persists a new study, rejecting duplicate identifiers.
func (s *InMemory) CreateStudy(_ context.Context, study *v1alpha1.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[study.ID]; ok {
		return fmt.Errorf("%w: %s", ErrStudyExists, study.ID)
	}
	s.studies[study.ID] = &studyRecord{study: *study}
	return nil
}

// GetStudy returns a copy of the study with the supplied identifier.
func (s *InMemory) GetStudy(_ context.Context, id string) (*v1alpha1.Study, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	study := rec.study
	return &study, nil
}

// SetStudyStatus transitions the lifecycle state of a study.
func (s *InMemory) SetStudyStatus(_ context.Context, id string, status v1alpha1.StudyStatus) error {
	rec, err := s.record(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.study.Status = status
	return nil
}

// AddTrial appends a pending trial to its study and assigns its number.
func (s *InMemory) AddTrial(_ context.Context, trial *v1alpha1.Trial) error {
	rec, err := s.record(trial.StudyID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	trial.Number = int64(len(rec.trials))
	rec.trials = append(rec.trials, copyTrial(trial))
	return nil
}

// UpdateTrial applies a state transition; updates of terminal trials are rejected.
func (s *InMemory) UpdateTrial(_ context.Context, trial *v1alpha1.Trial) error {
	rec, err := s.record(trial.StudyID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	stored := rec.trial(trial.Number)
	if stored == nil {
		return fmt.Errorf("%w: %s/%d", ErrTrialNotFound, trial.StudyID, trial.Number)
	}
	if stored.IsTerminal() {
		return fmt.Errorf("%w: %s/%d", ErrTrialFinalized, trial.StudyID, trial.Number)
	}
	// Observations are owned by RecordObservation, not by trial updates
	observations := stored.Observations
	*stored = copyTrial(trial)
	stored.Observations = observations
	return nil
}

// ListTrials returns copies of the trials of a study in stable creation order.
func (s *InMemory) ListTrials(_ context.Context, studyID string) ([]v1alpha1.Trial, error) {
	rec, err := s.record(studyID)
	if err != nil {
		return nil, err
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	trials := make([]v1alpha1.Trial, 0, len(rec.trials))
	for i := range rec.trials {
		trials = append(trials, copyTrial(&rec.trials[i]))
	}
	return trials, nil
}

// RecordObservation records a write-once intermediate value for a trial rung.
func (s *InMemory) RecordObservation(_ context.Context, studyID string, trialNumber int64, obs v1alpha1.Observation) error {
	rec, err := s.record(studyID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	stored := rec.trial(trialNumber)
	if stored == nil {
		return fmt.Errorf("%w: %s/%d", ErrTrialNotFound, studyID, trialNumber)
	}
	if stored.ObservationAt(obs.Rung) != nil {
		return fmt.Errorf("%w: %s/%d rung %d", ErrObservationExists, studyID, trialNumber, obs.Rung)
	}
	stored.Observations = append(stored.Observations, obs)
	sort.SliceStable(stored.Observations, func(i, j int) bool {
		return stored.Observations[i].Rung < stored.Observations[j].Rung
	})
	return nil
}

// ObservationsAtRung returns the pruning population for a rung of a bracket,
// ordered by trial creation.
func (s *InMemory) ObservationsAtRung(_ context.Context, studyID string, bracket, rung int) ([]TrialObservation, error) {
	rec, err := s.record(studyID)
	if err != nil {
		return nil, err
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	var population []TrialObservation
	for i := range rec.trials {
		t := &rec.trials[i]
		if t.Bracket != bracket {
			continue
		}
		if obs := t.ObservationAt(rung); obs != nil {
			population = append(population, TrialObservation{TrialNumber: t.Number, Value: obs.Value})
		}
	}
	return population, nil
}

func (r *studyRecord) trial(number int64) *v1alpha1.Trial {
	if number < 0 || number >= int64(len(r.trials)) {
		return nil
	}
	return &r.trials[number]
}

func copyTrial(t *v1alpha1.Trial) v1alpha1.Trial {
	c := *t
	c.Assignments = append(v1alpha1.Assignments(nil), t.Assignments...)
	c.Observations = append([]v1alpha1.Observation(nil), t.Observations...)
	if t.FinalValue != nil {
		v := *t.FinalValue
		c.FinalValue = &v
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}
