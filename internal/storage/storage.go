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

// Package storage is the durable, concurrent repository of studies, trials
// and intermediate observations. All operations are linearizable per study;
// there is no lock shared across studies.
package storage

import (
	"context"
	"errors"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

var (
	// ErrStudyNotFound indicates the requested study does not exist.
	ErrStudyNotFound = errors.New("study not found")
	// ErrStudyExists indicates a study with the same identifier already exists.
	ErrStudyExists = errors.New("study already exists")
	// ErrTrialNotFound indicates the requested trial does not exist.
	ErrTrialNotFound = errors.New("trial not found")
	// ErrTrialFinalized indicates an update targeted a trial that already
	// reached a terminal status.
	ErrTrialFinalized = errors.New("trial already finalized")
	// ErrObservationExists indicates an observation was already recorded for
	// the (trial, rung) pair; observations are write-once.
	ErrObservationExists = errors.New("observation already recorded")
)

// IgnoreNotFound returns the supplied error, unless that error is a "not found" error
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrStudyNotFound) || errors.Is(err, ErrTrialNotFound) {
		return nil
	}
	return err
}

// IgnoreAlreadyExists returns the supplied error, unless that error is an "already exists" error
func IgnoreAlreadyExists(err error) error {
	if errors.Is(err, ErrStudyExists) || errors.Is(err, ErrObservationExists) {
		return nil
	}
	return err
}

// TrialObservation is one entry of a rung population: the value a trial
// reported at that rung. Trial numbers establish the deterministic tie break
// (older trials first).
type TrialObservation struct {
	// The ordinal of the reporting trial.
	TrialNumber int64 `json:"trialNumber" db:"trial_number"`
	// The reported objective value.
	Value float64 `json:"value" db:"value"`
}

// Store is the sole shared mutable surface of the engine.
type Store interface {
	// CreateStudy persists a new study, rejecting duplicate identifiers.
	CreateStudy(ctx context.Context, study *v1alpha1.Study) error
	// GetStudy returns the study with the supplied identifier.
	GetStudy(ctx context.Context, id string) (*v1alpha1.Study, error)
	// SetStudyStatus transitions the lifecycle state of a study.
	SetStudyStatus(ctx context.Context, id string, status v1alpha1.StudyStatus) error
	// AddTrial appends a pending trial to its study and assigns its number.
	AddTrial(ctx context.Context, trial *v1alpha1.Trial) error
	// UpdateTrial applies a state transition; updates of terminal trials are rejected.
	UpdateTrial(ctx context.Context, trial *v1alpha1.Trial) error
	// ListTrials returns the trials of a study in stable creation order.
	ListTrials(ctx context.Context, studyID string) ([]v1alpha1.Trial, error)
	// RecordObservation records a write-once intermediate value for a trial rung.
	RecordObservation(ctx context.Context, studyID string, trialNumber int64, obs v1alpha1.Observation) error
	// ObservationsAtRung returns the pruning population for a rung of a bracket,
	// ordered by trial creation.
	ObservationsAtRung(ctx context.Context, studyID string, bracket, rung int) ([]TrialObservation, error)
}

// TerminalTrials filters a trial list down to the terminal trials, preserving
// creation order. This is the history surface handed to samplers.
func TerminalTrials(trials []v1alpha1.Trial) []v1alpha1.Trial {
	terminal := make([]v1alpha1.Trial, 0, len(trials))
	for i := range trials {
		if trials[i].IsTerminal() {
			terminal = append(terminal, trials[i])
		}
	}
	return terminal
}
