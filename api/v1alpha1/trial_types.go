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
	"time"

	"github.com/thestormforge/optimize-engine/api/v1alpha1/numstr"
)

// TrialStatus is the lifecycle state of a trial.
type TrialStatus string

const (
	// TrialPending indicates a trial has been created but no worker has picked it up.
	TrialPending TrialStatus = "pending"
	// TrialRunning indicates a worker is evaluating the trial.
	TrialRunning TrialStatus = "running"
	// TrialSucceeded indicates the objective returned a final value.
	TrialSucceeded TrialStatus = "succeeded"
	// TrialPruned indicates the trial was stopped early by the pruner.
	TrialPruned TrialStatus = "pruned"
	// TrialFailed indicates the objective raised an error.
	TrialFailed TrialStatus = "failed"
)

// Assignment is the value given to a single parameter for a trial run.
type Assignment struct {
	// The name of the parameter in the study the assignment corresponds to.
	ParameterName string `json:"parameterName" yaml:"parameterName"`
	// The assigned value of the parameter.
	Value numstr.NumberOrString `json:"value" yaml:"value"`
}

// Assignments is the full parameter assignment of a trial.
type Assignments []Assignment

// Get returns the assignment for the named parameter or nil.
func (a Assignments) Get(name string) *Assignment {
	for i := range a {
		if a[i].ParameterName == name {
			return &a[i]
		}
	}
	return nil
}

// Names returns the active parameter names in assignment order.
func (a Assignments) Names() []string {
	names := make([]string, len(a))
	for i := range a {
		names[i] = a[i].ParameterName
	}
	return names
}

// Observation is an intermediate objective value reported at a rung.
type Observation struct {
	// The rung index the value was reported at.
	Rung int `json:"rung" yaml:"rung"`
	// The observed objective value.
	Value float64 `json:"value" yaml:"value"`
}

// Trial is a single evaluation of the objective at one parameter assignment.
type Trial struct {
	// The identifier of the owning study.
	StudyID string `json:"studyId" yaml:"studyId"`
	// Ordinal number indicating when during a study the trial was generated.
	Number int64 `json:"number" yaml:"number"`
	// The list of parameter names and their assigned values.
	Assignments Assignments `json:"assignments" yaml:"assignments"`
	// The current trial status.
	Status TrialStatus `json:"status" yaml:"status"`
	// The final objective value, present only for succeeded trials.
	FinalValue *float64 `json:"finalValue,omitempty" yaml:"finalValue,omitempty"`
	// Per-metric values for multi-objective studies; samplers consume these
	// through a scalarizing wrapper.
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty"`
	// Intermediate objective values in rung order.
	Observations []Observation `json:"observations,omitempty" yaml:"observations,omitempty"`
	// The Hyperband bracket the trial was assigned to.
	Bracket int `json:"bracket,omitempty" yaml:"bracket,omitempty"`
	// The reason a failed trial failed.
	FailureReason string `json:"failureReason,omitempty" yaml:"failureReason,omitempty"`
	// Timestamps for creation and termination.
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}

// IsTerminal checks if the trial reached one of the terminal states.
func (t *Trial) IsTerminal() bool {
	switch t.Status {
	case TrialSucceeded, TrialPruned, TrialFailed:
		return true
	}
	return false
}

// IsActive checks if the trial is still waiting for or undergoing evaluation.
func (t *Trial) IsActive() bool {
	return !t.IsTerminal()
}

// LatestObservation returns the most recently reported observation or nil.
func (t *Trial) LatestObservation() *Observation {
	if len(t.Observations) == 0 {
		return nil
	}
	return &t.Observations[len(t.Observations)-1]
}

// ObservationAt returns the observation at the supplied rung or nil.
func (t *Trial) ObservationAt(rung int) *Observation {
	for i := range t.Observations {
		if t.Observations[i].Rung == rung {
			return &t.Observations[i]
		}
	}
	return nil
}
