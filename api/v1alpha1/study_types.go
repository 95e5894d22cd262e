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
	"fmt"
	"time"
)

// Goal is the direction of optimization for a study.
type Goal string

const (
	// GoalMinimize indicates lower objective values are better.
	GoalMinimize Goal = "minimize"
	// GoalMaximize indicates higher objective values are better.
	GoalMaximize Goal = "maximize"
)

// IsBetter compares two objective values in the direction of the goal.
func (g Goal) IsBetter(a, b float64) bool {
	if g == GoalMaximize {
		return a > b
	}
	return a < b
}

// StudyStatus is the lifecycle state of a study.
type StudyStatus string

const (
	// StudyRunning indicates trials are being dispatched.
	StudyRunning StudyStatus = "running"
	// StudyPaused indicates no new trials will be dispatched until resumed.
	StudyPaused StudyStatus = "paused"
	// StudyCompleted indicates the study reached its trial budget or deadline.
	StudyCompleted StudyStatus = "completed"
	// StudyCancelled indicates the study was stopped before reaching its budget.
	StudyCancelled StudyStatus = "cancelled"
	// StudyFailed indicates the study aborted, e.g. on a persistence failure.
	StudyFailed StudyStatus = "failed"
)

// SamplerType selects the parameter proposal strategy.
type SamplerType string

const (
	// SamplerRandom draws assignments uniformly from the search space.
	SamplerRandom SamplerType = "random"
	// SamplerGrid walks a cartesian grid over the search space.
	SamplerGrid SamplerType = "grid"
	// SamplerTPE proposes assignments with the Tree-structured Parzen Estimator.
	SamplerTPE SamplerType = "tpe"
)

// BandwidthRule selects the KDE bandwidth formula used by the TPE sampler.
type BandwidthRule string

const (
	// BandwidthScott is Scott's rule, sigma * n^(-1/5).
	BandwidthScott BandwidthRule = "scott"
)

// SamplerSpec controls how the optimizer will generate trials.
type SamplerSpec struct {
	// The type of the sampler.
	Type SamplerType `json:"type" yaml:"type"`
	// Top fraction of the history treated as the "good" split by TPE.
	Gamma float64 `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	// Number of completed trials required before TPE engages.
	MinObservations int `json:"minObservations,omitempty" yaml:"minObservations,omitempty"`
	// Number of candidate proposals scored per TPE step.
	Candidates int `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	// The KDE bandwidth formula.
	BandwidthRule BandwidthRule `json:"bandwidthRule,omitempty" yaml:"bandwidthRule,omitempty"`
	// Weight of the uniform prior component in the density estimates.
	PriorWeight float64 `json:"priorWeight,omitempty" yaml:"priorWeight,omitempty"`
	// Model correlations between continuous dimensions with a Gaussian copula.
	Multivariate bool `json:"multivariate,omitempty" yaml:"multivariate,omitempty"`
	// Substitute a conservative value for in-flight trials when fitting densities.
	ConstantLiar bool `json:"constantLiar,omitempty" yaml:"constantLiar,omitempty"`
	// Points per continuous dimension for the grid sampler.
	GridResolution int `json:"gridResolution,omitempty" yaml:"gridResolution,omitempty"`
}

// PrunerType selects the early stopping strategy.
type PrunerType string

const (
	// PrunerNone disables early stopping.
	PrunerNone PrunerType = "none"
	// PrunerHyperband runs successive halving across multiple brackets.
	PrunerHyperband PrunerType = "hyperband"
)

// PrunerSpec controls how trials are stopped early.
type PrunerSpec struct {
	// The type of the pruner.
	Type PrunerType `json:"type" yaml:"type"`
	// The halving rate eta; a 1/eta fraction of each rung advances.
	ReductionFactor int `json:"reductionFactor,omitempty" yaml:"reductionFactor,omitempty"`
	// The resource allocated to the first rung of the largest bracket.
	MinResource float64 `json:"minResource,omitempty" yaml:"minResource,omitempty"`
	// The resource allocated to a fully trained trial.
	MaxResource float64 `json:"maxResource,omitempty" yaml:"maxResource,omitempty"`
	// Observations required at a rung before any pruning decision is made there.
	WarmupPeers int `json:"warmupPeers,omitempty" yaml:"warmupPeers,omitempty"`
}

// Study is one optimization run over a fixed search space and goal.
type Study struct {
	// The unique identifier of the study.
	ID string `json:"id" yaml:"id"`
	// The display name of the study.
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	// The direction of optimization.
	Goal Goal `json:"goal" yaml:"goal"`
	// The number of terminal trials after which the study completes.
	MaxTrials int `json:"maxTrials" yaml:"maxTrials"`
	// The maximum number of concurrently running trials.
	Parallelism int `json:"parallelism" yaml:"parallelism"`
	// Seed for the deterministic trial proposal stream.
	Seed int64 `json:"seed" yaml:"seed"`
	// Controls how the optimizer will generate trials.
	Sampler SamplerSpec `json:"sampler" yaml:"sampler"`
	// Controls how trials are stopped early.
	Pruner PrunerSpec `json:"pruner" yaml:"pruner"`
	// The current study status.
	Status StudyStatus `json:"status" yaml:"status"`
	// Optional assignments evaluated as trial zero before sampling begins.
	Baselines Assignments `json:"baselines,omitempty" yaml:"baselines,omitempty"`
	// Timestamps for creation and termination.
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
}

// Default fills in unset study options with their documented defaults.
func (s *Study) Default() {
	if s.Goal == "" {
		s.Goal = GoalMinimize
	}
	if s.Parallelism == 0 {
		s.Parallelism = 1
	}
	if s.Status == "" {
		s.Status = StudyRunning
	}
	s.Sampler.Default()
	s.Pruner.Default()
}

// Default fills in unset sampler options with their documented defaults.
func (s *SamplerSpec) Default() {
	if s.Type == "" {
		s.Type = SamplerTPE
	}
	if s.Gamma == 0 {
		// 0.25 keeps the good split informative without overfitting it; see the
		// TPE package documentation before changing this.
		s.Gamma = 0.25
	}
	if s.MinObservations == 0 {
		s.MinObservations = 10
	}
	if s.Candidates == 0 {
		s.Candidates = 24
	}
	if s.BandwidthRule == "" {
		s.BandwidthRule = BandwidthScott
	}
	if s.PriorWeight == 0 {
		s.PriorWeight = 1.0
	}
	if s.GridResolution == 0 {
		s.GridResolution = 10
	}
}

// Default fills in unset pruner options with their documented defaults.
func (s *PrunerSpec) Default() {
	if s.Type == "" {
		s.Type = PrunerNone
	}
	if s.Type == PrunerHyperband {
		if s.ReductionFactor == 0 {
			s.ReductionFactor = 3
		}
		if s.MinResource == 0 {
			s.MinResource = 1
		}
		if s.MaxResource == 0 {
			s.MaxResource = 81
		}
		if s.WarmupPeers == 0 {
			s.WarmupPeers = s.ReductionFactor
		}
	}
}

// Validate rejects studies whose configuration could never run.
func (s *Study) Validate() error {
	switch s.Goal {
	case GoalMinimize, GoalMaximize:
	default:
		return fmt.Errorf("study %q: unknown goal %q", s.ID, s.Goal)
	}
	if s.MaxTrials <= 0 {
		return fmt.Errorf("study %q: maxTrials (%d) must be positive", s.ID, s.MaxTrials)
	}
	if s.Parallelism <= 0 {
		return fmt.Errorf("study %q: parallelism (%d) must be positive", s.ID, s.Parallelism)
	}
	switch s.Sampler.Type {
	case SamplerRandom, SamplerGrid, SamplerTPE:
	default:
		return fmt.Errorf("study %q: unknown sampler %q", s.ID, s.Sampler.Type)
	}
	if s.Sampler.Gamma < 0 || s.Sampler.Gamma > 1 {
		return fmt.Errorf("study %q: gamma (%g) must be in [0,1]", s.ID, s.Sampler.Gamma)
	}
	if s.Sampler.BandwidthRule != BandwidthScott {
		return fmt.Errorf("study %q: unknown bandwidth rule %q", s.ID, s.Sampler.BandwidthRule)
	}
	switch s.Pruner.Type {
	case PrunerNone:
	case PrunerHyperband:
		if s.Pruner.ReductionFactor < 1 {
			return fmt.Errorf("study %q: reductionFactor (%d) must be at least 1", s.ID, s.Pruner.ReductionFactor)
		}
		if s.Pruner.MinResource <= 0 || s.Pruner.MaxResource < s.Pruner.MinResource {
			return fmt.Errorf("study %q: resource range [%g,%g] is invalid", s.ID, s.Pruner.MinResource, s.Pruner.MaxResource)
		}
		if s.Pruner.WarmupPeers < 1 {
			return fmt.Errorf("study %q: warmupPeers (%d) must be at least 1", s.ID, s.Pruner.WarmupPeers)
		}
	default:
		return fmt.Errorf("study %q: unknown pruner %q", s.ID, s.Pruner.Type)
	}
	return nil
}

// IsTerminal checks if the study reached one of the terminal states.
func (s *Study) IsTerminal() bool {
	switch s.Status {
	case StudyCompleted, StudyCancelled, StudyFailed:
		return true
	}
	return false
}
