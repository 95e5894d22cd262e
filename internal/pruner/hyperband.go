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

package pruner

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/storage"
)

// Hyperband runs successive halving over multiple brackets. Bracket s of
// s_max..0 starts n_s = ceil((s_max+1)*eta^s/(s+1)) trials at resource
// r_s = R*eta^(-s); at each rung the population is ranked by its most recent
// value and the top 1/eta fraction (at least one) advances. No decision is
// made at a rung until WarmupPeers peers have reported there, and ranking
// ties go to the older trial so the schedule is deterministic under a fixed
// seed and arrival order.
type Hyperband struct {
	// The halving rate eta.
	ReductionFactor int
	// Resource of the first rung of the largest bracket.
	MinResource float64
	// Resource of a fully trained trial.
	MaxResource float64
	// Peers required at a rung before pruning there.
	WarmupPeers int
	// Direction the study optimizes in.
	Goal v1alpha1.Goal
}

var _ Pruner = &Hyperband{}

// FromSpec builds a Hyperband pruner from a defaulted pruner spec.
func FromSpec(spec v1alpha1.PrunerSpec, goal v1alpha1.Goal) *Hyperband {
	return &Hyperband{
		ReductionFactor: spec.ReductionFactor,
		MinResource:     spec.MinResource,
		MaxResource:     spec.MaxResource,
		WarmupPeers:     spec.WarmupPeers,
		Goal:            goal,
	}
}

// SMax is the largest bracket index, floor(log_eta(R/r_min)).
func (h *Hyperband) SMax() int {
	if h.ReductionFactor <= 1 {
		return 0
	}
	return int(math.Floor(math.Log(h.MaxResource/h.MinResource) / math.Log(float64(h.ReductionFactor))))
}

// BracketSize is the number of trials bracket s starts with.
func (h *Hyperband) BracketSize(s int) int {
	sMax := h.SMax()
	eta := float64(h.ReductionFactor)
	return int(math.Ceil(float64(sMax+1) * math.Pow(eta, float64(s)) / float64(s+1)))
}

// Resource is the budget a trial of bracket s should consume up to rung k,
// r_s * eta^k.
func (h *Hyperband) Resource(s, k int) float64 {
	eta := float64(h.ReductionFactor)
	return h.MaxResource * math.Pow(eta, float64(k-s))
}

// AssignBracket cycles trials through the brackets largest first, each
// bracket receiving its size's worth of consecutive trials.
func (h *Hyperband) AssignBracket(trialNumber int64) int {
	sMax := h.SMax()
	if sMax == 0 {
		return 0
	}

	var total int64
	for s := sMax; s >= 0; s-- {
		total += int64(h.BracketSize(s))
	}

	index := trialNumber % total
	for s := sMax; s >= 0; s-- {
		size := int64(h.BracketSize(s))
		if index < size {
			return s
		}
		index -= size
	}
	return 0
}

// Keep ranks the rung population of the trial's bracket and keeps the trial
// only when it is in the advancing fraction. The population always contains
// the reporting trial's own observation; its absence means the bookkeeping is
// corrupt and the study must not continue.
func (h *Hyperband) Keep(ctx context.Context, store storage.Store, study *v1alpha1.Study, trial *v1alpha1.Trial, rung int) (bool, error) {
	// eta=1 degenerates to plain parallel search with no pruning
	if h.ReductionFactor <= 1 {
		return true, nil
	}

	// Past the bracket's final halving rung every survivor runs to completion
	if rung >= trial.Bracket {
		return true, nil
	}

	population, err := store.ObservationsAtRung(ctx, study.ID, trial.Bracket, rung)
	if err != nil {
		return false, fmt.Errorf("rung %d population of bracket %d: %w", rung, trial.Bracket, err)
	}

	self := -1
	for i := range population {
		if population[i].TrialNumber == trial.Number {
			self = i
			break
		}
	}
	if self < 0 {
		return false, fmt.Errorf("trial %d missing from rung %d population of bracket %d", trial.Number, rung, trial.Bracket)
	}

	// Let the early reporters continue until enough peers arrive
	if len(population) < h.WarmupPeers {
		return true, nil
	}

	ranked := make([]storage.TrialObservation, len(population))
	copy(ranked, population)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Value == ranked[j].Value {
			return ranked[i].TrialNumber < ranked[j].TrialNumber
		}
		return h.Goal.IsBetter(ranked[i].Value, ranked[j].Value)
	})

	advancing := len(ranked) / h.ReductionFactor
	if advancing < 1 {
		advancing = 1
	}
	for i := 0; i < advancing; i++ {
		if ranked[i].TrialNumber == trial.Number {
			return true, nil
		}
	}
	return false, nil
}
