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

// Package pruner decides whether a trial should stop early based on the
// intermediate values its peers reported at the same rung.
package pruner

import (
	"context"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/storage"
)

// Pruner is the early stopping policy of a study. Keep must decide for every
// reporting trial, and the decision is monotone: the executor finalizes a
// pruned trial so it can never advance afterwards.
type Pruner interface {
	// AssignBracket places a new trial into its cohort.
	AssignBracket(trialNumber int64) int
	// Keep reports whether the trial should continue after reporting at the
	// supplied rung. The store provides the rung population of the trial's
	// bracket.
	Keep(ctx context.Context, store storage.Store, study *v1alpha1.Study, trial *v1alpha1.Trial, rung int) (bool, error)
}

// Nop keeps every trial; it is the pruner of studies without early stopping.
type Nop struct{}

var _ Pruner = Nop{}

// AssignBracket places every trial in bracket zero.
func (Nop) AssignBracket(int64) int { return 0 }

// Keep always continues the trial.
func (Nop) Keep(context.Context, storage.Store, *v1alpha1.Study, *v1alpha1.Trial, int) (bool, error) {
	return true, nil
}
