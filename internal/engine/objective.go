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

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
)

// Decision is the executor's answer to an intermediate report.
type Decision int

const (
	// Continue lets the objective proceed to the next rung.
	Continue Decision = iota
	// Prune tells the objective to stop promptly; whatever it returns
	// afterwards is discarded and the trial finalizes as pruned.
	Prune
)

// Report delivers an intermediate objective value at a rung. Rungs must be
// reported in strictly increasing order. The returned decision must be
// honored by returning promptly when it is Prune.
type Report func(value float64, rung int) Decision

// Objective evaluates one parameter assignment. Intermediate values go
// through the report callback; the returned value is the trial's final value.
// An error fails the single trial, never the study.
type Objective func(ctx context.Context, assignments v1alpha1.Assignments, report Report) (float64, error)
