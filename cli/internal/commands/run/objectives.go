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

package run

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/engine"
)

// demoRungs is how many intermediate reports the demonstration objectives
// make before returning their final value.
const demoRungs = 4

// Benchmark functions for exercising the samplers without a real workload.
var demoObjectives = map[string]func(x []float64) float64{
	"sphere":     sphere,
	"rastrigin":  rastrigin,
	"rosenbrock": rosenbrock,
}

// DemoObjective looks up a built in benchmark function by name; the empty
// name selects sphere. The resulting objective simulates a training curve by
// reporting estimates that converge on the true value across rungs.
func DemoObjective(name string) (engine.Objective, error) {
	if name == "" {
		name = "sphere"
	}
	f, ok := demoObjectives[name]
	if !ok {
		names := make([]string, 0, len(demoObjectives))
		for n := range demoObjectives {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown objective %q, try one of: %s", name, strings.Join(names, ", "))
	}

	return func(ctx context.Context, assignments v1alpha1.Assignments, report engine.Report) (float64, error) {
		x := make([]float64, len(assignments))
		for i := range assignments {
			x[i] = assignments[i].Value.Float64Value()
		}
		value := f(x)

		for rung := 0; rung < demoRungs; rung++ {
			// Early estimates overshoot and decay toward the final value
			estimate := value * (1 + 1/float64(rung+1))
			if report(estimate, rung) == engine.Prune {
				return 0, nil
			}
		}
		return value, nil
	}, nil
}

func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

func rosenbrock(x []float64) float64 {
	var sum float64
	for i := 0; i+1 < len(x); i++ {
		sum += 100*math.Pow(x[i+1]-x[i]*x[i], 2) + math.Pow(1-x[i], 2)
	}
	return sum
}
