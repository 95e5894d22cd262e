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

package sampler

import (
	"math"
	"math/rand"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/searchspace"
)

// Grid walks the cartesian product of per-dimension grids in trial order,
// wrapping around once the grid is exhausted. Continuous dimensions are
// discretized to Resolution points; int, discrete and categorical dimensions
// enumerate their natural grid up to Resolution points.
type Grid struct {
	// Points per continuous dimension.
	Resolution int
}

var _ Sampler = Grid{}

// Sample proposes the assignment at the trial's position in the grid walk.
func (g Grid) Sample(params v1alpha1.Parameters, trialNumber int64, _ []v1alpha1.Trial, _ *rand.Rand) (v1alpha1.Assignments, error) {
	resolution := g.Resolution
	if resolution < 2 {
		resolution = 10
	}

	sizes := make([]int64, len(params))
	var total int64 = 1
	for i := range params {
		sizes[i] = gridSize(&params[i], resolution)
		total *= sizes[i]
	}

	// Mixed radix decode of the wrapped trial number, first parameter fastest.
	index := trialNumber % total
	assignments := make(v1alpha1.Assignments, 0, len(params))
	for i := range params {
		p := &params[i]
		digit := index % sizes[i]
		index /= sizes[i]

		lo, hi := searchspace.UnitRange(p)
		x := lo + (float64(digit)+0.5)*(hi-lo)/float64(sizes[i])
		assignments = append(assignments, v1alpha1.Assignment{
			ParameterName: p.Name,
			Value:         searchspace.FromUnit(p, x),
		})
	}
	return assignments, nil
}

func gridSize(p *v1alpha1.Parameter, resolution int) int64 {
	size := int64(resolution)
	switch p.Type {
	case v1alpha1.ParameterTypeInt:
		if span := int64(p.Bounds.Max-p.Bounds.Min) + 1; span < size {
			size = span
		}
	case v1alpha1.ParameterTypeDiscreteUniform:
		if points := int64(math.Floor((p.Bounds.Max-p.Bounds.Min)/p.Step)) + 1; points < size {
			size = points
		}
	case v1alpha1.ParameterTypeCategorical:
		size = int64(len(p.Choices))
	}
	if size < 1 {
		size = 1
	}
	return size
}
