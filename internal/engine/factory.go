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
	"fmt"

	"github.com/thestormforge/optimize-engine/api/v1alpha1"
	"github.com/thestormforge/optimize-engine/internal/pruner"
	"github.com/thestormforge/optimize-engine/internal/sampler"
	"github.com/thestormforge/optimize-engine/internal/sampler/tpe"
)

// newSampler binds a defaulted study's sampler spec to an implementation.
func newSampler(study *v1alpha1.Study) (sampler.Sampler, error) {
	var s sampler.Sampler
	switch study.Sampler.Type {
	case v1alpha1.SamplerRandom:
		s = sampler.Random{}
	case v1alpha1.SamplerGrid:
		s = sampler.Grid{Resolution: study.Sampler.GridResolution}
	case v1alpha1.SamplerTPE:
		s = tpe.FromSpec(study.Sampler, study.Goal)
	default:
		return nil, fmt.Errorf("unknown sampler %q", study.Sampler.Type)
	}

	if study.Sampler.ConstantLiar {
		s = &sampler.ConstantLiar{Sampler: s, Goal: study.Goal}
	}
	return s, nil
}

// newPruner binds a defaulted study's pruner spec to an implementation.
func newPruner(study *v1alpha1.Study) (pruner.Pruner, error) {
	switch study.Pruner.Type {
	case v1alpha1.PrunerNone:
		return pruner.Nop{}, nil
	case v1alpha1.PrunerHyperband:
		return pruner.FromSpec(study.Pruner, study.Goal), nil
	}
	return nil, fmt.Errorf("unknown pruner %q", study.Pruner.Type)
}
