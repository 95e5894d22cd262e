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

package tpe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thestormforge/optimize-engine/internal/rng"
)

func TestNormQuantileInvertsCDF(t *testing.T) {
	for _, p := range []float64{0.001, 0.02, 0.25, 0.5, 0.75, 0.98, 0.999} {
		assert.InDelta(t, p, normCDF(normQuantile(p)), 1e-8, "p=%g", p)
	}
	assert.True(t, math.IsInf(normQuantile(0), -1))
	assert.True(t, math.IsInf(normQuantile(1), 1))
}

func TestCholesky(t *testing.T) {
	l, ok := cholesky([][]float64{{1, 0.5}, {0.5, 1}})
	require.True(t, ok)
	assert.InDelta(t, 1.0, l[0][0], 1e-12)
	assert.InDelta(t, 0.5, l[1][0], 1e-12)
	assert.InDelta(t, math.Sqrt(0.75), l[1][1], 1e-12)

	// Not positive definite
	_, ok = cholesky([][]float64{{1, 2}, {2, 1}})
	assert.False(t, ok)
}

func TestFitCopulaDegenerate(t *testing.T) {
	// A single dimension has nothing to couple
	assert.Nil(t, fitCopula([][]float64{{1, 2, 3}}))
	// Fewer than two rows cannot estimate a correlation
	assert.Nil(t, fitCopula([][]float64{{1}, {2}}))
}

func TestFitCopulaCapturesCorrelation(t *testing.T) {
	// Strongly coupled columns produce a non-trivial off-diagonal factor
	n := 40
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = float64(i)
		b[i] = float64(i) * 2
	}
	c := fitCopula([][]float64{a, b})
	require.NotNil(t, c)
	assert.Greater(t, c.chol[1][0], 0.5)

	// Shrinkage keeps the factor strictly inside the unit ball so the
	// conditional distribution never degenerates
	assert.Greater(t, c.chol[1][1], 0.0)
}

func TestFitCopulaIndependentIsNearIdentity(t *testing.T) {
	r := rng.New(7, 0)
	n := 200
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = r.Float64()
		b[i] = r.Float64()
	}
	c := fitCopula([][]float64{a, b})
	require.NotNil(t, c)
	assert.InDelta(t, 0.0, c.chol[1][0], 0.2)
	assert.InDelta(t, 1.0, c.chol[0][0], 1e-12)
}

func TestIdentityCopulaSamplesIndependentUniforms(t *testing.T) {
	// With an identity factor the coupled uniforms are exactly the normal CDF
	// of independent draws, which is the univariate proposal path
	c := &copula{chol: [][]float64{{1, 0}, {0, 1}}}

	u := c.sample(rng.New(3, 1))
	want := rng.New(3, 1)
	assert.Equal(t, normCDF(want.NormFloat64()), u[0])
	assert.Equal(t, normCDF(want.NormFloat64()), u[1])

	for _, v := range u {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
