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
	"math/rand"
	"sort"
)

// copula couples the continuous dimensions of the good split through a
// Gaussian copula: each marginal is sent to a standard normal score via its
// empirical CDF, the correlation of the scores is estimated with shrinkage
// toward identity, and candidates are drawn through the Cholesky factor and
// mapped back through the marginal quantiles. A nil copula means independent
// dimensions, which is exactly the univariate sampler.
type copula struct {
	chol [][]float64
}

// fitCopula estimates the correlation structure from per-dimension columns of
// equal length n. It returns nil when there is nothing to couple.
func fitCopula(columns [][]float64) *copula {
	d := len(columns)
	if d < 2 {
		return nil
	}
	n := len(columns[0])
	if n < 2 {
		return nil
	}

	// Rank-based normal scores of each marginal
	scores := make([][]float64, d)
	for j, col := range columns {
		scores[j] = normalScores(col)
	}

	// Sample correlation of the scores, shrunk toward identity. The shrinkage
	// grows as the row count approaches the dimension count, which keeps the
	// estimate full rank instead of silently dropping to univariate.
	lambda := math.Max(0.1, 1-float64(n)/(float64(n)+float64(d*d)))
	corr := make([][]float64, d)
	for i := range corr {
		corr[i] = make([]float64, d)
		corr[i][i] = 1
	}
	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			r := correlation(scores[i], scores[j])
			r *= 1 - lambda
			corr[i][j] = r
			corr[j][i] = r
		}
	}

	chol, ok := cholesky(corr)
	if !ok {
		return nil
	}
	return &copula{chol: chol}
}

// sample draws one uniform vector with the fitted dependence structure.
func (c *copula) sample(rng *rand.Rand) []float64 {
	d := len(c.chol)
	normals := make([]float64, d)
	for i := range normals {
		normals[i] = rng.NormFloat64()
	}

	u := make([]float64, d)
	for i := 0; i < d; i++ {
		var z float64
		for j := 0; j <= i; j++ {
			z += c.chol[i][j] * normals[j]
		}
		u[i] = normCDF(z)
	}
	return u
}

// normalScores maps values to standard normal quantiles of their mid-ranks.
func normalScores(values []float64) []float64 {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	scores := make([]float64, n)
	for rank, i := range order {
		scores[i] = normQuantile((float64(rank) + 0.5) / float64(n))
	}
	return scores
}

func correlation(a, b []float64) float64 {
	n := float64(len(a))
	var ma, mb float64
	for i := range a {
		ma += a[i]
		mb += b[i]
	}
	ma /= n
	mb /= n

	var sab, saa, sbb float64
	for i := range a {
		da, db := a[i]-ma, b[i]-mb
		sab += da * db
		saa += da * da
		sbb += db * db
	}
	if saa == 0 || sbb == 0 {
		return 0
	}
	return sab / math.Sqrt(saa*sbb)
}

// cholesky returns the lower triangular factor of a symmetric positive
// definite matrix, or false if the matrix is not positive definite.
func cholesky(m [][]float64) ([][]float64, bool) {
	d := len(m)
	l := make([][]float64, d)
	for i := range l {
		l[i] = make([]float64, d)
	}
	for i := 0; i < d; i++ {
		for j := 0; j <= i; j++ {
			sum := m[i][j]
			for k := 0; k < j; k++ {
				sum -= l[i][k] * l[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, false
				}
				l[i][i] = math.Sqrt(sum)
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l, true
}

// normQuantile is the standard normal quantile function (Acklam's rational
// approximation, |relative error| < 1.15e-9).
func normQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > 1-pLow:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
