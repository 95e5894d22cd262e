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
	"sort"
)

// parzen is a one dimensional density estimate in unit space: a mixture of
// truncated Gaussians centered at the observed values plus a uniform prior
// component. Observation components carry weight 1/(pw+n) each and the prior
// pw/(pw+n), so the prior fades as evidence accumulates.
type parzen struct {
	lo, hi float64
	mus    []float64
	sigmas []float64
	priorW float64
	pointW float64
	// priorOnly marks a degenerate dimension (no spread in the observations);
	// the estimate falls back to the uniform prior alone.
	priorOnly bool
}

func newParzen(values []float64, lo, hi, priorWeight float64) *parzen {
	e := &parzen{lo: lo, hi: hi, priorW: 1, priorOnly: true}
	n := len(values)
	if n == 0 {
		return e
	}

	mus := append([]float64(nil), values...)
	sort.Float64s(mus)

	var mean, m2 float64
	for _, v := range mus {
		mean += v
	}
	mean /= float64(n)
	for _, v := range mus {
		m2 += (v - mean) * (v - mean)
	}
	sigmaHat := math.Sqrt(m2 / float64(n))

	if sigmaHat == 0 && n > 1 {
		// All observed values identical: the KDE would collapse to a spike,
		// so this dimension keeps the uniform prior only.
		return e
	}

	// Each kernel scales with the spacing to its nearest neighbor, capped by
	// Scott's rule over the whole set and floored so tight clusters cannot
	// degenerate. A straggler far from the cluster keeps a wide kernel while
	// the dense core is modeled at the floor, which is what lets the sampler
	// actually exploit a basin once the history concentrates in it.
	floor := math.Max(0.01, (hi-lo)/100)
	scott := sigmaHat * math.Pow(float64(n), -0.2)
	if scott < floor {
		scott = floor
	}

	sigmas := make([]float64, n)
	if n == 1 {
		sigmas[0] = math.Max((hi-lo)/4, floor)
	}
	for i := 0; n > 1 && i < n; i++ {
		var spacing float64
		switch {
		case i == 0:
			spacing = mus[1] - mus[0]
		case i == n-1:
			spacing = mus[n-1] - mus[n-2]
		default:
			spacing = math.Min(mus[i]-mus[i-1], mus[i+1]-mus[i])
		}
		if spacing > scott {
			spacing = scott
		}
		if spacing < floor {
			spacing = floor
		}
		sigmas[i] = spacing
	}

	e.priorOnly = false
	e.mus = mus
	e.sigmas = sigmas
	e.priorW = priorWeight / (priorWeight + float64(n))
	e.pointW = 1 / (priorWeight + float64(n))
	return e
}

// logPDF evaluates the log density at x.
func (e *parzen) logPDF(x float64) float64 {
	logPrior := math.Log(e.priorW) - math.Log(e.hi-e.lo)
	if e.priorOnly {
		return logPrior
	}

	acc := logPrior
	logPoint := math.Log(e.pointW)
	for i, mu := range e.mus {
		acc = logAddExp(acc, logPoint+logTruncNormPDF(x, mu, e.sigmas[i], e.lo, e.hi))
	}
	return acc
}

// cdf evaluates the cumulative distribution at x.
func (e *parzen) cdf(x float64) float64 {
	if x <= e.lo {
		return 0
	}
	if x >= e.hi {
		return 1
	}
	acc := e.priorW * (x - e.lo) / (e.hi - e.lo)
	if e.priorOnly {
		return acc
	}
	for i, mu := range e.mus {
		acc += e.pointW * truncNormCDF(x, mu, e.sigmas[i], e.lo, e.hi)
	}
	return acc
}

// quantile inverts the cdf by bisection; the cdf is strictly increasing on
// (lo,hi) so 64 iterations pin the result well below any bandwidth floor.
func (e *parzen) quantile(u float64) float64 {
	lo, hi := e.lo, e.hi
	for i := 0; i < 64; i++ {
		mid := (lo + hi) / 2
		if e.cdf(mid) < u {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// multinomial is a smoothed categorical density: observed counts plus a
// pseudocount of priorWeight/k per choice.
type multinomial struct {
	logProbs []float64
	cum      []float64
}

func newMultinomial(indices []int, k int, priorWeight float64) *multinomial {
	counts := make([]float64, k)
	for _, i := range indices {
		if i >= 0 && i < k {
			counts[i]++
		}
	}
	total := float64(len(indices)) + priorWeight

	m := &multinomial{logProbs: make([]float64, k), cum: make([]float64, k)}
	acc := 0.0
	for i := range counts {
		p := (counts[i] + priorWeight/float64(k)) / total
		m.logProbs[i] = math.Log(p)
		acc += p
		m.cum[i] = acc
	}
	// Guard against accumulated rounding on the final bucket
	m.cum[k-1] = 1
	return m
}

func (m *multinomial) logProb(i int) float64 {
	return m.logProbs[i]
}

func (m *multinomial) sample(u float64) int {
	for i, c := range m.cum {
		if u < c {
			return i
		}
	}
	return len(m.cum) - 1
}

// logTruncNormPDF is the log density of a Gaussian truncated to [lo,hi].
func logTruncNormPDF(x, mu, sigma, lo, hi float64) float64 {
	if x < lo || x > hi {
		return math.Inf(-1)
	}
	z := normCDF((hi-mu)/sigma) - normCDF((lo-mu)/sigma)
	if z <= 0 {
		return math.Inf(-1)
	}
	t := (x - mu) / sigma
	return -0.5*t*t - math.Log(sigma) - 0.5*math.Log(2*math.Pi) - math.Log(z)
}

// truncNormCDF is the cumulative distribution of a Gaussian truncated to [lo,hi].
func truncNormCDF(x, mu, sigma, lo, hi float64) float64 {
	if x <= lo {
		return 0
	}
	if x >= hi {
		return 1
	}
	a := normCDF((lo - mu) / sigma)
	z := normCDF((hi-mu)/sigma) - a
	if z <= 0 {
		return 1
	}
	return (normCDF((x-mu)/sigma) - a) / z
}

// normCDF is the standard normal cumulative distribution.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// logAddExp computes log(exp(a)+exp(b)) without overflow.
func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
