// Package stats provides the statistics behind experiment results:
// Wilson score intervals for per-variant conversion rates and a
// two-proportion z-test for variant comparisons.
package stats

import "math"

// WilsonInterval calculates the Wilson score confidence interval for a
// binomial proportion. More accurate for small samples than the normal
// approximation.
func WilsonInterval(successes, trials int, confidence float64) (lower, upper float64) {
	if trials == 0 {
		return 0, 0
	}

	z := ZScore(confidence)
	p := float64(successes) / float64(trials)
	n := float64(trials)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	lower = center - spread
	upper = center + spread

	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return lower, upper
}

// ZScore returns the z-score for a confidence level. Common levels use
// precomputed values; anything else falls back to 95%.
func ZScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.576
	case confidence >= 0.95:
		return 1.96
	case confidence >= 0.90:
		return 1.645
	case confidence >= 0.85:
		return 1.44
	case confidence >= 0.80:
		return 1.28
	default:
		return 1.96
	}
}

// SignificanceTest performs a two-proportion z-test and returns the
// confidence (0-1) that variant A converts better than variant B.
// With no data on either side the answer is an uninformative 0.5.
func SignificanceTest(aConv, aImpressions, bConv, bImpressions int) float64 {
	if aImpressions == 0 || bImpressions == 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aImpressions)
	pB := float64(bConv) / float64(bImpressions)

	// Pooled proportion under the null hypothesis pA = pB.
	pooled := float64(aConv+bConv) / float64(aImpressions+bImpressions)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(aImpressions) + 1/float64(bImpressions)))

	if se == 0 {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		default:
			return 0.5
		}
	}

	z := (pA - pB) / se
	return normalCDF(z)
}

// normalCDF approximates the standard normal CDF using Abramowitz & Stegun
// formula 7.1.26.
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
