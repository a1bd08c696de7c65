package lsh

import "math"

const integrationSteps = 256

// integrate applies composite Simpson's rule to f over [a, b].
func integrate(f func(float64) float64, a, b float64) float64 {
	if b <= a {
		return 0
	}
	h := (b - a) / integrationSteps
	sum := f(a) + f(b)
	for i := 1; i < integrationSteps; i++ {
		x := a + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	return sum * h / 3
}

// collision is the probability that two signatures with Jaccard s share at
// least one of b bands of r rows.
func collision(s float64, b, r int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(r)), float64(b))
}

func falsePositive(threshold float64, b, r int) float64 {
	return integrate(func(s float64) float64 { return collision(s, b, r) }, 0, threshold)
}

func falseNegative(threshold float64, b, r int) float64 {
	return integrate(func(s float64) float64 { return 1 - collision(s, b, r) }, threshold, 1)
}

// OptimalParams picks the band count and rows per band (b*r <= numPerm)
// minimising the weighted false positive and false negative areas around
// threshold.
func OptimalParams(threshold float64, numPerm int, fpWeight, fnWeight float64) (bands, rows int) {
	minErr := math.Inf(1)
	for b := 1; b <= numPerm; b++ {
		for r := 1; r <= numPerm/b; r++ {
			err := fpWeight*falsePositive(threshold, b, r) + fnWeight*falseNegative(threshold, b, r)
			if err < minErr {
				minErr, bands, rows = err, b, r
			}
		}
	}
	return bands, rows
}
