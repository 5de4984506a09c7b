package learning

import "math"

// wilsonZ is the z-score for a 95% confidence interval.
const wilsonZ = 1.959963984540054

// WilsonInterval computes the Wilson score interval for successes out of
// n trials at a 95% confidence level, returning (center, halfWidth) so a
// caller can derive [center-halfWidth, center+halfWidth]. With n == 0 it
// returns a center of 0 and the maximal width of 1.
func WilsonInterval(successes, n int) (center, halfWidth float64) {
	if n <= 0 {
		return 0, 1
	}
	p := float64(successes) / float64(n)
	z2 := wilsonZ * wilsonZ
	denom := 1 + z2/float64(n)
	centerAdj := p + z2/(2*float64(n))
	center = centerAdj / denom
	margin := wilsonZ * math.Sqrt(p*(1-p)/float64(n)+z2/(4*float64(n)*float64(n)))
	halfWidth = margin / denom
	return center, halfWidth
}

// WilsonWidth returns the full width (2*halfWidth) of the interval, the
// quantity the routing-profile refresh uses to adapt thresholds.
func WilsonWidth(successes, n int) float64 {
	_, half := WilsonInterval(successes, n)
	return 2 * half
}
