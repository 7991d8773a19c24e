package calibration

import (
	"sort"

	"github.com/chewxy/math32"

	"reflow_oven/internal/models"
)

// bucketFor maps a power percentage to its table column: floor(p/10)-1 in [0,9].
func bucketFor(percent float32) int {
	b := int(math32.Floor(percent/10)) - 1
	if b < 0 {
		return 0
	}
	if b >= models.PowerBuckets {
		return models.PowerBuckets - 1
	}
	return b
}

// lookupRate interpolates table between the two temperature points bracketing tempC.
// Outside the configured range the nearest point is used.
func lookupRate(points []float32, table []models.RateRow, percent, tempC float32) float32 {
	n := len(points)
	if n == 0 || len(table) < n || math32.IsNaN(tempC) {
		return 0
	}
	b := bucketFor(percent)

	if tempC <= points[0] {
		return table[0][b]
	}
	if tempC >= points[n-1] {
		return table[n-1][b]
	}

	// first index whose point is >= tempC; 1 <= hi <= n-1 here
	hi := sort.Search(n, func(i int) bool { return points[i] >= tempC })
	if points[hi] == tempC {
		return table[hi][b]
	}
	lo := hi - 1
	span := points[hi] - points[lo]
	if span <= 0 {
		return table[lo][b]
	}
	frac := (tempC - points[lo]) / span
	r0, r1 := table[lo][b], table[hi][b]
	return r0 + (r1-r0)*frac
}
