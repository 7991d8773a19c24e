package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reflow_oven/internal/models"
)

func rateTable() ([]float32, []models.RateRow) {
	points := []float32{50, 100, 150}
	table := make([]models.RateRow, len(points))
	for i := range points {
		for b := 0; b < models.PowerBuckets; b++ {
			table[i][b] = float32((i+1)*10 + b)
		}
	}
	return points, table
}

func TestBucketFor(t *testing.T) {
	cases := map[float32]int{
		0:   0,
		5:   0,
		10:  0,
		19:  0,
		20:  1,
		55:  4,
		100: 9,
		150: 9,
	}
	for in, want := range cases {
		assert.Equalf(t, want, bucketFor(in), "percent %v", in)
	}
}

func TestLookupRate_ExactPointHasNoInterpolationError(t *testing.T) {
	points, table := rateTable()
	for i, p := range points {
		for b := 0; b < models.PowerBuckets; b++ {
			pct := float32((b + 1) * 10)
			assert.Equal(t, table[i][b], lookupRate(points, table, pct, p))
		}
	}
}

func TestLookupRate_BetweenPointsIsBracketed(t *testing.T) {
	points, table := rateTable()

	got := lookupRate(points, table, 50, 75)
	assert.InDelta(t, 19.0, got, 1e-5)
	assert.GreaterOrEqual(t, got, table[0][4])
	assert.LessOrEqual(t, got, table[1][4])

	prev := table[0][4]
	for temp := float32(51); temp < 150; temp += 7 {
		v := lookupRate(points, table, 50, temp)
		assert.GreaterOrEqual(t, v, prev, "interpolation must be monotonic at %v", temp)
		prev = v
	}
}

func TestLookupRate_OutsideRangeClampsToEnds(t *testing.T) {
	points, table := rateTable()

	assert.Equal(t, table[0][9], lookupRate(points, table, 100, 20))
	assert.Equal(t, table[2][0], lookupRate(points, table, 10, 400))
}

func TestLookupRate_EmptyTable(t *testing.T) {
	assert.Zero(t, lookupRate(nil, nil, 50, 100))
}
