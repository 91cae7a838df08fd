package sampler

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

func detections(code string, segment model.MarketSegment, n int) []model.Detection {
	out := make([]model.Detection, n)
	for i := range out {
		out[i] = model.Detection{Symbol: model.Symbol{Code: code, MarketSegment: segment}}
	}
	return out
}

func TestSample_PassthroughAt100OrFewer(t *testing.T) {
	xs := detections("7203", model.SegmentPrime, 100)
	got := Sample(xs, 10, rand.New(rand.NewSource(1)))
	assert.Len(t, got, 100)
}

// TestSample_ProportionalExample reproduces spec's S5 scenario: a single
// 1000-series code range with Prime:40, Standard:30, Growth:10 (80 total,
// padded below with a second range so the input exceeds the passthrough
// threshold) sampled at maxPerRange=10 should yield 5 Prime, 4 Standard,
// 1 Growth.
func TestSample_ProportionalExample(t *testing.T) {
	var xs []model.Detection
	xs = append(xs, detections("1001", model.SegmentPrime, 40)...)
	xs = append(xs, detections("1002", model.SegmentStandard, 30)...)
	xs = append(xs, detections("1003", model.SegmentGrowth, 10)...)
	// pad past the passthrough threshold with another range so Sample
	// actually stratifies instead of returning everything unchanged.
	xs = append(xs, detections("2001", model.SegmentPrime, 25)...)

	got := Sample(xs, 10, rand.New(rand.NewSource(1)))

	counts := map[model.MarketSegment]int{}
	for _, d := range got {
		if d.Symbol.Code[0] == '1' {
			counts[d.Symbol.MarketSegment]++
		}
	}
	assert.Equal(t, 5, counts[model.SegmentPrime])
	assert.Equal(t, 4, counts[model.SegmentStandard])
	assert.Equal(t, 1, counts[model.SegmentGrowth])
}

func TestSample_PerRangeCapped(t *testing.T) {
	xs := detections("1001", model.SegmentPrime, 200)
	got := Sample(xs, 10, rand.New(rand.NewSource(1)))
	assert.LessOrEqual(t, len(got), 10)
}

func TestSample_DeterministicWithSameSeed(t *testing.T) {
	xs := detections("1001", model.SegmentPrime, 150)
	a := Sample(xs, 10, rand.New(rand.NewSource(42)))
	b := Sample(xs, 10, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}
