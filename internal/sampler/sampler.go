// Package sampler implements the proportional stratified sampling spec
// §4.7 describes: group by code range and market segment, then apportion
// seats by largest-remainder (Hamilton's method) before drawing uniformly
// without replacement.
package sampler

import (
	"math/rand"
	"sort"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

const (
	passthroughThreshold = 100
	defaultMaxPerRange   = 10
)

// rangeKey buckets a symbol code by its leading digit: "7203" -> "7000".
// Codes shorter than 4 digits fall into "other".
func rangeKey(code string) string {
	if len(code) < 4 {
		return "other"
	}
	return string(code[0]) + "000"
}

// Sample returns a proportionally stratified subset of xs. If xs has 100
// or fewer elements it is returned unchanged; otherwise each code range is
// capped at min(maxPerRange, its total count), with seats apportioned
// across that range's market segments by largest remainder and drawn
// uniformly without replacement.
func Sample(xs []model.Detection, maxPerRange int, rnd *rand.Rand) []model.Detection {
	if maxPerRange <= 0 {
		maxPerRange = defaultMaxPerRange
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	if len(xs) <= passthroughThreshold {
		return xs
	}

	byRange := make(map[string][]model.Detection)
	for _, d := range xs {
		key := rangeKey(d.Symbol.Code)
		byRange[key] = append(byRange[key], d)
	}

	var out []model.Detection
	for _, rangeItems := range byRange {
		out = append(out, sampleRange(rangeItems, maxPerRange, rnd)...)
	}
	return out
}

func sampleRange(items []model.Detection, maxPerRange int, rnd *rand.Rand) []model.Detection {
	bySegment := make(map[model.MarketSegment][]model.Detection)
	var segments []model.MarketSegment
	for _, d := range items {
		seg := d.Symbol.MarketSegment
		if _, ok := bySegment[seg]; !ok {
			segments = append(segments, seg)
		}
		bySegment[seg] = append(bySegment[seg], d)
	}

	total := len(items)
	target := maxPerRange
	if total < target {
		target = total
	}

	type quota struct {
		segment   model.MarketSegment
		floor     int
		remainder float64
		available int
	}
	quotas := make([]quota, 0, len(segments))
	allocated := 0
	for _, seg := range segments {
		count := len(bySegment[seg])
		ideal := float64(count) / float64(total) * float64(target)
		floor := int(ideal)
		quotas = append(quotas, quota{segment: seg, floor: floor, remainder: ideal - float64(floor), available: count})
		allocated += floor
	}

	remaining := target - allocated
	sort.Slice(quotas, func(i, j int) bool { return quotas[i].remainder > quotas[j].remainder })
	for i := 0; i < len(quotas) && remaining > 0; i++ {
		if quotas[i].floor < quotas[i].available {
			quotas[i].floor++
			remaining--
		}
	}

	var out []model.Detection
	for _, q := range quotas {
		seats := q.floor
		if seats > q.available {
			seats = q.available
		}
		out = append(out, drawWithoutReplacement(bySegment[q.segment], seats, rnd)...)
	}
	return out
}

func drawWithoutReplacement(items []model.Detection, n int, rnd *rand.Rand) []model.Detection {
	if n >= len(items) {
		return items
	}
	shuffled := make([]model.Detection, len(items))
	copy(shuffled, items)
	rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
