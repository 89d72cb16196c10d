package analytics

import "math"

// readingWordsPerMinute is the assumed reading speed for expected dwell time.
const readingWordsPerMinute = 200

// CompletionRate scores how thoroughly a piece of content was consumed, in [0, 100].
//
// The scroll signal is scrollDepth/100 and the time signal is watch time over
// the expected reading time for wordCount words. A missing input contributes 0.
//
//   - both signals full           -> 100
//   - full scroll, partial time   -> time signal only (the page was skimmed)
//   - partial scroll, full time   -> scroll signal only
//   - both partial                -> (scroll + time/2) / 2
func CompletionRate(wordCount *int, scrollDepth, watchTime *float64) float64 {
	var expected float64
	if wordCount != nil && *wordCount > 0 {
		expected = float64(*wordCount) / readingWordsPerMinute * 60
	}

	var scroll float64
	if scrollDepth != nil {
		scroll = clamp01(*scrollDepth / 100)
	}

	var dwell float64
	if expected > 0 && watchTime != nil {
		dwell = clamp01(*watchTime / expected)
	}

	var total float64
	switch {
	case scroll == 1 && dwell == 1:
		total = 1
	case scroll == 1:
		total = dwell
	case dwell == 1:
		total = scroll
	default:
		total = (scroll + dwell/2) / 2
	}

	return clamp01(total) * 100
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
