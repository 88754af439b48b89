// Package nutrients scales per-100g nutrient maps to portions and sums them.
package nutrients

import "math"

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Scale returns per100g scaled to grams, rounded to four decimals. Codes
// absent from per100g are absent from the result.
func Scale(per100g map[string]float64, grams float64) map[string]float64 {
	out := make(map[string]float64, len(per100g))
	factor := grams / 100
	for code, v := range per100g {
		out[code] = round4(v * factor)
	}
	return out
}

// Sum adds nutrient maps together, skipping NaN and infinite values.
func Sum(maps ...map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range maps {
		for code, v := range m {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out[code] = round4(out[code] + v)
		}
	}
	return out
}
