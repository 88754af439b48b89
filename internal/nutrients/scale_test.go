package nutrients

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var porridge = map[string]float64{
	"energyKcal":   61.2,
	"protein":      2.1,
	"fat":          1.1,
	"carbohydrate": 10.3,
	"salt":         0.0043,
}

func TestScale_HundredGramsIsIdentity(t *testing.T) {
	assert.Equal(t, porridge, Scale(porridge, 100))
}

func TestScale_Portion(t *testing.T) {
	got := Scale(porridge, 300)
	assert.InDelta(t, 183.6, got["energyKcal"], 1e-9)
	assert.InDelta(t, 30.9, got["carbohydrate"], 1e-9)
	assert.InDelta(t, 0.0129, got["salt"], 1e-9)
	assert.Len(t, got, len(porridge))
}

func TestScale_RoundTrip(t *testing.T) {
	for _, g := range []float64{50, 120, 250, 400} {
		scaled := Scale(porridge, g)
		back := Scale(scaled, 100*100/g)
		for code, v := range porridge {
			assert.InDelta(t, v, back[code], 0.001, "%s at %vg", code, g)
		}
	}
}

func TestScale_AbsentCodesStayAbsent(t *testing.T) {
	got := Scale(map[string]float64{"protein": 3}, 200)
	_, hasFat := got["fat"]
	assert.False(t, hasFat)
	assert.Empty(t, Scale(nil, 200))
}

func TestSum(t *testing.T) {
	got := Sum(
		map[string]float64{"protein": 2.5, "fat": 1},
		map[string]float64{"protein": 3.25, "fat": math.NaN(), "fiber": math.Inf(1)},
		nil,
	)
	assert.InDelta(t, 5.75, got["protein"], 1e-9)
	assert.InDelta(t, 1.0, got["fat"], 1e-9)
	_, hasFiber := got["fiber"]
	assert.False(t, hasFiber)
}
