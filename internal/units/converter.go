// Package units converts user-supplied quantities to grams using the
// food's own unit list, a reference deciliter mass, or a density table.
package units

import (
	"errors"
	"fmt"
	"strings"

	"mcp-meal-dialog/internal/models"
)

// Method tags how a conversion was made.
type Method string

const (
	MethodDirectGrams   Method = "direct_grams"
	MethodFineliUnit    Method = "fineli_unit"
	MethodVolumeDensity Method = "volume_density"
)

var (
	// ErrUnknownUnit means the token is not in the alias table.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrUnitNotAvailable means the food does not expose the requested unit.
	ErrUnitNotAvailable = errors.New("unit not available for food")
	// ErrInvalidAmount means the amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Conversion is the result of converting a quantity to grams.
type Conversion struct {
	Grams     float64 `json:"grams"`
	UnitCode  string  `json:"unitCode"`
	UnitLabel string  `json:"unitLabel"`
	Method    Method  `json:"method"`
}

// volumeInDeciliters is the size of one unit of each volume code in dl.
var volumeInDeciliters = map[string]float64{
	CodeMilliliter: 0.01,
	CodeCentiliter: 0.1,
	CodeDeciliter:  1,
	CodeLiter:      10,
}

var volumeLabels = map[string]string{
	CodeMilliliter: "ml",
	CodeCentiliter: "cl",
	CodeDeciliter:  "dl",
	CodeLiter:      "l",
}

var sizeSibling = map[string]string{
	CodePieceSmall:   CodePortionSmall,
	CodePieceMedium:  CodePortionMed,
	CodePieceLarge:   CodePortionLarge,
	CodePortionSmall: CodePieceSmall,
	CodePortionMed:   CodePieceMedium,
	CodePortionLarge: CodePieceLarge,
}

// DefaultDensity is used for liquids whose class has no table entry (g/ml).
const DefaultDensity = 1.0

// densityTable maps an ingredient class to g/ml.
var densityTable = map[string]float64{
	"MILK":      1.03,
	"SOURMILK":  1.04,
	"YOGHURT":   1.04,
	"CREAM":     1.0,
	"JUICE":     1.04,
	"SOFTDRINK": 1.04,
	"OIL":       0.92,
	"HONEY":     1.42,
	"SYRUP":     1.33,
	"SOUP":      1.0,
	"ALCOHOL":   0.98,
	"FLOUR":     0.6,
	"CEREAL":    0.4,
	"SUGAR":     0.85,
}

// Density returns g/ml for an ingredient class.
func Density(class string) float64 {
	if d, ok := densityTable[strings.ToUpper(strings.TrimSpace(class))]; ok {
		return d
	}
	return DefaultDensity
}

// Convert turns amount+unit into grams for food. An empty unit means grams.
// Units other than mass and volume must exist on the food's own unit list;
// otherwise ErrUnitNotAvailable is returned rather than a guess.
func Convert(amount float64, unit string, food models.FoodRecord, lang string) (Conversion, error) {
	if amount <= 0 {
		return Conversion{}, ErrInvalidAmount
	}
	if strings.TrimSpace(unit) == "" {
		return Conversion{Grams: amount, UnitCode: CodeGram, UnitLabel: "g", Method: MethodDirectGrams}, nil
	}

	code, ok := Canonical(unit)
	if !ok {
		return Conversion{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	switch code {
	case CodeGram:
		return Conversion{Grams: amount, UnitCode: CodeGram, UnitLabel: "g", Method: MethodDirectGrams}, nil
	case CodeKilogram:
		return Conversion{Grams: amount * 1000, UnitCode: CodeKilogram, UnitLabel: "kg", Method: MethodDirectGrams}, nil
	}

	if dl, isVolume := volumeInDeciliters[code]; isVolume {
		if ref, ok := food.Unit(CodeDeciliter); ok && ref.Mass > 0 {
			return Conversion{
				Grams:     amount * dl * ref.Mass,
				UnitCode:  code,
				UnitLabel: volumeLabels[code],
				Method:    MethodFineliUnit,
			}, nil
		}
		ml := amount * dl * 100
		return Conversion{
			Grams:     ml * Density(food.Class),
			UnitCode:  code,
			UnitLabel: volumeLabels[code],
			Method:    MethodVolumeDensity,
		}, nil
	}

	u, ok := food.Unit(code)
	if !ok || u.Mass <= 0 {
		// A size word ("pieni", "iso") is read as a piece size or a portion
		// size depending on which one the food has.
		u, ok = food.Unit(sizeSibling[code])
		if !ok || u.Mass <= 0 {
			return Conversion{}, fmt.Errorf("%w: %s", ErrUnitNotAvailable, code)
		}
	}
	return Conversion{
		Grams:     amount * u.Mass,
		UnitCode:  u.Code,
		UnitLabel: u.Label(lang),
		Method:    MethodFineliUnit,
	}, nil
}
