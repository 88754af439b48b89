package units

import (
	"sort"
	"strings"
)

// Internal unit codes. Everything except the mass and volume codes is
// matched against a food's own unit list by code.
const (
	CodeGram       = "G"
	CodeKilogram   = "KG"
	CodeMilliliter = "ML"
	CodeCentiliter = "CL"
	CodeDeciliter  = "DL"
	CodeLiter      = "L"

	CodePiece        = "KPL"
	CodePieceSmall   = "KPL_S"
	CodePieceMedium  = "KPL_M"
	CodePieceLarge   = "KPL_L"
	CodePortionSmall = "PORTS"
	CodePortionMed   = "PORTM"
	CodePortionLarge = "PORTL"
	CodeTablespoon   = "RKL"
	CodeTeaspoon     = "TL"
	CodeSlice        = "VIIPALE"
	CodeCup          = "KUPPI"
)

// aliasTable maps every accepted input token (lowercase) to exactly one
// internal unit code.
var aliasTable = map[string]string{
	// mass
	"g": CodeGram, "gr": CodeGram, "gramma": CodeGram, "grammaa": CodeGram, "grammat": CodeGram,
	"grammoja": CodeGram, "grammaksi": CodeGram, "grammaan": CodeGram, "gram": CodeGram, "grams": CodeGram, "gramm": CodeGram,
	"kg": CodeKilogram, "kilo": CodeKilogram, "kiloa": CodeKilogram, "kiloksi": CodeKilogram, "kilogramma": CodeKilogram,
	"kilogrammaa": CodeKilogram, "kilogram": CodeKilogram, "kilograms": CodeKilogram,

	// volume
	"ml": CodeMilliliter, "millilitra": CodeMilliliter, "millilitraa": CodeMilliliter,
	"milliliter": CodeMilliliter, "milliliters": CodeMilliliter, "millilitre": CodeMilliliter,
	"cl": CodeCentiliter, "senttilitra": CodeCentiliter, "senttilitraa": CodeCentiliter, "centiliter": CodeCentiliter,
	"dl": CodeDeciliter, "desi": CodeDeciliter, "desiä": CodeDeciliter, "desiksi": CodeDeciliter, "desilitra": CodeDeciliter,
	"desilitraa": CodeDeciliter, "desilitraksi": CodeDeciliter, "deciliter": CodeDeciliter, "decilitre": CodeDeciliter,
	"l": CodeLiter, "litra": CodeLiter, "litraa": CodeLiter, "litraksi": CodeLiter, "liter": CodeLiter, "litre": CodeLiter,
	"liters": CodeLiter, "litres": CodeLiter,

	// pieces and sizes
	"kpl": CodePiece, "kappale": CodePiece, "kappaletta": CodePiece, "pc": CodePiece, "pcs": CodePiece,
	"piece": CodePiece, "pieces": CodePiece, "st": CodePiece, "stycken": CodePiece,
	"pieni": CodePieceSmall, "pientä": CodePieceSmall, "small": CodePieceSmall, "liten": CodePieceSmall,
	"kpl_s": CodePieceSmall,
	"keskikokoinen": CodePieceMedium, "keskikokoista": CodePieceMedium, "keski": CodePieceMedium,
	"medium": CodePieceMedium, "medel": CodePieceMedium, "mellan": CodePieceMedium, "kpl_m": CodePieceMedium,
	"iso": CodePieceLarge, "isoa": CodePieceLarge, "suuri": CodePieceLarge, "suurta": CodePieceLarge,
	"large": CodePieceLarge, "big": CodePieceLarge, "stor": CodePieceLarge, "kpl_l": CodePieceLarge,

	// portion sizes
	"pieni annos": CodePortionSmall, "small portion": CodePortionSmall, "liten portion": CodePortionSmall,
	"ports": CodePortionSmall,
	"annos": CodePortionMed, "annosta": CodePortionMed, "keskikokoinen annos": CodePortionMed,
	"portion": CodePortionMed, "medium portion": CodePortionMed, "portm": CodePortionMed,
	"iso annos": CodePortionLarge, "suuri annos": CodePortionLarge, "large portion": CodePortionLarge,
	"stor portion": CodePortionLarge, "portl": CodePortionLarge,

	// household measures
	"rkl": CodeTablespoon, "ruokalusikka": CodeTablespoon, "ruokalusikallinen": CodeTablespoon,
	"ruokalusikallista": CodeTablespoon, "tbsp": CodeTablespoon, "tablespoon": CodeTablespoon,
	"tablespoons": CodeTablespoon, "msk": CodeTablespoon, "matsked": CodeTablespoon,
	"tl": CodeTeaspoon, "teelusikka": CodeTeaspoon, "teelusikallinen": CodeTeaspoon,
	"teelusikallista": CodeTeaspoon, "tsp": CodeTeaspoon, "teaspoon": CodeTeaspoon,
	"teaspoons": CodeTeaspoon, "tsk": CodeTeaspoon, "tesked": CodeTeaspoon,
	"viipale": CodeSlice, "viipaletta": CodeSlice, "siivu": CodeSlice, "siivua": CodeSlice,
	"slice": CodeSlice, "slices": CodeSlice, "skiva": CodeSlice, "skivor": CodeSlice,
	"kuppi": CodeCup, "kupillinen": CodeCup, "kupillista": CodeCup, "cup": CodeCup, "cups": CodeCup,
	"kopp": CodeCup,
}

// Canonical resolves an input token to its internal unit code.
// Matching is case-insensitive and whitespace-trimmed.
func Canonical(token string) (string, bool) {
	t := strings.Join(strings.Fields(strings.ToLower(token)), " ")
	code, ok := aliasTable[t]
	return code, ok
}

// IsMass reports whether the token is a grams or kilograms alias.
// An empty token counts as grams.
func IsMass(token string) bool {
	if strings.TrimSpace(token) == "" {
		return true
	}
	code, ok := Canonical(token)
	return ok && (code == CodeGram || code == CodeKilogram)
}

// IsVolume reports whether the token is a volume alias.
func IsVolume(token string) bool {
	code, ok := Canonical(token)
	if !ok {
		return false
	}
	_, vol := volumeInDeciliters[code]
	return vol
}

// Aliases returns every accepted token, longest first so alternations in
// regular expressions prefer "iso annos" over "iso".
func Aliases() []string {
	out := make([]string, 0, len(aliasTable))
	for k := range aliasTable {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
