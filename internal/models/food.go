// internal/models/food.go
package models

// Food type codes as reported by the composition database.
const (
	FoodTypeFood = "FOOD" // plain food or ingredient
	FoodTypeDish = "DISH" // prepared dish or recipe
)

// LocalizedText holds one string per language tag ("fi", "sv", "en").
type LocalizedText map[string]string

// Get returns the text for lang, falling back to Finnish, then English,
// then any non-empty value.
func (t LocalizedText) Get(lang string) string {
	if v := t[lang]; v != "" {
		return v
	}
	for _, fallback := range []string{"fi", "en", "sv"} {
		if v := t[fallback]; v != "" {
			return v
		}
	}
	for _, v := range t {
		if v != "" {
			return v
		}
	}
	return ""
}

// FoodUnit is a food-specific measure such as "medium piece" or "dl".
type FoodUnit struct {
	Code   string        `json:"code"`
	Labels LocalizedText `json:"labels,omitempty"`
	Mass   float64       `json:"mass"` // grams per one unit
}

// Label returns the localized label, or the code when no label exists.
func (u FoodUnit) Label(lang string) string {
	if l := u.Labels.Get(lang); l != "" {
		return l
	}
	return u.Code
}

// FoodRecord is one entry of the food-composition database.
type FoodRecord struct {
	ID               int                `json:"id"`
	Names            LocalizedText      `json:"names"`
	Type             string             `json:"type,omitempty"`
	Class            string             `json:"class,omitempty"` // ingredient class, drives liquid density
	Units            []FoodUnit         `json:"units,omitempty"`
	NutrientsPer100g map[string]float64 `json:"nutrientsPer100g,omitempty"`
}

// Name returns the display name in lang.
func (f FoodRecord) Name(lang string) string {
	return f.Names.Get(lang)
}

// Unit looks up a unit by its code.
func (f FoodRecord) Unit(code string) (FoodUnit, bool) {
	for _, u := range f.Units {
		if u.Code == code {
			return u, true
		}
	}
	return FoodUnit{}, false
}

// Clone returns a deep copy.
func (f FoodRecord) Clone() FoodRecord {
	out := f
	if f.Names != nil {
		out.Names = make(LocalizedText, len(f.Names))
		for k, v := range f.Names {
			out.Names[k] = v
		}
	}
	if f.Units != nil {
		out.Units = make([]FoodUnit, len(f.Units))
		for i, u := range f.Units {
			out.Units[i] = u
			if u.Labels != nil {
				out.Units[i].Labels = make(LocalizedText, len(u.Labels))
				for k, v := range u.Labels {
					out.Units[i].Labels[k] = v
				}
			}
		}
	}
	if f.NutrientsPer100g != nil {
		out.NutrientsPer100g = make(map[string]float64, len(f.NutrientsPer100g))
		for k, v := range f.NutrientsPer100g {
			out.NutrientsPer100g[k] = v
		}
	}
	return out
}
