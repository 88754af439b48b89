// internal/models/meal.go
package models

import (
	"time"
)

// ResolvedItem is produced whenever an item reaches RESOLVED during a turn.
// The caller stores it as a diary entry.
type ResolvedItem struct {
	ItemID            string             `json:"item_id"`
	FineliFoodID      int                `json:"fineli_food_id"`
	Name              string             `json:"name"`
	Names             LocalizedText      `json:"names,omitempty"`
	PortionGrams      float64            `json:"portion_grams"`
	PortionUnitCode   string             `json:"portion_unit_code,omitempty"`
	PortionUnitLabel  string             `json:"portion_unit_label,omitempty"`
	PortionAmount     float64            `json:"portion_amount,omitempty"`
	NutrientsPer100g  map[string]float64 `json:"nutrients_per_100g,omitempty"`
	ComputedNutrients map[string]float64 `json:"computed_nutrients,omitempty"`
}

// DiaryEntry is a persisted ResolvedItem.
type DiaryEntry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	MealID    string    `json:"meal_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ResolvedItem
}

// MealSummary is a meal's entries with summed nutrients.
type MealSummary struct {
	MealID     string             `json:"meal_id"`
	Entries    []DiaryEntry       `json:"entries"`
	TotalGrams float64            `json:"total_grams"`
	Totals     map[string]float64 `json:"totals"`
}
