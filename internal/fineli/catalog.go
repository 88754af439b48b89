package fineli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/textnorm"
)

// catalogFile is the YAML layout of a static food list.
type catalogFile struct {
	Foods []catalogFood `yaml:"foods"`
}

type catalogFood struct {
	ID        int                `yaml:"id"`
	Names     map[string]string  `yaml:"names"`
	Type      string             `yaml:"type"`
	Class     string             `yaml:"class"`
	Units     []catalogUnit      `yaml:"units"`
	Nutrients map[string]float64 `yaml:"nutrients"`
}

type catalogUnit struct {
	Code   string            `yaml:"code"`
	Labels map[string]string `yaml:"labels"`
	Mass   float64           `yaml:"mass"`
}

// minBaseMatch keeps very short base names ("tee") from matching every
// query that happens to contain them.
const minBaseMatch = 3

// Catalog is an in-memory Searcher over a fixed food list.
type Catalog struct {
	foods  []models.FoodRecord
	folded [][]string // per food: folded full names
	bases  [][]string // per food: folded base names
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	foods := make([]models.FoodRecord, 0, len(file.Foods))
	for i, f := range file.Foods {
		if len(f.Names) == 0 {
			return nil, fmt.Errorf("catalog food %d (id %d) has no names", i, f.ID)
		}
		rec := models.FoodRecord{
			ID:               f.ID,
			Names:            models.LocalizedText(f.Names),
			Type:             strings.ToUpper(f.Type),
			Class:            strings.ToUpper(f.Class),
			NutrientsPer100g: f.Nutrients,
		}
		if rec.Type == "" {
			rec.Type = models.FoodTypeFood
		}
		for _, u := range f.Units {
			rec.Units = append(rec.Units, models.FoodUnit{
				Code:   strings.ToUpper(u.Code),
				Labels: models.LocalizedText(u.Labels),
				Mass:   u.Mass,
			})
		}
		foods = append(foods, rec)
	}
	return NewCatalog(foods), nil
}

// NewCatalog indexes foods for searching.
func NewCatalog(foods []models.FoodRecord) *Catalog {
	c := &Catalog{foods: make([]models.FoodRecord, len(foods))}
	for i, f := range foods {
		c.foods[i] = f.Clone()
		var folded, bases []string
		for _, name := range f.Names {
			folded = append(folded, textnorm.Fold(name))
			bases = append(bases, textnorm.FoldedBase(name))
		}
		c.folded = append(c.folded, folded)
		c.bases = append(c.bases, bases)
	}
	return c
}

// Len is the number of foods in the catalog.
func (c *Catalog) Len() int { return len(c.foods) }

// Search implements Searcher. A food matches when any of its names
// contains the query, or the query contains the food's base name (so the
// inflected "kanaa" finds "Kana, broileri"). Results keep catalog order.
func (c *Catalog) Search(_ context.Context, text, _ string) ([]models.FoodRecord, error) {
	q := textnorm.Fold(text)
	if q == "" {
		return nil, nil
	}
	var out []models.FoodRecord
	for i, f := range c.foods {
		if c.matches(i, q) {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

func (c *Catalog) matches(i int, q string) bool {
	for _, name := range c.folded[i] {
		if strings.Contains(name, q) {
			return true
		}
	}
	for _, base := range c.bases[i] {
		if len(base) >= minBaseMatch && strings.Contains(q, base) {
			return true
		}
	}
	return false
}
