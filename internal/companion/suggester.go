// Package companion suggests commonly co-consumed foods (milk with
// porridge, butter with bread) once a meal is marked complete.
package companion

import (
	"sort"
	"strings"

	"mcp-meal-dialog/internal/textnorm"
)

// Suggestion pairs a resolved food with a companion worth asking about.
type Suggestion struct {
	PrimaryFood string `json:"primaryFood"`
	Companion   string `json:"companion"`
}

// DefaultTable maps a primary food base name to its usual companions.
var DefaultTable = map[string][]string{
	"kaurapuuro":     {"maito", "voi"},
	"puuro":          {"maito", "voi"},
	"mannapuuro":     {"maito"},
	"riisipuuro":     {"maito", "kaneli"},
	"leipa":          {"voi", "juusto"},
	"paahtoleipa":    {"voi"},
	"nakkileipa":     {"sinappi"},
	"kahvi":          {"maito"},
	"tee":            {"maito"},
	"murot":          {"maito"},
	"mysli":          {"jogurtti"},
	"peruna":         {"voi"},
	"porridge":       {"milk", "butter"},
	"oatmeal":        {"milk"},
	"bread":          {"butter", "cheese"},
	"toast":          {"butter"},
	"coffee":         {"milk"},
	"tea":            {"milk"},
	"cereal":         {"milk"},
	"havregrynsgrot": {"mjolk"},
	"brod":           {"smor"},
}

// Suggester looks companions up in a table keyed by folded base name.
type Suggester struct {
	table map[string][]string
	keys  []string // longest first, for compound-head matching
}

// New builds a Suggester. Keys are folded so config tables may use any
// casing or diacritics. A nil table disables suggestions.
func New(table map[string][]string) *Suggester {
	s := &Suggester{table: make(map[string][]string, len(table))}
	for k, v := range table {
		key := textnorm.Fold(k)
		if key == "" {
			continue
		}
		s.table[key] = append(s.table[key], v...)
		s.keys = append(s.keys, key)
	}
	sort.Slice(s.keys, func(i, j int) bool {
		if len(s.keys[i]) != len(s.keys[j]) {
			return len(s.keys[i]) > len(s.keys[j])
		}
		return s.keys[i] < s.keys[j]
	})
	return s
}

// companionsFor matches a folded base name exactly, then by compound head
// ("ruisleipa" ends with "leipa").
func (s *Suggester) companionsFor(base string) []string {
	if c, ok := s.table[base]; ok {
		return c
	}
	for _, k := range s.keys {
		if strings.HasSuffix(base, k) {
			return s.table[k]
		}
	}
	return nil
}

// Suggest returns the first companion of the first matching resolved food
// that is neither resolved already nor in asked.
func (s *Suggester) Suggest(resolvedNames []string, asked []string) (Suggestion, bool) {
	if s == nil || len(s.table) == 0 {
		return Suggestion{}, false
	}
	askedSet := make(map[string]bool, len(asked))
	for _, a := range asked {
		askedSet[textnorm.Fold(a)] = true
	}
	folded := make([]string, len(resolvedNames))
	for i, n := range resolvedNames {
		folded[i] = textnorm.Fold(n)
	}

	for _, name := range resolvedNames {
		for _, c := range s.companionsFor(textnorm.FoldedBase(name)) {
			fc := textnorm.Fold(c)
			if askedSet[fc] || alreadyResolved(fc, folded) {
				continue
			}
			return Suggestion{PrimaryFood: name, Companion: c}, true
		}
	}
	return Suggestion{}, false
}

func alreadyResolved(companion string, foldedNames []string) bool {
	for _, n := range foldedNames {
		if n == companion || strings.HasPrefix(n, companion) {
			return true
		}
	}
	return false
}
