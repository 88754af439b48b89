package intent

import (
	"regexp"
	"strconv"
	"strings"

	"mcp-meal-dialog/internal/models"
	"mcp-meal-dialog/internal/textnorm"
	"mcp-meal-dialog/internal/units"
)

// numberWords are spelled-out amounts accepted in place of digits.
var numberWords = map[string]float64{
	"puoli": 0.5, "puolikas": 0.5, "half": 0.5, "halv": 0.5, "en halv": 0.5, "a half": 0.5,
	"yksi": 1, "yhden": 1, "one": 1, "a": 1, "an": 1, "ett": 1,
	"kaksi": 2, "kaks": 2, "two": 2, "två": 2,
	"kolme": 3, "three": 3, "tre": 3,
	"neljä": 4, "four": 4, "fyra": 4,
	"viisi": 5, "five": 5, "fem": 5,
}

// ordinals maps ordinal words to 1-based selection indexes.
var ordinals = map[string]int{
	"ensimmainen": 1, "eka": 1, "ekaa": 1, "first": 1, "forsta": 1, "1st": 1,
	"toinen": 2, "toka": 2, "tokaa": 2, "second": 2, "andra": 2, "2nd": 2,
	"kolmas": 3, "third": 3, "tredje": 3, "3rd": 3,
	"neljas": 4, "fourth": 4, "fjarde": 4, "4th": 4,
	"viides": 5, "fifth": 5, "femte": 5, "5th": 5,
	"kuudes": 6, "sixth": 6, "sjatte": 6, "6th": 6,
}

// Folded phrase sets. Every entry is compared against textnorm.Fold(msg).
var (
	rejectPhrases = foldedSet(
		"ei mikään", "ei mikään näistä", "ei mitään näistä", "ei kumpikaan", "ei yksikään",
		"none", "none of these", "none of them", "neither", "neither of them",
		"ingen", "ingen av dem", "ingen av dessa", "inget av dem",
	)
	skipPhrases = foldedSet("ohita", "skippaa", "jätä pois", "anna olla", "skip", "skip it", "hoppa över", "strunta i det")
	yesPhrases  = foldedSet(
		"kyllä", "joo", "juu", "jep", "jees", "kyllä kiitos", "joo kiitos", "oli", "söin",
		"yes", "yeah", "yep", "yes please", "sure", "ok", "okay",
		"ja", "japp", "ja tack", "jo",
	)
	noPhrases = foldedSet(
		"ei", "en", "ei kiitos", "eipä", "ei ollut", "en syönyt",
		"no", "nope", "no thanks", "nah",
		"nej", "nej tack", "nä",
	)
	donePhrases = foldedSet(
		"valmis", "valmista", "siinä kaikki", "siinä oli kaikki", "ei muuta", "ei mitään muuta",
		"se oli siinä", "siinä se", "kaikki", "ateria valmis", "lopeta",
		"done", "that's all", "that is all", "thats it", "that's it", "nothing else", "finished", "all done", "im done", "i'm done",
		"klar", "färdig", "det var allt", "inget mer", "inget annat",
	)
	approxWords = foldedSet("noin", "suunnilleen", "ehkä", "about", "around", "roughly", "maybe", "ungefär", "cirka", "kanske")
	latestPhrases = foldedSet(
		"viimeisin", "viimeinen", "edellinen", "se", "tuo", "sen", "tuon", "viimeksi lisätty",
		"last", "last one", "the last one", "latest", "that", "it", "the previous one", "previous",
		"senaste", "den", "det", "den sista", "sista",
	)
)

var (
	removalPattern   = regexp.MustCompile(`(?i)^(?:poista|poistetaan|poistaisitko|ota pois|remove|delete|drop|take out|ta bort|radera)(?:\s+(.+))?$`)
	removalSuffix    = regexp.MustCompile(`(?i)^(.+?)\s+(?:pois|poies)$`)
	correctionPrefix = regexp.MustCompile(`(?i)^(?:ei\s*,?\s*vaan|ei\s*,?\s*tarkoitin|tarkoitin|tarkoitan|korjaus\s*:?|no\s*,?\s*i\s+meant|i\s+meant|i\s+mean|actually|correction\s*:?|nej\s*,?\s*jag\s+menade|jag\s+menade|rättelse\s*:?)\s*:?\s*(.+)$`)
	updatePrefix     = regexp.MustCompile(`(?i)^(?:muuta|vaihda|korjaa|päivitä|change|update|make\s+it|set|ändra|uppdatera)\s+(.+)$`)
	updateFiller     = regexp.MustCompile(`(?i)^(?:(?:se|sen|määrä|määräksi|annos|annokseksi|määrän|it|the\s+amount|the\s+portion|portion|amount|den|mängden|till|to|into|->)\s+)+`)
	selectionNumber  = regexp.MustCompile(`(?i)^(?:(?:numero|nro|nr|vaihtoehto|option|number|no\.?|alternativ)\s*)?(\d{1,3})\s*[.)]?$`)
	splitPattern     = regexp.MustCompile(`(?i)\s*(?:[,;+&]|\s(?:ja|and|sekä|seka|och|plus)\s)\s*`)
	decimalComma     = regexp.MustCompile(`(\d),(\d)`)
	hasDigit         = regexp.MustCompile(`\d`)
	signedInteger    = regexp.MustCompile(`^[+-]?\d+$`)
	hasLetter        = regexp.MustCompile(`\pL`)
)

// Quantity patterns are assembled from the unit alias table so the
// classifier and the converter accept exactly the same tokens.
var (
	numberExpr   string
	unitExpr     string
	quantityOnly *regexp.Regexp
	unitOnly     *regexp.Regexp
	leadingAmt   *regexp.Regexp
	trailingAmt  *regexp.Regexp
	unitWord     *regexp.Regexp
)

func init() {
	aliases := units.Aliases()
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		quoted[i] = regexp.QuoteMeta(a)
	}
	unitExpr = `(` + strings.Join(quoted, "|") + `)`

	words := make([]string, 0, len(numberWords))
	for w := range numberWords {
		words = append(words, w)
	}
	// longest first so "a half" wins over "a"
	sortLongestFirst(words)
	numberExpr = `(\d+\s*/\s*\d+|\d+(?:[.,]\d+)?|` + strings.Join(words, "|") + `)`

	quantityOnly = regexp.MustCompile(`(?i)^` + numberExpr + `(?:\s*` + unitExpr + `)?$`)
	unitOnly = regexp.MustCompile(`(?i)^` + unitExpr + `$`)
	leadingAmt = regexp.MustCompile(`(?i)^` + numberExpr + `(?:\s*` + unitExpr + `)?\s+(.+)$`)
	trailingAmt = regexp.MustCompile(`(?i)^(.+?)\s+` + numberExpr + `\s*` + unitExpr + `$`)
	unitWord = regexp.MustCompile(`(?i)(?:^|\s)` + unitExpr + `(?:$|\s)`)
}

func sortLongestFirst(words []string) {
	for i := 1; i < len(words); i++ {
		for j := i; j > 0 && (len(words[j]) > len(words[j-1]) || (len(words[j]) == len(words[j-1]) && words[j] < words[j-1])); j-- {
			words[j], words[j-1] = words[j-1], words[j]
		}
	}
}

func foldedSet(phrases ...string) map[string]bool {
	out := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		out[textnorm.Fold(p)] = true
	}
	return out
}

// clean collapses whitespace and trims trailing sentence punctuation.
func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".!?")
}

// parseNumber reads digits, decimal commas, fractions or a number word.
func parseNumber(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := numberWords[s]; ok {
		return v, true
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		num, err1 := strconv.ParseFloat(strings.TrimSpace(s[:i]), 64)
		den, err2 := strconv.ParseFloat(strings.TrimSpace(s[i+1:]), 64)
		if err1 != nil || err2 != nil || den == 0 {
			return 0, false
		}
		return num / den, true
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseQuantity reads a whole message as an amount with an optional unit
// ("200g", "2,5 dl", "1/2 annos", "puoli", "1 PORTM") or a lone size word
// ("iso", "pieni annos"), which counts as one of that size. A bare number
// is grams.
func ParseQuantity(text string) (*models.Quantity, bool) {
	s := clean(text)
	if m := quantityOnly.FindStringSubmatch(s); m != nil {
		v, ok := parseNumber(m[1])
		if !ok || v <= 0 {
			return nil, false
		}
		if m[2] == "" && isNumberWord(m[1]) {
			// "puoli" alone has no unit to be half of
			return nil, false
		}
		return &models.Quantity{Amount: v, Unit: strings.ToLower(m[2])}, true
	}
	if m := unitOnly.FindStringSubmatch(s); m != nil {
		if units.IsMass(m[1]) || units.IsVolume(m[1]) {
			return nil, false
		}
		return &models.Quantity{Amount: 1, Unit: strings.ToLower(m[1])}, true
	}
	return nil, false
}

func isNumberWord(s string) bool {
	_, ok := numberWords[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// looksLikeQuantity reports whether an unparsed reply was probably meant
// as an amount: it has a digit or a unit word.
func looksLikeQuantity(text string) bool {
	return hasDigit.MatchString(text) || unitWord.MatchString(strings.ToLower(text))
}

// mentionsFood reports whether text names a food next to its amount
// ("2 omenaa", "200 g kanaa"), which adds an item instead of answering.
func mentionsFood(text string) bool {
	for _, m := range splitMentions(text) {
		if m.Amount == nil {
			continue
		}
		name := strings.TrimSpace(m.Text)
		if name == "" || unitOnly.MatchString(name) || isNumberWord(name) ||
			approxWords[textnorm.Fold(name)] || !hasLetter.MatchString(name) {
			continue
		}
		return true
	}
	return false
}

// parseSelection reads "2", "numero 2", "toinen" as a 1-based index.
func parseSelection(text string) (int, bool) {
	s := clean(text)
	if m := selectionNumber.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	if n, ok := ordinals[textnorm.Fold(s)]; ok {
		return n, true
	}
	return 0, false
}

// parseMention splits one segment into food text and an optional amount.
// A leading amount without a unit counts pieces; a trailing amount needs a
// unit so names ending in digits ("Coca-Cola Zero 0,5") stay intact.
func parseMention(segment string) (models.ItemMention, bool) {
	s := strings.TrimSpace(segment)
	if s == "" {
		return models.ItemMention{}, false
	}
	if m := leadingAmt.FindStringSubmatch(s); m != nil {
		if v, ok := parseNumber(m[1]); ok && v > 0 && strings.TrimSpace(m[3]) != "" {
			unit := strings.ToLower(m[2])
			if unit == "" {
				unit = "kpl"
			}
			return models.ItemMention{Text: strings.TrimSpace(m[3]), Amount: &v, Unit: unit}, true
		}
	}
	if m := trailingAmt.FindStringSubmatch(s); m != nil {
		if v, ok := parseNumber(m[2]); ok && v > 0 {
			return models.ItemMention{Text: strings.TrimSpace(m[1]), Amount: &v, Unit: strings.ToLower(m[3])}, true
		}
	}
	return models.ItemMention{Text: s}, true
}

// splitMentions breaks a message on commas, plus signs, semicolons and
// conjunctions. Decimal commas between digits are kept.
func splitMentions(text string) []models.ItemMention {
	s := decimalComma.ReplaceAllString(clean(text), "$1.$2")
	var out []models.ItemMention
	for _, seg := range splitPattern.Split(" "+s+" ", -1) {
		if m, ok := parseMention(seg); ok {
			out = append(out, m)
		}
	}
	return out
}
