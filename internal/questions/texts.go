package questions

import "strings"

// Texts holds every user-facing string of one language. Placeholders are
// written as {name} and filled by Format.
type Texts struct {
	DisambiguationIntro  string
	DisambiguationFooter string
	PortionAsk           string
	PortionRetry         string
	PortionChoose        string
	PortionVolume        string
	PortionGrams         string
	PortionOtherGrams    string
	NoMatch              string
	NoMatchRetry         string
	NoMatchSkipLabel     string
	Companion            string
	Yes                  string
	No                   string
	Confirmed            string
	PortionUpdated       string
	Queued               string
	InvalidChoice        string
	Rejected             string
	Skipped              string
	Removed              string
	RemoveNotFound       string
	Reverted             string
	NothingToUpdate      string
	UnknownUnit          string
	DoneWithPending      string
	Complete             string
	CompletionPrompt     string
	CompanionDeclined    string
	Prompt               string
	NoPendingQuestion    string
}

var finnish = Texts{
	DisambiguationIntro:  `Löysin useita vaihtoehtoja haulle "{query}":`,
	DisambiguationFooter: "Vastaa numerolla 1–{count}.",
	PortionAsk:           "Kuinka paljon söit: {name}?",
	PortionRetry:         "En ymmärtänyt määrää.",
	PortionChoose:        "Valitse koko tai kerro määrä grammoina:",
	PortionVolume:        "Kerro määrä desilitroina (esim. 2 dl) tai grammoina (esim. 150 g).",
	PortionGrams:         "Kerro määrä grammoina (esim. 150 g).",
	PortionOtherGrams:    "Muu määrä grammoina",
	NoMatch:              `En löytänyt ruokaa "{query}". Kirjoita toinen nimi tai "ohita".`,
	NoMatchRetry:         `Vieläkään ei löytynyt "{query}". Kokeile toista nimeä tai kirjoita "ohita".`,
	NoMatchSkipLabel:     "Ohita",
	Companion:            "Oliko ruoan {primary} kanssa myös {companion}? (kyllä/ei)",
	Yes:                  "Kyllä",
	No:                   "Ei",
	Confirmed:            "✓ {name}, {grams} g",
	PortionUpdated:       "✓ Päivitetty: {name}, {grams} g",
	Queued:               "Lisäsin jonoon: {names}. Palaan niihin kohta.",
	InvalidChoice:        "Virheellinen valinta. Valitse numero 1–{count}.",
	Rejected:             `Selvä, jätin pois: "{name}".`,
	Skipped:              `Ohitetaan "{name}".`,
	Removed:              "Poistettu: {name}.",
	RemoveNotFound:       `En löytänyt poistettavaa: "{query}".`,
	Reverted:             `Korjataan: "{name}".`,
	NothingToUpdate:      "Ei muokattavaa annosta.",
	UnknownUnit:          "En tunnistanut yksikköä.",
	DoneWithPending:      "Kesken on vielä: {names}. Vastaa kysymyksiin tai poista ne.",
	Complete:             "Ateria kirjattu ({count} ruokaa). Kiitos!",
	CompletionPrompt:     `Söitkö jotain muuta? Kirjoita "valmis", kun ateria on kirjattu.`,
	CompanionDeclined:    "Selvä.",
	Prompt:               `Mitä söit? Kerro ruoat ja määrät, esim. "kaurapuuroa 2 dl ja kahvi".`,
	NoPendingQuestion:    "Minulla ei ole avointa kysymystä. Mitä söit?",
}

var english = Texts{
	DisambiguationIntro:  `I found several matches for "{query}":`,
	DisambiguationFooter: "Reply with a number 1–{count}.",
	PortionAsk:           "How much {name} did you have?",
	PortionRetry:         "I didn't understand the amount.",
	PortionChoose:        "Pick a size or give the amount in grams:",
	PortionVolume:        "Give the amount in decilitres (e.g. 2 dl) or grams (e.g. 150 g).",
	PortionGrams:         "Give the amount in grams (e.g. 150 g).",
	PortionOtherGrams:    "Other amount in grams",
	NoMatch:              `I couldn't find "{query}". Type another name or "skip".`,
	NoMatchRetry:         `Still nothing for "{query}". Try a different name or type "skip".`,
	NoMatchSkipLabel:     "Skip",
	Companion:            "Did you have {companion} with the {primary}? (yes/no)",
	Yes:                  "Yes",
	No:                   "No",
	Confirmed:            "✓ {name}, {grams} g",
	PortionUpdated:       "✓ Updated: {name}, {grams} g",
	Queued:               "Added to the queue: {names}. I'll come back to them.",
	InvalidChoice:        "Invalid choice. Pick a number 1–{count}.",
	Rejected:             `OK, left out "{name}".`,
	Skipped:              `Skipping "{name}".`,
	Removed:              "Removed: {name}.",
	RemoveNotFound:       `Nothing to remove matched "{query}".`,
	Reverted:             `Correcting: "{name}".`,
	NothingToUpdate:      "There is no portion to update.",
	UnknownUnit:          "I didn't recognise that unit.",
	DoneWithPending:      "Still open: {names}. Answer the questions or remove them.",
	Complete:             "Meal logged ({count} foods). Thanks!",
	CompletionPrompt:     `Anything else? Type "done" when the meal is complete.`,
	CompanionDeclined:    "OK.",
	Prompt:               `What did you eat? List foods and amounts, e.g. "2 dl oatmeal and coffee".`,
	NoPendingQuestion:    "I don't have an open question. What did you eat?",
}

var swedish = Texts{
	DisambiguationIntro:  `Jag hittade flera alternativ för "{query}":`,
	DisambiguationFooter: "Svara med en siffra 1–{count}.",
	PortionAsk:           "Hur mycket {name} åt du?",
	PortionRetry:         "Jag förstod inte mängden.",
	PortionChoose:        "Välj storlek eller ange mängden i gram:",
	PortionVolume:        "Ange mängden i deciliter (t.ex. 2 dl) eller gram (t.ex. 150 g).",
	PortionGrams:         "Ange mängden i gram (t.ex. 150 g).",
	PortionOtherGrams:    "Annan mängd i gram",
	NoMatch:              `Jag hittade inte "{query}". Skriv ett annat namn eller "hoppa över".`,
	NoMatchRetry:         `Fortfarande inget för "{query}". Prova ett annat namn eller skriv "hoppa över".`,
	NoMatchSkipLabel:     "Hoppa över",
	Companion:            "Hade du också {companion} till {primary}? (ja/nej)",
	Yes:                  "Ja",
	No:                   "Nej",
	Confirmed:            "✓ {name}, {grams} g",
	PortionUpdated:       "✓ Uppdaterad: {name}, {grams} g",
	Queued:               "Lade till i kön: {names}. Jag återkommer till dem.",
	InvalidChoice:        "Ogiltigt val. Välj en siffra 1–{count}.",
	Rejected:             `OK, utelämnade "{name}".`,
	Skipped:              `Hoppar över "{name}".`,
	Removed:              "Borttaget: {name}.",
	RemoveNotFound:       `Inget att ta bort matchade "{query}".`,
	Reverted:             `Rättar: "{name}".`,
	NothingToUpdate:      "Det finns ingen portion att uppdatera.",
	UnknownUnit:          "Jag kände inte igen enheten.",
	DoneWithPending:      "Fortfarande öppet: {names}. Svara på frågorna eller ta bort dem.",
	Complete:             "Måltiden är loggad ({count} livsmedel). Tack!",
	CompletionPrompt:     `Något annat? Skriv "klar" när måltiden är färdig.`,
	CompanionDeclined:    "OK.",
	Prompt:               `Vad åt du? Ange livsmedel och mängder, t.ex. "2 dl havregrynsgröt och kaffe".`,
	NoPendingQuestion:    "Jag har ingen öppen fråga. Vad åt du?",
}

var byLanguage = map[string]*Texts{
	"fi": &finnish,
	"en": &english,
	"sv": &swedish,
}

// For returns the texts for lang. Unknown tags fall back to Finnish.
func For(lang string) *Texts {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if t, ok := byLanguage[lang]; ok {
		return t
	}
	return &finnish
}

// Format fills {key} placeholders from params. Unknown placeholders are
// left as they are.
func Format(template string, params map[string]string) string {
	if len(params) == 0 {
		return template
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
