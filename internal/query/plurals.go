package query

import "strings"

// irregularPlurals seeds the dictionary consulted before the regular
// suffix rules run. Most pairs are listed in both directions; cactus,
// fungus, piano, potato and tomato map singular to plural only. An
// empty slice marks an invariant word (no other forms). Kept as a standalone file mirroring the upstream
// engine's own plurals module split (it separates irregular-dictionary
// lookup from regular-suffix generation as two independent concerns).
var irregularPlurals = map[string][]string{
	"child": {"children"}, "children": {"child"},
	"person": {"people"}, "people": {"person"},
	"man": {"men"}, "men": {"man"},
	"woman": {"women"}, "women": {"woman"},
	"mouse": {"mice"}, "mice": {"mouse"},
	"goose": {"geese"}, "geese": {"goose"},
	"foot": {"feet"}, "feet": {"foot"},
	"tooth": {"teeth"}, "teeth": {"tooth"},
	"ox": {"oxen"}, "oxen": {"ox"},
	"knife": {"knives"}, "knives": {"knife"},
	"wife": {"wives"}, "wives": {"wife"},
	"wolf": {"wolves"}, "wolves": {"wolf"},
	"leaf": {"leaves"}, "leaves": {"leaf"},
	"half": {"halves"}, "halves": {"half"},
	"calf": {"calves"}, "calves": {"calf"},
	"loaf": {"loaves"}, "loaves": {"loaf"},
	"thief": {"thieves"}, "thieves": {"thief"},
	"shelf": {"shelves"}, "shelves": {"shelf"},
	"stove": {}, "archive": {}, "curve": {}, "nerve": {}, "valve": {},
	"sleeve": {}, "groove": {}, "glove": {}, "dove": {}, "cove": {}, "move": {},
	"thesis": {"theses"}, "theses": {"thesis"},
	"analysis": {"analyses"}, "analyses": {"analysis"},
	"crisis": {"crises"}, "crises": {"crisis"},
	"cactus": {"cactuses"},
	"fungus": {"fungi"},
	"matrix": {"matrices"}, "matrices": {"matrix"},
	"index": {"indexes"}, "indexes": {"index"},
	"medium": {"media"}, "media": {"medium"},
	"datum": {"data"}, "data": {"datum"},
	"criterion": {"criteria"}, "criteria": {"criterion"},
	"phenomenon": {"phenomena"}, "phenomena": {"phenomenon"},
	"photo": {"photos"}, "photos": {"photo"},
	"piano": {"pianos"},
	"potato": {"potatoes"},
	"tomato": {"tomatoes"},
	"hero": {"heroes"}, "heroes": {"hero"},
	"echo": {"echoes"}, "echoes": {"echo"},
	"sheep": {}, "deer": {}, "fish": {}, "species": {}, "series": {},
	"aircraft": {}, "bison": {}, "moose": {}, "salmon": {}, "trout": {},
	"shrimp": {}, "swine": {},
	"equipment": {}, "information": {}, "rice": {}, "money": {}, "news": {},
	"software": {}, "hardware": {}, "furniture": {}, "advice": {}, "weather": {},
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}

// stripRegularPlural returns the likely singular of a plural-looking
// word, or "" if no regular rule applies.
func stripRegularPlural(word string) string {
	n := len(word)
	if strings.HasSuffix(word, "ies") && n > 4 {
		if !isVowel(word[n-4]) {
			return word[:n-3] + "y"
		}
	}
	if strings.HasSuffix(word, "sses") || strings.HasSuffix(word, "ches") ||
		strings.HasSuffix(word, "shes") || strings.HasSuffix(word, "xes") ||
		strings.HasSuffix(word, "zes") {
		return word[:n-2]
	}
	if strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is") && n > 2 {
		return word[:n-1]
	}
	return ""
}

// generateRegularPlural returns the regular plural form of word.
func generateRegularPlural(word string) string {
	n := len(word)
	if strings.HasSuffix(word, "y") && n > 2 && !isVowel(word[n-2]) {
		return word[:n-1] + "ies"
	}
	if strings.HasSuffix(word, "sh") || strings.HasSuffix(word, "ch") ||
		strings.HasSuffix(word, "s") || strings.HasSuffix(word, "x") || strings.HasSuffix(word, "z") {
		return word + "es"
	}
	return word + "s"
}

// ExpandPlurals returns word plus every known plural/singular
// counterpart, starting with word itself (spec §4.6 "if a plural form
// is known for the token, OR-in term queries for each plural
// variant").
func ExpandPlurals(word string) []string {
	lower := strings.ToLower(word)
	forms := []string{lower}
	contains := func(s string) bool {
		for _, f := range forms {
			if f == s {
				return true
			}
		}
		return false
	}

	if others, ok := irregularPlurals[lower]; ok {
		for _, o := range others {
			if !contains(o) {
				forms = append(forms, o)
			}
		}
		return forms
	}

	if singular := stripRegularPlural(lower); singular != "" && singular != lower {
		if others, ok := irregularPlurals[singular]; ok && len(others) == 0 {
			return forms
		}
		if !contains(singular) {
			forms = append(forms, singular)
		}
		return forms
	}

	if plural := generateRegularPlural(lower); plural != lower && !contains(plural) {
		forms = append(forms, plural)
	}
	return forms
}
