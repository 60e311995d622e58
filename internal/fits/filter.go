package fits

import "strings"

// filterAliases maps every accepted header spelling to its canonical
// single-letter code. Unknown strings pass through upper-cased so an
// unusual filter still forms its own group instead of being lost.
var filterAliases = map[string]string{
	"L":         "L",
	"LUM":       "L",
	"LUMINANCE": "L",
	"CLEAR":     "L",
	"R":         "R",
	"RED":       "R",
	"G":         "G",
	"GREEN":     "G",
	"B":         "B",
	"BLUE":      "B",
	"HA":        "H",
	"H-ALPHA":   "H",
	"H_ALPHA":   "H",
	"HALPHA":    "H",
	"H":         "H",
	"OIII":      "O",
	"O3":        "O",
	"O-III":     "O",
	"O_III":     "O",
	"O":         "O",
	"SII":       "S",
	"S2":        "S",
	"S-II":      "S",
	"S_II":      "S",
	"S":         "S",
}

// NormalizeFilter maps a raw FILTER header value to one of the canonical
// codes L, R, G, B, S, H, O. Unrecognized values are returned upper-cased.
func NormalizeFilter(raw string) string {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if canon, ok := filterAliases[name]; ok {
		return canon
	}
	return name
}
