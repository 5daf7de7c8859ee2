package domain

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CityResolution describes how a raw city label was canonicalized.
type CityResolution struct {
	Canonical string // canonical boundary name, or "" when unresolved
	Rule      string // "exact", "alias", "fuzzy", "unknown"
}

// CityNormalizer canonicalizes free-text city labels against the boundary
// layer's canonical names. Resolution order: exact match, alias table,
// bounded edit distance. Anything left over lands in the unknown bucket and
// is counted for the run report; the normalizer never fails.
type CityNormalizer struct {
	canonical   []string          // canonical names sorted for deterministic fuzzy ties
	byKey       map[string]string // cleaned key -> canonical name
	aliases     map[string]string // cleaned alias -> canonical name
	maxDistance int
	unmapped    map[string]int // raw label -> occurrences, for the report
}

// defaultCityAliases collapses spelling variants the yearly extracts are
// known to contain. Keys are cleaned (lowercased, collapsed) forms.
var defaultCityAliases = map[string]string{
	"la":               "Los Angeles",
	"city of la":       "Los Angeles",
	"e los angeles":    "East Los Angeles",
	"w hollywood":      "West Hollywood",
	"n hollywood":      "Los Angeles", // North Hollywood is an LA neighborhood, not a city
	"s gate":           "South Gate",
	"hunt park":        "Huntington Park",
	"sta clarita":      "Santa Clarita",
	"st clarita":       "Santa Clarita",
	"rancho palos vrd": "Rancho Palos Verdes",
}

// NewCityNormalizer builds a normalizer for the given boundary names.
// maxDistance bounds the edit-distance fallback; 0 disables fuzzy matching.
// Pass nil aliases to use the built-in table.
func NewCityNormalizer(boundaries []Boundary, aliases map[string]string, maxDistance int) *CityNormalizer {
	if aliases == nil {
		aliases = defaultCityAliases
	}

	n := &CityNormalizer{
		byKey:       make(map[string]string, len(boundaries)),
		aliases:     make(map[string]string, len(aliases)),
		maxDistance: maxDistance,
		unmapped:    make(map[string]int),
	}

	for _, b := range boundaries {
		n.canonical = append(n.canonical, b.Name)
		n.byKey[CleanLabel(b.Name)] = b.Name
	}
	sort.Strings(n.canonical)

	for alias, name := range aliases {
		n.aliases[CleanLabel(alias)] = name
	}
	return n
}

// Resolve canonicalizes a raw city label. It never returns an error: labels
// that cannot be mapped resolve to Rule "unknown" with an empty Canonical
// and are tallied for the report.
func (n *CityNormalizer) Resolve(raw string) CityResolution {
	key := CleanLabel(raw)
	if key == "" {
		return CityResolution{Rule: "unknown"}
	}

	if name, ok := n.byKey[key]; ok {
		return CityResolution{Canonical: name, Rule: "exact"}
	}
	if name, ok := n.aliases[key]; ok {
		return CityResolution{Canonical: name, Rule: "alias"}
	}

	if name, ok := n.fuzzyMatch(key); ok {
		return CityResolution{Canonical: name, Rule: "fuzzy"}
	}

	n.unmapped[strings.TrimSpace(raw)]++
	return CityResolution{Rule: "unknown"}
}

// fuzzyMatch finds the canonical name within maxDistance edits of key.
// Candidates are scanned in sorted order, so equal distances resolve to the
// alphabetically first name on every run.
func (n *CityNormalizer) fuzzyMatch(key string) (string, bool) {
	if n.maxDistance <= 0 {
		return "", false
	}
	best := ""
	bestDist := n.maxDistance + 1
	for _, name := range n.canonical {
		d := editDistance(key, CleanLabel(name), n.maxDistance)
		if d < bestDist {
			best = name
			bestDist = d
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// Unmapped returns the raw labels that fell through to the unknown bucket,
// with occurrence counts, for the side-channel report.
func (n *CityNormalizer) Unmapped() map[string]int {
	out := make(map[string]int, len(n.unmapped))
	for k, v := range n.unmapped {
		out[k] = v
	}
	return out
}

// CleanLabel produces the comparison key for a label: Unicode NFKC fold,
// whitespace collapse, punctuation strip, lower case. Cleaning a cleaned
// label returns it unchanged.
func CleanLabel(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			// Punctuation separates tokens: "rowland-heights" -> "rowland heights".
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// editDistance computes the Levenshtein distance between a and b, giving up
// early (returning max+1) once the distance cannot come in under max.
func editDistance(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if abs(la-lb) > max {
		return max + 1
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev, cur = cur, prev
	}
	if prev[lb] > max {
		return max + 1
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
