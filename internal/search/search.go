// Package search ranks zettels against a free-text query.
package search

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/zettelkasten/internal/models"
)

// Field weights of the relevance score.
const (
	TitleWeight   = 3
	ContentWeight = 2
	TagWeight     = 1
)

// Hit is one ranked search result.
type Hit struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// Matcher tests text for a whole-word, case-insensitive occurrence of a term.
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles query into a Matcher. The query is trimmed and matched
// literally as a single phrase anchored on word boundaries. A blank query
// yields nil.
func NewMatcher(query string) *Matcher {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return nil
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	pattern := `(?i)` + boundary(first, true) + regexp.QuoteMeta(term) + boundary(last, false)
	return &Matcher{re: regexp.MustCompile(pattern)}
}

// wordClass is a Unicode-aware \w; regexp's \b is ASCII-only.
const wordClass = `[\p{L}\p{N}_]`

// boundary returns the word-boundary condition next to the term edge r.
// A word character must not touch another word character; a non-word
// character at the edge needs a word character beside it, as \b would.
func boundary(r rune, leading bool) string {
	if isWord(r) {
		if leading {
			return `(?:^|[^\p{L}\p{N}_])`
		}
		return `(?:$|[^\p{L}\p{N}_])`
	}
	return wordClass
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Match reports whether s contains the term as a whole word.
func (m *Matcher) Match(s string) bool {
	return m.re.MatchString(s)
}

// Score computes the relevance of z: title 3, content 2, and 1 when any tag
// matches no matter how many do.
func (m *Matcher) Score(z models.Zettel) int {
	score := 0
	if m.Match(z.Title) {
		score += TitleWeight
	}
	if m.Match(z.Content) {
		score += ContentWeight
	}
	for _, t := range z.Tags {
		if m.Match(t) {
			score += TagWeight
			break
		}
	}
	return score
}

// Search scores every record of corpus and returns those with a positive
// score, highest first. The sort is stable: records with equal scores keep
// their corpus order, which for callers passing models.Chronological output
// means newest first.
func Search(query string, corpus []models.Zettel) []Hit {
	m := NewMatcher(query)
	if m == nil {
		return nil
	}
	var hits []Hit
	for _, z := range corpus {
		if s := m.Score(z); s > 0 {
			hits = append(hits, Hit{ID: z.ID, Score: s})
		}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int { return b.Score - a.Score })
	return hits
}

// FilterByTag returns the ids of records carrying tag (case-insensitive exact
// match), newest first.
func FilterByTag(tag string, corpus []models.Zettel) []string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	var matched []models.Zettel
	for _, z := range corpus {
		if z.HasTag(tag) {
			matched = append(matched, z)
		}
	}
	models.SortChronological(matched)
	return models.IDs(matched)
}

// IDs returns the ids of hits in rank order.
func IDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
