// Package graph derives relationships between zettels: backlinks, tag
// overlap (related) and content similarity.
//
// Every function takes the corpus as a slice in default listing order and
// never touches storage. Adjacency offers the same answers from indexes
// built once per corpus.
package graph

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/parser"
)

// DefaultLimit caps Related and Similar when the caller passes limit <= 0.
const DefaultLimit = 5

// Relation is a scored neighbour of a zettel.
type Relation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int    `json:"score"`
}

// Backlinks returns the ids of every record whose links contain id, in
// corpus order. Linking is one-way: A linking to B makes A a backlink of B
// and says nothing about B.
func Backlinks(id string, corpus []models.Zettel) []string {
	var out []string
	for _, c := range corpus {
		if c.LinksTo(id) {
			out = append(out, c.ID)
		}
	}
	return out
}

// Related ranks corpus by the number of distinct tags shared with z. Tags
// compare case-sensitively. z itself and records sharing nothing are left
// out. Ties order by case-insensitive title, then id.
func Related(z models.Zettel, corpus []models.Zettel, limit int) []Relation {
	own := tagSet(z.Tags)
	var out []Relation
	if len(own) == 0 {
		return out
	}
	for _, c := range corpus {
		if c.ID == z.ID {
			continue
		}
		if n := sharedTags(own, c.Tags); n > 0 {
			out = append(out, Relation{ID: c.ID, Title: c.Title, Score: n})
		}
	}
	sortRelated(out)
	return truncate(out, limit)
}

// Similar ranks corpus by 2*sharedTags + sharedWords, where sharedWords is
// the overlap of the distinct lower-cased whitespace-separated words of both
// contents. z itself and zero scores are left out. Ties keep corpus order.
func Similar(z models.Zettel, corpus []models.Zettel, limit int) []Relation {
	own := tagSet(z.Tags)
	words := parser.WordSet(z.Content)
	var out []Relation
	for _, c := range corpus {
		if c.ID == z.ID {
			continue
		}
		score := 2*sharedTags(own, c.Tags) + sharedWords(words, parser.WordSet(c.Content))
		if score > 0 {
			out = append(out, Relation{ID: c.ID, Title: c.Title, Score: score})
		}
	}
	sortSimilar(out)
	return truncate(out, limit)
}

func tagSet(tags []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

// sharedTags counts the distinct members of tags that are also in own.
func sharedTags(own map[string]struct{}, tags []string) int {
	if len(own) == 0 || len(tags) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(tags))
	n := 0
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := own[t]; ok {
			n++
		}
	}
	return n
}

func sharedWords(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func sortRelated(rs []Relation) {
	slices.SortFunc(rs, func(a, b Relation) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func sortSimilar(rs []Relation) {
	slices.SortStableFunc(rs, func(a, b Relation) int { return cmp.Compare(b.Score, a.Score) })
}

func truncate(rs []Relation, limit int) []Relation {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(rs) > limit {
		return rs[:limit]
	}
	return rs
}
