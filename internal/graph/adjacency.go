package graph

import (
	"slices"

	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/parser"
)

// Adjacency indexes a corpus once so that annotating a record does not scan
// every other record. Its answers are identical to the package functions
// called with the same corpus.
type Adjacency struct {
	corpus  []models.Zettel
	byTag   map[string][]int // tag -> corpus positions, ascending
	byWord  map[string][]int // word -> corpus positions, ascending
	sources map[string][]int // link target -> corpus positions, ascending
	words   []map[string]struct{}
}

// NewAdjacency builds the indexes for corpus. The slice must not be modified
// while the Adjacency is in use.
func NewAdjacency(corpus []models.Zettel) *Adjacency {
	a := &Adjacency{
		corpus:  corpus,
		byTag:   make(map[string][]int),
		byWord:  make(map[string][]int),
		sources: make(map[string][]int),
		words:   make([]map[string]struct{}, len(corpus)),
	}
	for i, z := range corpus {
		for t := range tagSet(z.Tags) {
			a.byTag[t] = append(a.byTag[t], i)
		}
		a.words[i] = parser.WordSet(z.Content)
		for w := range a.words[i] {
			a.byWord[w] = append(a.byWord[w], i)
		}
		seen := make(map[string]struct{}, len(z.Links))
		for _, l := range z.Links {
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			a.sources[l] = append(a.sources[l], i)
		}
	}
	return a
}

// Backlinks is the indexed form of Backlinks.
func (a *Adjacency) Backlinks(id string) []string {
	pos := a.sources[id]
	if len(pos) == 0 {
		return nil
	}
	out := make([]string, len(pos))
	for i, p := range pos {
		out[i] = a.corpus[p].ID
	}
	return out
}

// Related is the indexed form of Related.
func (a *Adjacency) Related(z models.Zettel, limit int) []Relation {
	shared := make(map[int]int)
	for t := range tagSet(z.Tags) {
		for _, p := range a.byTag[t] {
			shared[p]++
		}
	}
	var out []Relation
	for _, p := range sortedKeys(shared) {
		c := a.corpus[p]
		if c.ID == z.ID {
			continue
		}
		out = append(out, Relation{ID: c.ID, Title: c.Title, Score: shared[p]})
	}
	sortRelated(out)
	return truncate(out, limit)
}

// Similar is the indexed form of Similar.
func (a *Adjacency) Similar(z models.Zettel, limit int) []Relation {
	scores := make(map[int]int)
	for t := range tagSet(z.Tags) {
		for _, p := range a.byTag[t] {
			scores[p] += 2
		}
	}
	for w := range parser.WordSet(z.Content) {
		for _, p := range a.byWord[w] {
			scores[p]++
		}
	}
	var out []Relation
	// Candidates are visited in corpus order so the stable sort breaks ties
	// the same way the scanning form does.
	for _, p := range sortedKeys(scores) {
		c := a.corpus[p]
		if c.ID == z.ID {
			continue
		}
		out = append(out, Relation{ID: c.ID, Title: c.Title, Score: scores[p]})
	}
	sortSimilar(out)
	return truncate(out, limit)
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
