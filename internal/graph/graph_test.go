package graph

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/starford/zettelkasten/internal/models"
)

func z(id, title, content string, tags, links []string) models.Zettel {
	return models.Zettel{ID: id, Title: title, Content: content, Tags: tags, Links: links}
}

func TestBacklinks_NotSymmetric(t *testing.T) {
	corpus := []models.Zettel{
		z("A", "A", "a", nil, []string{"B"}),
		z("B", "B", "b", nil, nil),
		z("C", "C", "c", nil, []string{"B", "B"}),
	}
	assert.Equal(t, []string{"A", "C"}, Backlinks("B", corpus))
	assert.Empty(t, Backlinks("A", corpus))
}

func TestRelated(t *testing.T) {
	self := z("S", "Self", "x", []string{"go", "db", "web"}, nil)
	corpus := []models.Zettel{
		self,
		z("1", "zeta", "x", []string{"go"}, nil),
		z("2", "Alpha", "x", []string{"go"}, nil),
		z("3", "both", "x", []string{"go", "db", "db"}, nil),
		z("4", "none", "x", []string{"rust"}, nil),
		z("5", "case", "x", []string{"Go"}, nil),
	}
	got := Related(self, corpus, 0)
	assert.Equal(t, []Relation{
		{ID: "3", Title: "both", Score: 2},
		{ID: "2", Title: "Alpha", Score: 1},
		{ID: "1", Title: "zeta", Score: 1},
	}, got)
}

func TestRelated_EqualTitlesFallBackToID(t *testing.T) {
	self := z("S", "s", "x", []string{"t"}, nil)
	corpus := []models.Zettel{
		z("b", "Same", "x", []string{"t"}, nil),
		z("a", "same", "x", []string{"t"}, nil),
	}
	got := Related(self, corpus, 5)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestRelated_Limit(t *testing.T) {
	self := z("S", "s", "x", []string{"t"}, nil)
	var corpus []models.Zettel
	for i := range 8 {
		corpus = append(corpus, z(fmt.Sprintf("n%d", i), fmt.Sprintf("t%d", i), "x", []string{"t"}, nil))
	}
	assert.Len(t, Related(self, corpus, 0), DefaultLimit)
	assert.Len(t, Related(self, corpus, 3), 3)
	assert.Len(t, Related(self, corpus, 100), 8)
}

func TestSimilar(t *testing.T) {
	self := z("S", "s", "Graph theory graph", []string{"math"}, nil)
	corpus := []models.Zettel{
		z("1", "one", "graph paper", nil, nil),
		z("2", "two", "nothing here", nil, nil),
		z("3", "three", "THEORY of graph", []string{"math"}, nil),
		z("4", "four", "graph", nil, nil),
		self,
	}
	got := Similar(self, corpus, 5)
	assert.Equal(t, []Relation{
		{ID: "3", Title: "three", Score: 4},
		{ID: "1", Title: "one", Score: 1},
		{ID: "4", Title: "four", Score: 1},
	}, got)
}

func TestSimilar_PunctuationIsPartOfTheWord(t *testing.T) {
	self := z("S", "s", "graph,", nil, nil)
	corpus := []models.Zettel{z("1", "one", "graph", nil, nil)}
	assert.Empty(t, Similar(self, corpus, 5))
}

func TestResolveLinksAndReferences(t *testing.T) {
	byID := Index([]models.Zettel{z("A", "Alpha", "x", nil, nil)})
	note := z("N", "n", "see [[A]] and [[gone]] and [[A]]", nil, []string{"gone", "A"})

	assert.Equal(t, []Reference{
		{ID: "gone"},
		{ID: "A", Title: "Alpha", Resolved: true},
	}, ResolveLinks(note, byID))
	assert.Equal(t, []Reference{
		{ID: "A", Title: "Alpha", Resolved: true},
		{ID: "gone"},
	}, References(note.Content, byID))
}

func TestBuild(t *testing.T) {
	g := Build([]models.Zettel{
		z("A", "Alpha", "x", []string{"t"}, []string{"B", "missing", "B"}),
		z("B", "Beta", "x", nil, nil),
	})
	assert.Equal(t, []Node{
		{ID: "A", Title: "Alpha", Tags: []string{"t"}},
		{ID: "B", Title: "Beta", Tags: []string{}},
	}, g.Nodes)
	assert.Equal(t, []Edge{
		{Source: "A", Target: "B"},
		{Source: "A", Target: "missing", Dangling: true},
	}, g.Edges)
	assert.Equal(t, 1, g.Dangling())
}

func TestAdjacency_MatchesScanning(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	properties.Property("indexed answers equal scanning answers", prop.ForAll(
		func(seed uint64, n, limit int) bool {
			corpus := randomCorpus(seed, n)
			adj := NewAdjacency(corpus)
			for _, c := range corpus {
				if !reflect.DeepEqual(Backlinks(c.ID, corpus), adj.Backlinks(c.ID)) {
					t.Logf("backlinks of %s differ", c.ID)
					return false
				}
				if !reflect.DeepEqual(Related(c, corpus, limit), adj.Related(c, limit)) {
					t.Logf("related of %s differ", c.ID)
					return false
				}
				if !reflect.DeepEqual(Similar(c, corpus, limit), adj.Similar(c, limit)) {
					t.Logf("similar of %s differ", c.ID)
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(0, 25),
		gen.IntRange(-1, 8),
	))
	properties.TestingRun(t)
}

// randomCorpus draws records from small vocabularies so that overlaps and
// score ties are common.
func randomCorpus(seed uint64, n int) []models.Zettel {
	r := rand.New(rand.NewPCG(seed, 0))
	tags := []string{"go", "Go", "db", "web", "math", "misc"}
	words := []string{"graph", "Graph", "tree", "node", "edge", "the", "a", "of"}
	titles := []string{"alpha", "Beta", "beta", "gamma"}
	pick := func(pool []string, most int) []string {
		k := r.IntN(most + 1)
		out := make([]string, 0, k)
		for range k {
			out = append(out, pool[r.IntN(len(pool))])
		}
		return out
	}
	corpus := make([]models.Zettel, n)
	for i := range corpus {
		var links []string
		for range r.IntN(3) {
			links = append(links, fmt.Sprintf("id%02d", r.IntN(n+2)))
		}
		corpus[i] = models.Zettel{
			ID:      fmt.Sprintf("id%02d", i),
			Title:   titles[r.IntN(len(titles))],
			Content: strings.Join(pick(words, 6), " "),
			Tags:    pick(tags, 3),
			Links:   links,
		}
	}
	return corpus
}

func ids(rs []Relation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
