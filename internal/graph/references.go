package graph

import (
	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/parser"
)

// Reference is an outgoing link resolved against the corpus. A dangling
// reference has Resolved false and no title.
type Reference struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	Resolved bool   `json:"resolved"`
}

// Index maps ids to records.
func Index(corpus []models.Zettel) map[string]models.Zettel {
	out := make(map[string]models.Zettel, len(corpus))
	for _, z := range corpus {
		out[z.ID] = z
	}
	return out
}

// ResolveLinks resolves z's declared links in order.
func ResolveLinks(z models.Zettel, byID map[string]models.Zettel) []Reference {
	return resolve(z.Links, byID)
}

// References resolves the [[id]] tokens of content, in order of first
// appearance.
func References(content string, byID map[string]models.Zettel) []Reference {
	return resolve(parser.References(content), byID)
}

func resolve(ids []string, byID map[string]models.Zettel) []Reference {
	out := make([]Reference, 0, len(ids))
	for _, id := range ids {
		ref := Reference{ID: id}
		if z, ok := byID[id]; ok {
			ref.Title = z.Title
			ref.Resolved = true
		}
		out = append(out, ref)
	}
	return out
}

// Node is a record in the graph view.
type Node struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// Edge is a declared link. Dangling edges point at ids with no record.
type Edge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Dangling bool   `json:"dangling,omitempty"`
}

// Graph is the whole link graph of a corpus.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build returns one node per record and one edge per distinct declared link,
// both in corpus order.
func Build(corpus []models.Zettel) Graph {
	byID := Index(corpus)
	g := Graph{Nodes: make([]Node, 0, len(corpus)), Edges: []Edge{}}
	for _, z := range corpus {
		tags := z.Tags
		if tags == nil {
			tags = []string{}
		}
		g.Nodes = append(g.Nodes, Node{ID: z.ID, Title: z.Title, Tags: tags})
		seen := make(map[string]struct{}, len(z.Links))
		for _, target := range z.Links {
			if _, dup := seen[target]; dup {
				continue
			}
			seen[target] = struct{}{}
			_, ok := byID[target]
			g.Edges = append(g.Edges, Edge{Source: z.ID, Target: target, Dangling: !ok})
		}
	}
	return g
}

// Dangling counts the edges of g whose target has no record.
func (g Graph) Dangling() int {
	n := 0
	for _, e := range g.Edges {
		if e.Dangling {
			n++
		}
	}
	return n
}
