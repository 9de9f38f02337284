package noteservice

import (
	"context"
	"strings"

	"github.com/starford/zettelkasten/internal/graph"
	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/paginate"
	"github.com/starford/zettelkasten/internal/search"
)

// Listing modes, in order of precedence.
const (
	ModeShow   = "show"
	ModeSearch = "search"
	ModeTag    = "tag"
	ModeAll    = "all"
)

// Query selects what List returns. At most one of Show, Search and Tag takes
// effect, in that order of precedence.
type Query struct {
	Show     string
	Search   string
	Tag      string
	Page     int
	PageSize int
	// Annotate attaches backlinks, related and similar records to each item.
	Annotate bool
}

// Item is one record of a listing window.
type Item struct {
	models.Zettel
	Score       int          `json:"score,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// Listing is one page of results.
type Listing struct {
	Mode       string         `json:"mode"`
	Items      []Item         `json:"zettels"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
	Sticky     *models.Zettel `json:"sticky,omitempty"`
}

// List materializes the corpus, orders it for the requested mode and returns
// the requested page. The sticky record rides along on the first page of the
// plain chronological listing only.
func (s *Service) List(ctx context.Context, q Query) (*Listing, error) {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	corpus := models.Chronological(all)

	size := q.PageSize
	if size <= 0 {
		size = s.perPage
	}
	out := &Listing{Page: max(q.Page, 1), PerPage: size}

	var (
		source []Item
		window []Item
	)
	switch {
	case q.Show != "":
		out.Mode = ModeShow
		z, found := all[q.Show]
		window, out.TotalPages = paginate.Single(Item{Zettel: z}, found)
		out.Page = 1
		if found {
			out.Total = 1
		}
	case strings.TrimSpace(q.Search) != "":
		out.Mode = ModeSearch
		for _, h := range search.Search(q.Search, corpus) {
			source = append(source, Item{Zettel: all[h.ID], Score: h.Score})
		}
	case strings.TrimSpace(q.Tag) != "":
		out.Mode = ModeTag
		for _, id := range search.FilterByTag(q.Tag, corpus) {
			source = append(source, Item{Zettel: all[id]})
		}
	default:
		out.Mode = ModeAll
		source = make([]Item, len(corpus))
		for i, z := range corpus {
			source[i] = Item{Zettel: z}
		}
		if out.Page == 1 {
			if id, ok := s.stickyID(); ok {
				if z, found := all[id]; found {
					out.Sticky = &z
				}
			}
		}
	}
	if out.Mode != ModeShow {
		window, out.TotalPages = paginate.Page(source, out.Page, size)
		out.Total = len(source)
	}

	if q.Annotate && len(window) > 0 {
		adj := graph.NewAdjacency(corpus)
		for i := range window {
			z := window[i].Zettel
			bl := make([]graph.Reference, 0)
			for _, src := range adj.Backlinks(z.ID) {
				bl = append(bl, graph.Reference{ID: src, Title: all[src].Title, Resolved: true})
			}
			window[i].Annotations = &Annotations{
				Backlinks: bl,
				Related:   nonNil(adj.Related(z, s.relatedLimit)),
				Similar:   nonNil(adj.Similar(z, s.relatedLimit)),
			}
		}
	}
	out.Items = nonNil(window)
	return out, nil
}
