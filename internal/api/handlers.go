package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/index"
	"github.com/starford/zettelkasten/internal/noteservice"
)

// maxBody bounds request bodies. An import of MaxImport full-size records
// fits with room to spare.
const maxBody = 128 << 20

// StatsSource reports catalog statistics.
type StatsSource interface {
	Stats() (index.Stats, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc   *noteservice.Service
	stats StatsSource
}

// NewHandler creates a new Handler. stats may be nil when no catalog is
// configured.
func NewHandler(svc *noteservice.Service, stats StatsSource) *Handler {
	return &Handler{svc: svc, stats: stats}
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrInvalidID):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrStorageLocked):
		writeJSON(w, http.StatusLocked, errorBody("zettel is being written, retry later"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// queryInt parses an integer query parameter; anything unparsable is 0.
func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// ListZettels handles GET /api/zettels.
//
//	@Summary		List, search or filter zettels
//	@Tags			zettels
//	@Produce		json
//	@Param			page		query		int		false	"1-based page"
//	@Param			per_page	query		int		false	"Page size"
//	@Param			search		query		string	false	"Whole-word search term"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			show		query		string	false	"Show a single zettel"
//	@Param			annotate	query		bool	false	"Attach backlinks, related and similar"
//	@Success		200			{object}	ZettelListResponse
//	@Security		BearerAuth
//	@Router			/zettels [get]
func (h *Handler) ListZettels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	annotate, _ := strconv.ParseBool(q.Get("annotate"))
	listing, err := h.svc.List(r.Context(), noteservice.Query{
		Show:     q.Get("show"),
		Search:   q.Get("search"),
		Tag:      q.Get("tag"),
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "per_page"),
		Annotate: annotate,
	})
	if err != nil {
		writeError(w, "list zettels", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// GetZettel handles GET /api/zettels/{id}.
//
//	@Summary		Get a zettel with backlinks, related and similar zettels
//	@Tags			zettels
//	@Produce		json
//	@Param			id	path		string	true	"Zettel id"
//	@Success		200	{object}	ZettelDetail
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zettels/{id} [get]
func (h *Handler) GetZettel(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get zettel", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateZettel handles POST /api/zettels.
//
//	@Summary		Create a zettel
//	@Tags			zettels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ZettelRequest	true	"Zettel to create"
//	@Success		201		{object}	models.Zettel
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zettels [post]
func (h *Handler) CreateZettel(w http.ResponseWriter, r *http.Request) {
	var req ZettelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	z, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, "create zettel", err)
		return
	}
	w.Header().Set("Location", "/api/zettels/"+z.ID)
	writeJSON(w, http.StatusCreated, z)
}

// UpdateZettel handles PUT /api/zettels/{id}.
//
//	@Summary		Edit a zettel
//	@Tags			zettels
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Zettel id"
//	@Param			body	body		ZettelRequest	true	"New contents"
//	@Success		200		{object}	models.Zettel
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		423		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zettels/{id} [put]
func (h *Handler) UpdateZettel(w http.ResponseWriter, r *http.Request) {
	var req ZettelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	z, err := h.svc.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update zettel", err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// DeleteZettel handles DELETE /api/zettels/{id}.
//
//	@Summary		Delete a zettel
//	@Tags			zettels
//	@Param			id	path	string	true	"Zettel id"
//	@Success		204	"Zettel deleted (or did not exist)"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/zettels/{id} [delete]
func (h *Handler) DeleteZettel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete zettel", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// TagCounts handles GET /api/tags/counts.
func (h *Handler) TagCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.TagCounts(r.Context())
	if err != nil {
		writeError(w, "tag counts", err)
		return
	}
	writeJSON(w, http.StatusOK, TagCountsResponse{Counts: counts})
}

// GetSticky handles GET /api/sticky.
func (h *Handler) GetSticky(w http.ResponseWriter, r *http.Request) {
	z, err := h.svc.Sticky(r.Context())
	if err != nil {
		writeError(w, "get sticky", err)
		return
	}
	writeJSON(w, http.StatusOK, StickyResponse{Sticky: z})
}

// SetSticky handles PUT /api/sticky.
//
//	@Summary		Pin a zettel to the top of the default listing
//	@Tags			sticky
//	@Accept			json
//	@Param			body	body	StickyRequest	true	"Zettel to pin"
//	@Success		204		"Pinned"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sticky [put]
func (h *Handler) SetSticky(w http.ResponseWriter, r *http.Request) {
	var req StickyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.SetSticky(r.Context(), req.ID); err != nil {
		writeError(w, "set sticky", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnsetSticky handles DELETE /api/sticky.
func (h *Handler) UnsetSticky(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.UnsetSticky(r.Context()); err != nil {
		writeError(w, "unset sticky", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Random handles GET /api/random.
func (h *Handler) Random(w http.ResponseWriter, r *http.Request) {
	z, ok, err := h.svc.Random(r.Context())
	if err != nil {
		writeError(w, "random", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no zettels"))
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	graph.Graph
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusNotFound, errorBody("catalog disabled"))
		return
	}
	st, err := h.stats.Stats()
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Import handles POST /api/import.
//
//	@Summary		Import zettels from an export bundle
//	@Tags			transfer
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ImportRequest	true	"Bundle"
//	@Success		200		{object}	noteservice.ImportReport
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rep, err := h.svc.Import(r.Context(), req.Zettels)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Export handles GET /api/export?ids=a,b.
//
//	@Summary		Download zettels as a JSON bundle
//	@Tags			transfer
//	@Produce		json
//	@Param			ids	query		string	false	"Comma-separated ids; all when empty"
//	@Success		200	{object}	noteservice.Bundle
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids = strings.Split(raw, ",")
	}
	b, err := h.svc.Export(r.Context(), ids)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="zettelkasten-backup-%s.json"`, time.Now().Format(time.DateOnly)))
	writeJSON(w, http.StatusOK, b)
}
