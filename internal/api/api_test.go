package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/index"
	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/noteservice"
	"github.com/starford/zettelkasten/internal/storage"
	"github.com/starford/zettelkasten/internal/tagindex"
	"github.com/starford/zettelkasten/internal/testutil"
)

// testEnv sets up a temp record dir, catalog, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	_, store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	logger := testutil.QuietLogger()

	svc := noteservice.NewService(store, tagindex.New(store, tagindex.WithLogger(logger)),
		noteservice.WithLogger(logger),
		noteservice.WithNotifier(catalogNotifier{db: db, store: store}))
	router := NewRouter(svc, db, authToken != "", authToken, nil)
	return svc, router
}

// catalogNotifier keeps the test catalog in step with the store.
type catalogNotifier struct {
	db    index.Catalog
	store storage.Store
}

func (n catalogNotifier) PublishZettelEvent(_, id string) {
	_, _ = index.Refresh(context.Background(), n.db, n.store, id)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func create(t *testing.T, router http.Handler, title, content string, tags ...string) models.Zettel {
	t.Helper()
	w := do(t, router, http.MethodPost, "/zettels", ZettelRequest{Title: title, Content: content, Tags: tags})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var z models.Zettel
	if err := json.Unmarshal(w.Body.Bytes(), &z); err != nil {
		t.Fatal(err)
	}
	return z
}

func TestCreateAndGetZettel(t *testing.T) {
	_, router := testEnv(t, "")

	z := create(t, router, "Hello", "World of <b>notes</b>", "greeting")
	if z.ID == "" || !models.ValidID(z.ID) {
		t.Fatalf("id = %q", z.ID)
	}

	w := do(t, router, http.MethodGet, "/zettels/"+z.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), `<b>`) {
		t.Errorf("content was HTML-escaped: %s", w.Body.String())
	}
	var d ZettelDetail
	_ = json.Unmarshal(w.Body.Bytes(), &d)
	if d.Title != "Hello" {
		t.Errorf("title = %q, want Hello", d.Title)
	}
	if d.Backlinks == nil || d.Related == nil || d.Similar == nil {
		t.Errorf("annotations should be empty arrays, got %+v", d.Annotations)
	}
}

func TestCreateSetsLocation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/zettels", ZettelRequest{Title: "T", Content: "C"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var z models.Zettel
	_ = json.Unmarshal(w.Body.Bytes(), &z)
	if got := w.Header().Get("Location"); got != "/api/zettels/"+z.ID {
		t.Errorf("Location = %q", got)
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "")

	tests := []struct {
		name string
		body any
	}{
		{"missing title", ZettelRequest{Content: "c"}},
		{"blank content", ZettelRequest{Title: "t", Content: "   "}},
		{"long tag", ZettelRequest{Title: "t", Content: "c", Tags: []string{strings.Repeat("x", models.MaxTagLength+1)}}},
		{"not json", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/zettels", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUpdateZettel(t *testing.T) {
	_, router := testEnv(t, "")
	z := create(t, router, "v1", "body")

	w := do(t, router, http.MethodPut, "/zettels/"+z.ID, ZettelRequest{Title: "v2", Content: "body"})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Zettel
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "v2" || got.CreatedAt != z.CreatedAt {
		t.Errorf("got %+v", got)
	}

	w = do(t, router, http.MethodPut, "/zettels/missing1", ZettelRequest{Title: "x", Content: "y"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodPut, "/zettels/bad-id", ZettelRequest{Title: "x", Content: "y"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("update bad id = %d, want 400", w.Code)
	}
}

func TestDeleteZettel(t *testing.T) {
	_, router := testEnv(t, "")
	z := create(t, router, "bye", "gone")

	w := do(t, router, http.MethodDelete, "/zettels/"+z.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}

	w = do(t, router, http.MethodGet, "/zettels/"+z.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	// Deleting again is not an error.
	w = do(t, router, http.MethodDelete, "/zettels/"+z.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("second delete = %d, want 204", w.Code)
	}
}

func TestListZettels(t *testing.T) {
	_, router := testEnv(t, "")
	for i := range 12 {
		create(t, router, fmt.Sprintf("Note %d", i), "graph theory", "math")
	}
	create(t, router, "Other", "nothing here", "misc")

	w := do(t, router, http.MethodGet, "/zettels?page=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var l ZettelListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &l)
	if l.Total != 13 || l.TotalPages != 2 || len(l.Items) != 3 {
		t.Errorf("total=%d pages=%d items=%d", l.Total, l.TotalPages, len(l.Items))
	}

	w = do(t, router, http.MethodGet, "/zettels?search=graph&per_page=50", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &l)
	if l.Mode != noteservice.ModeSearch || l.Total != 12 {
		t.Errorf("search mode=%s total=%d", l.Mode, l.Total)
	}

	w = do(t, router, http.MethodGet, "/zettels?tag=MISC", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &l)
	if l.Mode != noteservice.ModeTag || l.Total != 1 || l.Items[0].Title != "Other" {
		t.Errorf("tag listing = %+v", l)
	}
}

func TestTags(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "a", "b", "beta", "alpha")
	create(t, router, "c", "d", "alpha")

	w := do(t, router, http.MethodGet, "/tags", nil)
	var tags TagsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tags)
	if strings.Join(tags.Tags, ",") != "alpha,beta" {
		t.Errorf("tags = %v", tags.Tags)
	}

	w = do(t, router, http.MethodGet, "/tags/counts", nil)
	var counts TagCountsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &counts)
	if counts.Counts["alpha"] != 2 || counts.Counts["beta"] != 1 {
		t.Errorf("counts = %v", counts.Counts)
	}
}

func TestSticky(t *testing.T) {
	_, router := testEnv(t, "")
	z := create(t, router, "Pinned", "top")

	w := do(t, router, http.MethodPut, "/sticky", StickyRequest{ID: "nosuchid"})
	if w.Code != http.StatusNotFound {
		t.Errorf("pin missing = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodPut, "/sticky", StickyRequest{ID: "../etc"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("pin bad id = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPut, "/sticky", StickyRequest{ID: z.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("pin = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/sticky", nil)
	var resp StickyResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Sticky == nil || resp.Sticky.ID != z.ID {
		t.Errorf("sticky = %+v", resp.Sticky)
	}

	w = do(t, router, http.MethodDelete, "/sticky", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("unpin = %d", w.Code)
	}
	w = do(t, router, http.MethodGet, "/sticky", nil)
	resp = StickyResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Sticky != nil {
		t.Errorf("sticky after unpin = %+v", resp.Sticky)
	}
}

func TestRandom(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/random", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("random on empty store = %d, want 404", w.Code)
	}

	z := create(t, router, "only", "one")
	w = do(t, router, http.MethodGet, "/random", nil)
	var got models.Zettel
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if w.Code != http.StatusOK || got.ID != z.ID {
		t.Errorf("random = %d %+v", w.Code, got)
	}
}

func TestGraphAndStats(t *testing.T) {
	_, router := testEnv(t, "")
	a := create(t, router, "A", "first")
	w := do(t, router, http.MethodPost, "/zettels",
		ZettelRequest{Title: "B", Content: "second", Links: []string{a.ID, "gone1"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w = do(t, router, http.MethodGet, "/graph", nil)
	var g struct {
		Nodes []map[string]any `json:"nodes"`
		Edges []map[string]any `json:"edges"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &g)
	if len(g.Nodes) != 2 || len(g.Edges) != 2 {
		t.Errorf("graph = %s", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var st index.Stats
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Zettels != 2 || st.Links != 2 || st.Dangling != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestStatsWithoutCatalog(t *testing.T) {
	_, store := testutil.TestStore(t)
	svc := noteservice.NewService(store, tagindex.New(store))
	router := NewRouter(svc, nil, false, "", nil)

	w := do(t, router, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("stats without catalog = %d, want 404", w.Code)
	}
}

func TestImportExport(t *testing.T) {
	_, router := testEnv(t, "")

	req := ImportRequest{Zettels: []noteservice.ImportEntry{
		{ID: "aaa1", Title: "One", Content: "c1", Tags: []string{"x"}, CreatedAt: "2024-01-01 10:00:00"},
		{ID: "aaa2", Title: "Two", Content: "c2", CreatedAt: "not a date"},
		{ID: "bad id", Title: "Three", Content: "c3"},
	}}
	w := do(t, router, http.MethodPost, "/import", req)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	var rep noteservice.ImportReport
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Imported != 2 || len(rep.Errors) != 1 {
		t.Errorf("report = %+v", rep)
	}

	w = do(t, router, http.MethodGet, "/export?ids=aaa1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "zettelkasten-backup-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var b noteservice.Bundle
	_ = json.Unmarshal(w.Body.Bytes(), &b)
	if b.TotalNotes != 1 || b.Zettels[0].ID != "aaa1" {
		t.Errorf("bundle = %+v", b)
	}

	// Importing the same bundle again skips everything.
	w = do(t, router, http.MethodPost, "/import", req)
	rep = noteservice.ImportReport{}
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Imported != 0 || rep.Skipped != 2 {
		t.Errorf("second import = %+v", rep)
	}
}

func TestImportRejectsMissingZettels(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/import", map[string]any{"notes": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("import without zettels = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/zettels", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/zettels", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/zettels", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("correct token = %d, want 200", w.Code)
	}
}

func TestWriteErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: title", apperr.ErrValidation), http.StatusBadRequest},
		{apperr.ErrInvalidID, http.StatusBadRequest},
		{apperr.ErrNotFound, http.StatusNotFound},
		{apperr.ErrAlreadyExists, http.StatusConflict},
		{fmt.Errorf("put: %w", apperr.ErrStorageLocked), http.StatusLocked},
		{apperr.ErrStorageWrite, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, "test", tt.err)
		if w.Code != tt.want {
			t.Errorf("writeError(%v) = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}
