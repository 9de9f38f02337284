package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/models"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func sample(id string) models.Zettel {
	ts, _ := models.ParseTimestamp("2024-05-01 09:30:00")
	return models.Zettel{
		ID:        id,
		Title:     "Title " + id,
		Content:   "Body of " + id + " with [[other]]",
		Tags:      []string{"go", "Notes"},
		Links:     []string{"missing123"},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func TestPutAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	want := sample("abc123")
	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := s.Get(ctx, "abc123")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Title != want.Title || got.Content != want.Content {
		t.Errorf("record mismatch: %+v", got)
	}
	if strings.Join(got.Tags, ",") != "go,Notes" || strings.Join(got.Links, ",") != "missing123" {
		t.Errorf("lists mismatch: tags=%v links=%v", got.Tags, got.Links)
	}
	if !got.CreatedAt.Equal(want.CreatedAt.Time) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestRecordLayout(t *testing.T) {
	s := tempStore(t)
	z := sample("layout1")
	z.Tags = nil
	if err := s.Put(context.Background(), z); err != nil {
		t.Fatalf("Put: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(s.Root(), "layout1.txt"))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	text := string(raw)
	for _, want := range []string{
		`"id": "layout1"`,
		`"tags": []`,
		`"created_at": "2024-05-01 09:30:00"`,
		"\n    \"title\"",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("record missing %q:\n%s", want, text)
		}
	}
}

func TestGet_Missing(t *testing.T) {
	s := tempStore(t)
	_, found, err := s.Get(context.Background(), "nothere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
}

func TestGet_InvalidID(t *testing.T) {
	s := tempStore(t)
	for _, id := range []string{"../../etc/passwd", "a.b", ""} {
		if _, _, err := s.Get(context.Background(), id); !errors.Is(err, apperr.ErrInvalidID) {
			t.Errorf("Get(%q) err = %v, want ErrInvalidID", id, err)
		}
		if err := s.Put(context.Background(), models.Zettel{ID: id}); !errors.Is(err, apperr.ErrInvalidID) {
			t.Errorf("Put(%q) err = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestGet_CorruptRecordIsReadError(t *testing.T) {
	s := tempStore(t)
	_ = os.WriteFile(filepath.Join(s.Root(), "broken.txt"), []byte("{not json"), 0o644)
	_, _, err := s.Get(context.Background(), "broken")
	if !errors.Is(err, apperr.ErrStorageRead) {
		t.Errorf("err = %v, want ErrStorageRead", err)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, sample("del1"))
	if err := s.Delete(ctx, "del1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := s.Get(ctx, "del1"); found {
		t.Error("record still present after delete")
	}
	if err := s.Delete(ctx, "del1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestCreate_RefusesExisting(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, sample("new1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second handle on the same directory stands in for another process.
	other, err := NewFS(s.Root(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	clash := sample("new1")
	clash.Title = "clobber"
	if err := other.Create(ctx, clash); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	got, _, _ := s.Get(ctx, "new1")
	if got.Title != "Title new1" {
		t.Errorf("title = %q, existing record was overwritten", got.Title)
	}
}

func TestCreate_ConcurrentSameIDHasOneWinner(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	const writers = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			z := sample("race1")
			z.Title = fmt.Sprintf("writer %d", i)
			err := s.Create(ctx, z)
			switch {
			case err == nil:
				mu.Lock()
				winners = append(winners, z.Title)
				mu.Unlock()
			case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrStorageLocked):
			default:
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	got, found, err := s.Get(ctx, "race1")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Title != winners[0] {
		t.Errorf("stored title %q, want winner %q", got.Title, winners[0])
	}
}

func TestLoadAll_SkipsCorruptRecords(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	for i := range 5 {
		if err := s.Put(ctx, sample(fmt.Sprintf("ok%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	_ = os.WriteFile(filepath.Join(s.Root(), "garbage.txt"), []byte("\x00\x01 not a record"), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), "noid.txt"), []byte(`{"title":"x"}`), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), tempPrefix+"half"), []byte(`{"id":"half"`), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.md"), []byte("ignored"), 0o644)

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("len = %d, want 5 (%v)", len(all), all)
	}
}

func TestLoadAll_LegacySparseLists(t *testing.T) {
	s := tempStore(t)
	legacy := `{
    "id": "6650a1b2c3d4e",
    "title": "Legacy",
    "content": "from the old writer",
    "tags": {"0": "alpha", "2": "gamma"},
    "links": [],
    "created_at": "2023-11-02 08:00:00",
    "updated_at": "2023-11-02 08:00:00"
}`
	_ = os.WriteFile(filepath.Join(s.Root(), "6650a1b2c3d4e.txt"), []byte(legacy), 0o644)

	all, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	z, ok := all["6650a1b2c3d4e"]
	if !ok {
		t.Fatal("legacy record not loaded")
	}
	if strings.Join(z.Tags, ",") != "alpha,gamma" {
		t.Errorf("tags = %v", z.Tags)
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	z := sample("atomic")
	_ = s.Put(ctx, z)
	z.Content = "updated content"
	if err := s.Put(ctx, z); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _, _ := s.Get(ctx, "atomic")
	if got.Content != "updated content" {
		t.Errorf("expected updated content, got %q", got.Content)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), tempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestPut_LockedInProcess(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	release, ok := s.locks.tryLock("busy")
	if !ok {
		t.Fatal("precondition: lock should be free")
	}
	if err := s.Put(ctx, sample("busy")); !errors.Is(err, apperr.ErrStorageLocked) {
		t.Errorf("Put on held id: err = %v, want ErrStorageLocked", err)
	}
	if err := s.Delete(ctx, "busy"); !errors.Is(err, apperr.ErrStorageLocked) {
		t.Errorf("Delete on held id: err = %v, want ErrStorageLocked", err)
	}
	if err := s.Put(ctx, sample("free")); err != nil {
		t.Errorf("Put on other id should not block: %v", err)
	}
	release()

	if err := s.Put(ctx, sample("busy")); err != nil {
		t.Errorf("Put after release: %v", err)
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("lock map retains %d entries", n)
	}
}

func TestPut_LockedByOtherProcess(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	other := flock.New(filepath.Join(s.Root(), lockDir, "shared.lock"))
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("precondition: external lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	if err := s.Put(ctx, sample("shared")); !errors.Is(err, apperr.ErrStorageLocked) {
		t.Errorf("err = %v, want ErrStorageLocked", err)
	}
	if _, found, _ := s.Get(ctx, "shared"); found {
		t.Error("locked Put must not write the record")
	}
}

func TestConcurrentReadersNeverSeeTornRecords(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	variants := []string{strings.Repeat("a", 64<<10), strings.Repeat("b", 96<<10)}
	z := sample("hot")
	z.Content = variants[0]
	if err := s.Put(ctx, z); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			w := z
			w.Content = variants[i%2]
			_ = s.Put(ctx, w)
		}
	}()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		got, found, err := s.Get(ctx, "hot")
		if err != nil || !found {
			t.Fatalf("torn or missing read: found=%v err=%v", found, err)
		}
		if got.Content != variants[0] && got.Content != variants[1] {
			t.Fatalf("partial content of length %d", len(got.Content))
		}
	}
	close(stop)
	wg.Wait()
}

func TestUnits(t *testing.T) {
	s := tempStore(t)
	if _, _, err := s.ReadUnit(StickyUnit); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing unit err = %v", err)
	}
	if err := s.WriteUnit(StickyUnit, []byte("abc")); err != nil {
		t.Fatalf("WriteUnit: %v", err)
	}
	data, mod, err := s.ReadUnit(StickyUnit)
	if err != nil || string(data) != "abc" || mod.IsZero() {
		t.Errorf("ReadUnit = %q, %v, %v", data, mod, err)
	}
	if err := s.RemoveUnit(StickyUnit); err != nil {
		t.Fatalf("RemoveUnit: %v", err)
	}
	if err := s.RemoveUnit(StickyUnit); err != nil {
		t.Errorf("RemoveUnit on missing: %v", err)
	}
	if err := s.WriteUnit("../escape", []byte("x")); err == nil {
		t.Error("expected error for traversal unit name")
	}
}

func TestUnitsAreNotRecords(t *testing.T) {
	s := tempStore(t)
	_ = s.WriteUnit(StickyUnit, []byte("abc"))
	_ = s.WriteUnit(TagCacheUnit, []byte(`["a"]`))
	all, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("units leaked into LoadAll: %v", all)
	}
}

func TestIDFromPath(t *testing.T) {
	cases := map[string]bool{
		"abc.txt":              true,
		"/some/dir/abc123.txt": true,
		".sticky_zettel.txt":   false,
		".zk-tmp-123":          false,
		"a-b.txt":              false,
		"abc.md":               false,
	}
	for name, want := range cases {
		if _, ok := IDFromPath(name); ok != want {
			t.Errorf("IDFromPath(%q) = %v, want %v", name, ok, want)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/zettel-does-not-exist-"+t.Name(), nil)
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "zettel-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name(), nil)
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
