package checksum

import (
	"testing"

	"github.com/starford/zettelkasten/internal/models"
)

func TestSum(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != want {
		t.Errorf("Sum(nil) = %s, want %s", got, want)
	}
}

func TestZettel(t *testing.T) {
	a := models.Zettel{ID: "a", Title: "t", Content: "c", Tags: []string{"x"}}
	b := a.Clone()
	if Zettel(a) != Zettel(b) {
		t.Error("equal records have different fingerprints")
	}
	b.Tags = append(b.Tags, "y")
	if Zettel(a) == Zettel(b) {
		t.Error("tag change not reflected in fingerprint")
	}
}
