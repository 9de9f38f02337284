package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/starford/zettelkasten/internal/models"
)

// encodeRecord renders z in the persisted layout: pretty-printed UTF-8 JSON
// with tags and links always present as arrays.
func encodeRecord(z models.Zettel) ([]byte, error) {
	if z.Tags == nil {
		z.Tags = []string{}
	}
	if z.Links == nil {
		z.Links = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(z); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rawRecord mirrors models.Zettel but leaves the list fields undecoded.
type rawRecord struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Tags      json.RawMessage  `json:"tags"`
	Links     json.RawMessage  `json:"links"`
	CreatedAt models.Timestamp `json:"created_at"`
	UpdatedAt models.Timestamp `json:"updated_at"`
}

// decodeRecord parses a persisted record. Records without a usable id are
// rejected.
func decodeRecord(data []byte) (models.Zettel, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Zettel{}, err
	}
	if !models.ValidID(raw.ID) {
		return models.Zettel{}, fmt.Errorf("record has no valid id")
	}
	tags, err := decodeList(raw.Tags)
	if err != nil {
		return models.Zettel{}, fmt.Errorf("tags: %w", err)
	}
	links, err := decodeList(raw.Links)
	if err != nil {
		return models.Zettel{}, fmt.Errorf("links: %w", err)
	}
	return models.Zettel{
		ID:        raw.ID,
		Title:     raw.Title,
		Content:   raw.Content,
		Tags:      tags,
		Links:     links,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
	}, nil
}

// decodeList accepts a JSON array of strings, null, or an object keyed by
// integer positions. The object form is what sparse lists look like after a
// round trip through the legacy writer.
func decodeList(raw json.RawMessage) ([]string, error) {
	out := []string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}

	var sparse map[string]string
	if err := json.Unmarshal(raw, &sparse); err != nil {
		return nil, err
	}
	type entry struct {
		pos int
		val string
	}
	entries := make([]entry, 0, len(sparse))
	for k, v := range sparse {
		pos, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("non-positional key %q", k)
		}
		entries = append(entries, entry{pos: pos, val: v})
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.pos - b.pos })
	for _, e := range entries {
		out = append(out, e.val)
	}
	return out, nil
}
