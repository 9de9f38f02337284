// Package models defines the domain types for the zettel store.
package models

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// TimestampLayout is the on-disk timestamp format (second resolution).
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a second-resolution point in time that serializes as
// "YYYY-MM-DD HH:MM:SS" in the local time zone.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

// ParseTimestamp parses a value in TimestampLayout.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{Time: t}, nil
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value yields
// the zero Timestamp.
func (t *Timestamp) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON shadows the promoted time.Time method so records keep the
// on-disk layout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts a TimestampLayout string.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}

// Zettel is one note record, the unit of storage and addressing.
type Zettel struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Links     []string  `json:"links"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Clone returns a copy that shares no slices with z.
func (z Zettel) Clone() Zettel {
	z.Tags = slices.Clone(z.Tags)
	z.Links = slices.Clone(z.Links)
	return z
}

// HasTag reports whether z carries tag, ignoring case.
func (z Zettel) HasTag(tag string) bool {
	for _, t := range z.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// LinksTo reports whether id is among z's outgoing links.
func (z Zettel) LinksTo(id string) bool {
	return slices.Contains(z.Links, id)
}

// SortChronological orders zettels by creation time, newest first. Records
// created in the same second are ordered by id so the result is deterministic.
func SortChronological(zs []Zettel) {
	slices.SortStableFunc(zs, func(a, b Zettel) int {
		if c := b.CreatedAt.Compare(a.CreatedAt.Time); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Chronological flattens a corpus map into default listing order.
func Chronological(corpus map[string]Zettel) []Zettel {
	out := make([]Zettel, 0, len(corpus))
	for _, z := range corpus {
		out = append(out, z)
	}
	SortChronological(out)
	return out
}

// IDs returns the ids of zs in order.
func IDs(zs []Zettel) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ID
	}
	return out
}
