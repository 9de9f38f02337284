package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/zettelkasten/internal/checksum"
	"github.com/starford/zettelkasten/internal/models"
)

// ZettelRow represents a row in the zettels table.
type ZettelRow struct {
	ID        string
	Title     string
	Checksum  string
	Tags      []string
	CreatedAt string
	UpdatedAt string
}

// RowOf builds the catalog row for z.
func RowOf(z models.Zettel) ZettelRow {
	return ZettelRow{
		ID:        z.ID,
		Title:     z.Title,
		Checksum:  checksum.Zettel(z),
		Tags:      z.Tags,
		CreatedAt: z.CreatedAt.String(),
		UpdatedAt: z.UpdatedAt.String(),
	}
}

// Stats summarizes the catalog.
type Stats struct {
	Zettels     int    `json:"zettels"`
	Links       int    `json:"links"`
	Dangling    int    `json:"dangling_links"`
	Tags        int    `json:"tags"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// UpsertZettel inserts or replaces a record row and its outgoing links within
// a transaction.
func (db *DB) UpsertZettel(r ZettelRow, links []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	_, err = tx.Exec(`
		INSERT INTO zettels (id, title, checksum, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, r.ID, r.Title, r.Checksum, string(tagsJSON), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert zettel: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, r.ID); err != nil {
		return fmt.Errorf("index: clear links: %w", err)
	}
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range links {
			if _, err := stmt.Exec(r.ID, target); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteZettel removes a row and its outgoing links. It reports whether a row
// existed.
func (db *DB) DeleteZettel(id string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM links WHERE source = ?`, id); err != nil {
		return false, fmt.Errorf("index: delete links: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM zettels WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("index: delete zettel: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, tx.Commit()
}

// GetChecksum returns the stored checksum for a record, or "" if it is not
// catalogued.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM zettels WHERE id = ?`, id).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns id -> checksum for every catalogued record.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM zettels`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Stats counts records, links, dangling links and distinct tags.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	var last sql.NullString
	err := db.conn.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM zettels),
			(SELECT COUNT(*) FROM links),
			(SELECT COUNT(*) FROM links l LEFT JOIN zettels z ON z.id = l.target WHERE z.id IS NULL),
			(SELECT COUNT(DISTINCT j.value) FROM zettels, json_each(zettels.tags) AS j),
			(SELECT MAX(updated_at) FROM zettels)
	`).Scan(&s.Zettels, &s.Links, &s.Dangling, &s.Tags, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("index: stats: %w", err)
	}
	s.LastUpdated = last.String
	return s, nil
}
