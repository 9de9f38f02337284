package index

// Catalog is the set of operations the sync and watch loops need.
// Consumers should depend on this interface rather than the concrete *DB type.
type Catalog interface {
	UpsertZettel(row ZettelRow, links []string) error
	DeleteZettel(id string) (bool, error)
	GetChecksum(id string) (string, error)
	AllChecksums() (map[string]string, error)
	Stats() (Stats, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
