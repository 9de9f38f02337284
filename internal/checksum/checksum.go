// Package checksum fingerprints records so derived state can tell when a
// record changed.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/starford/zettelkasten/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Zettel fingerprints every field of z. Two records with equal fingerprints
// are equal regardless of how their files are formatted.
func Zettel(z models.Zettel) string {
	data, _ := json.Marshal(z)
	return Sum(data)
}
