package performance

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// Key fingerprints the request shape that uniquely identifies a cached
// result. The input is reduced to canonical JSON (map keys sorted by
// encoding/json) and hashed with BLAKE2b-256, so any change to the query,
// its filters, or the page window produces a different key.
func Key(shape interface{}) string {
	data, err := json.Marshal(shape)
	if err != nil {
		// Unmarshalable shapes cannot be cached; an empty key is never
		// stored or looked up.
		return ""
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
