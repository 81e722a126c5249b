package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// keyVersion is folded into every derived key. Bump it when the stored
// result or diagram layout changes so old entries are never decoded.
const keyVersion = 1

// hashKey returns "kind:<sha256>" over the version, network hash and options.
func hashKey(kind, networkHash string, opts any) string {
	data, _ := json.Marshal(struct {
		Version int    `json:"v"`
		Network string `json:"network"`
		Opts    any    `json:"opts"`
	}{keyVersion, networkHash, opts})
	return kind + ":" + Hash(data)
}

// Hash returns the hex SHA-256 of data. Network documents are hashed with it
// to address their cache entries.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
