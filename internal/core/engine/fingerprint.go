package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
)

// Fingerprint derives the cache key of a request. Params are encoded sorted by
// key and jsonBody is marshalled with sorted map keys, so the order in which
// callers build them does not matter.
func Fingerprint(rawURL string, params url.Values, body []byte, jsonBody any) (string, error) {
	h := sha256.New()
	h.Write([]byte(rawURL))
	h.Write([]byte{0})
	h.Write([]byte(params.Encode()))
	h.Write([]byte{0})
	h.Write(body)
	h.Write([]byte{0})
	if jsonBody != nil {
		encoded, err := json.Marshal(jsonBody)
		if err != nil {
			return "", fmt.Errorf("fingerprint json body: %w", err)
		}
		h.Write(encoded)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
