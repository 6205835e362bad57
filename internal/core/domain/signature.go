package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// PlatformSignature hashes the datasource type together with the
// detection path that matched, so a cached record can be checked against
// a cheap re-detection without repeating the fetch.
func PlatformSignature(dsType, detectionFingerprint string) string {
	h := sha256.New()
	h.Write([]byte(dsType))
	h.Write([]byte{0})
	h.Write([]byte(detectionFingerprint))
	return hex.EncodeToString(h.Sum(nil))
}
