package shared

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// SHA256Hex returns lowercase hex encoded digest for content.
func SHA256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// MD5Hex returns lowercase hex encoded digest for content.
func MD5Hex(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// SHA1Hex returns lowercase hex encoded digest for content. Repository
// checksum sidecars (".sha1") use it.
func SHA1Hex(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

// SameContent compares two payloads by BLAKE3 digest.
func SameContent(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return blake3.Sum256(a) == blake3.Sum256(b)
}
