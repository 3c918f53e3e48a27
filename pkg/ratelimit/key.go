package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxKeyLength caps stored key size; longer keys are hashed.
const maxKeyLength = 64

var keyEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

// Key joins parts with ":". Each part is escaped first, so a ":" inside a
// user id or category cannot shift the boundary between parts, and empty
// parts keep their position. Keys longer than 64 characters are replaced by
// the first 128 bits of their SHA-256 hex digest, prefixed with the first part
// so domains stay distinguishable.
func Key(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}

	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = keyEscaper.Replace(p)
	}

	combined := strings.Join(escaped, ":")
	if len(combined) <= maxKeyLength {
		return combined
	}
	sum := sha256.Sum256([]byte(combined))
	return escaped[0] + ":" + hex.EncodeToString(sum[:16])
}
