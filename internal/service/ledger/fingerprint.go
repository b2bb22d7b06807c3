package ledger

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// fingerprint of a request payload, stored with its idempotency key
func fingerprint(operation string, fields ...string) string {
	var b strings.Builder
	b.WriteString(operation)
	for _, f := range fields {
		b.WriteByte(0x1f)
		b.WriteString(f)
	}

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
