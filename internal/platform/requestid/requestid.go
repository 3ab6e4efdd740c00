package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const maxLen = 128

// New returns a random 128-bit hex id.
func New() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// FromHeader keeps a caller-supplied X-Request-Id when it is printable and
// short enough to log, otherwise it mints a new one.
func FromHeader(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxLen {
		return New()
	}
	for _, r := range v {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return v
}
