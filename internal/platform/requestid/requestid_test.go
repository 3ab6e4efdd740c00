package requestid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "req-1", FromHeader(" req-1 "))

	for name, v := range map[string]string{
		"empty":    "",
		"spaces":   "a b",
		"control":  "a\nb",
		"too long": strings.Repeat("x", maxLen+1),
	} {
		t.Run(name, func(t *testing.T) {
			got := FromHeader(v)
			assert.Len(t, got, 32)
			assert.NotEqual(t, v, got)
		})
	}
}
