package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	t.Run("empty user agent returns unknown device", func(t *testing.T) {
		assert.Equal(t, "Unknown Device", DisplayName(""))
	})

	t.Run("chrome on desktop includes browser and OS", func(t *testing.T) {
		ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
		name := DisplayName(ua)
		assert.Contains(t, name, "Chrome")
		assert.Contains(t, name, "on")
	})
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("agent-a", "10.0.0.1")
	b := Fingerprint("agent-a", "10.0.0.1")
	c := Fingerprint("agent-a", "10.0.0.2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
