// Package device derives device metadata for attestation submissions. Citizen
// clients on shared phones are the norm, so audit entries carry a readable
// device name and submissions without a client-provided attestation token get
// a stable fingerprint instead.
package device

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/sha3"
)

// DisplayName renders a human-readable device description from a User-Agent
// string for audit trails.
func DisplayName(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	switch {
	case browser != "" && os != "":
		return fmt.Sprintf("%s on %s", browser, os)
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown Device"
	}
}

// Fingerprint derives a stable token from the User-Agent and remote address.
// This is a weaker signal than a client attestation token and is only used
// when the client supplies none.
func Fingerprint(rawUA, remoteAddr string) string {
	sum := sha3.Sum256([]byte(rawUA + "|" + remoteAddr))
	return hex.EncodeToString(sum[:])
}
