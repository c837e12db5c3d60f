package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ShareTokenBytes is the entropy of a review link token before encoding.
const ShareTokenBytes = 32

// GenerateShareToken returns a URL-safe random token for review links.
func GenerateShareToken() (string, error) {
	buf := make([]byte, ShareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashViewerIP returns a keyed blake2b digest of the client address so view
// analytics never store raw IPs. Ports are stripped before hashing.
func HashViewerIP(remoteAddr string, key []byte) (string, error) {
	addr := strings.TrimSpace(remoteAddr)
	if addr == "" {
		return "", fmt.Errorf("remote address is required")
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("init blake2b: %w", err)
	}
	h.Write([]byte(addr))
	return hex.EncodeToString(h.Sum(nil)), nil
}
