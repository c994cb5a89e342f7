package chi

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
)

// clientFingerprint derives the admission key for unauthenticated callers
// from the connection's remote address. The key is hashed and server-derived,
// so a caller cannot rotate it through request fields.
func clientFingerprint(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	return "anon:" + hex.EncodeToString(sum[:8])
}
