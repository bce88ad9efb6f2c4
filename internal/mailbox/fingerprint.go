package mailbox

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint derives the cache key for a fetch. Any change to the
// connection identity, folder or limit yields a different key. The
// password only contributes its digest.
func Fingerprint(params ConnectionParams, limit int) string {
	pw := sha256.Sum256([]byte(params.Password))

	h := sha256.New()
	for _, part := range []string{
		params.Server,
		strconv.Itoa(params.Port),
		params.Username,
		hex.EncodeToString(pw[:]),
		params.Folder,
		strconv.Itoa(limit),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
