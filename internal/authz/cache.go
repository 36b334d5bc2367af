package authz

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// cacheKey hashes the semantically relevant PolicyInput fields: caller
// subject, operation id, and environment. Timestamp, headers, and the
// free-form context map are deliberately excluded so equivalent requests
// share an entry. The bundle revision is not part of the key because each
// bundle snapshot carries its own cache.
func cacheKey(input domain.PolicyInput) string {
	h := sha256.New()
	h.Write([]byte(input.Caller.Subject()))
	h.Write([]byte{0})
	h.Write([]byte(input.OperationID))
	h.Write([]byte{0})
	h.Write([]byte(input.Environment))
	return hex.EncodeToString(h.Sum(nil))
}
