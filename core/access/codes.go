package access

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

const (
	codeLen     = 6
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// generateCode returns a random 6-character code over A-Z0-9. Uniqueness per
// level is the caller's concern.
func generateCode() (string, error) {
	buf := make([]byte, codeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating activation code")
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}
