package pjlink

import (
	"crypto/md5" //nolint:gosec // MD5 is mandated by the PJLink challenge-response scheme
	"encoding/hex"
)

// AuthHash computes the response hash sent ahead of a command when the
// projector greets with a challenge seed.
//
// The digest is applied twice: the inner MD5 is taken over seed, a single
// space and the password; its lowercase hex form is hashed again. The result
// is the lowercase hex of the outer digest (32 characters).
func AuthHash(seed, password string) string {
	inner := md5.Sum([]byte(seed + " " + password)) //nolint:gosec // protocol requirement
	outer := md5.Sum([]byte(hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])
}
