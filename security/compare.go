package security

import "crypto/subtle"

// ConstantTimeEquals reports whether a and b are equal in time that depends
// only on their lengths, never on where they first differ. Lengths are not
// secret for the signatures and tokens compared here, so a length mismatch
// may return early.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
