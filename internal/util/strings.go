// Package util provides small shared helpers that don't belong to a
// domain-specific package.
package util

// SafeTruncate returns at most maxLen bytes of s without panicking. It bounds
// attacker-controlled values, such as request paths, before they reach log
// records. A negative maxLen yields an empty string.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
