package surrealdb

import "strings"

// isNotFoundError reports whether the driver error means the record does not
// exist. The driver surfaces this as a string, not a sentinel.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no record")
}
