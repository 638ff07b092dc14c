// Package services holds the domain logic between the HTTP handlers and the
// GORM models: the category hierarchy, attribute inheritance, and the
// product catalog query layer.
package services

import "strings"

// IsDuplicateKey recognizes unique index violations across the supported
// dialects. Slug probes and existence checks make collisions rare; this
// catches the race where two writers claim the same free value at once.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Duplicate entry") // mysql
}
