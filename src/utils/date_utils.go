package utils

import (
	"log"
	"time"
)

// ParseDate parses an RFC3339 timestamp as stored in the ledger tables.
// Logs an error and returns zero time if parsing fails.
func ParseDate(dateStr string) time.Time {
	t, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		log.Printf("Error parsing date '%s' as RFC3339: %v. Returning zero time.", dateStr, err)
		return time.Time{}
	}
	return t
}
