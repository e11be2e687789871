package ingest

import (
	"crypto/md5"
	"encoding/hex"
)

// HashID derives the 12 hex character identifier used for records and news items.
func HashID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}
