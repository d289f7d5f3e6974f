package taskcluster

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// DateFormat is the timestamp layout accepted by the queue.
const DateFormat = "2006-01-02T15:04:05.000Z"

// SlugID returns a new 22 character url-safe task id. The first bit is
// cleared so ids never start with a dash.
func SlugID() string {
	id := uuid.New()
	id[0] &= 0x7f
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// StringDate formats t as a queue timestamp in UTC.
func StringDate(t time.Time) string {
	return t.UTC().Format(DateFormat)
}
