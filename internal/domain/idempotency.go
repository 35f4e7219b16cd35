package domain

import "time"

// StoredResponse is an HTTP response remembered under an Idempotency-Key so
// a retried request gets the original answer instead of running again.
// Scope is "METHOD /path"; RequestHash fingerprints the request body.
// A zero Status marks a request that is still being processed.
type StoredResponse struct {
	Scope       string
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	CreatedAt   time.Time
}

// Pending reports whether the request holding the key has not finished yet.
func (s StoredResponse) Pending() bool { return s.Status == 0 }
