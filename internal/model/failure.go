package model

import "time"

// FailureRecord is an append-only audit entry written after a delivery
// exhausts its retries. It carries no reference back to the intent.
type FailureRecord struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Channel     Channel   `json:"channel"`
	Destination string    `json:"destination"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failedAt"`
}
