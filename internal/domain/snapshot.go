package domain

import "time"

// BookSnapshot lists the resting orders of a pair in insertion order.
type BookSnapshot struct {
	Pair      Pair      `json:"pair"`
	Bids      []Order   `json:"bids"`
	Asks      []Order   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}
