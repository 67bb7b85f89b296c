package entities

import (
	"math"
	"time"
)

// Review is unique per (task_id, user_id).
type Review struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UserID      string    `json:"user_id"`
	RevieweeID  string    `json:"reviewee_id"`
	Rating      float64   `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidRating accepts 0.5 .. 5 in half-star steps.
func ValidRating(r float64) bool {
	if r < 0.5 || r > 5 {
		return false
	}
	return math.Mod(r*2, 1) == 0
}
