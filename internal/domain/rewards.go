package domain

import "time"

// RewardAccount holds a buyer's cumulative eco-point balance. The balance is
// only ever changed by atomic adjustments floored at zero.
type RewardAccount struct {
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
