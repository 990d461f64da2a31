package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// SessionRecord marks a customer as ready to insert an item. The hardware bridge
// only classifies while one is active.
type SessionRecord struct {
	UserID    int       `json:"user_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s SessionRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type DetectionStatus string

const (
	DetectionCompleted DetectionStatus = "Completed"
	DetectionRejected  DetectionStatus = "Rejected"
)

// DetectionHistoryEntry is one line of the per-user "recent deposits" panel.
type DetectionHistoryEntry struct {
	Material      Material        `json:"material_type"`
	Confidence    float64         `json:"confidence"`
	PointsEarned  int             `json:"points_earned"`
	TransactionID null.String     `json:"transaction_id"`
	Status        DetectionStatus `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}
