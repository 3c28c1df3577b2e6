package model

import "time"

// BannedIP blocks a client address from the whole API.
type BannedIP struct {
	IPAddress string     `gorm:"primaryKey" bson:"_id" json:"ipAddress"`
	Reason    string     `bson:"reason" json:"reason"`
	Duration  string     `bson:"duration" json:"duration"`
	ExpiresAt *time.Time `bson:"expiresAt,omitempty" json:"expiresAt"`
	BannedBy  string     `bson:"bannedBy" json:"bannedBy"`
	CreatedAt time.Time  `bson:"createdAt" json:"bannedAt"`
}

// Active reports whether the ban still applies at t.
func (b BannedIP) Active(t time.Time) bool {
	return b.ExpiresAt == nil || t.Before(*b.ExpiresAt)
}
