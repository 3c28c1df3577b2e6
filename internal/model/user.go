package model

import (
	"time"
)

// Capability is the strength of a caller's rights inside one guild.
// The ordering member < admin < owner is relied on by authorization.
type Capability string

const (
	CapabilityMember Capability = "member"
	CapabilityAdmin  Capability = "admin"
	CapabilityOwner  Capability = "owner"
)

func (c Capability) rank() int {
	switch c {
	case CapabilityOwner:
		return 2
	case CapabilityAdmin:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c grants at least the rights of required.
func (c Capability) AtLeast(required Capability) bool {
	return c.rank() >= required.rank()
}

type User struct {
	DiscordID        string     `gorm:"primaryKey" bson:"_id" json:"id"`
	CreatedAt        time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt" json:"updatedAt"`
	LastLogin        *time.Time `bson:"lastLogin,omitempty" json:"lastLogin"`
	Username         string     `gorm:"not null" bson:"username" json:"username"`
	Avatar           string     `bson:"avatar" json:"avatar"`
	Email            string     `bson:"email" json:"email"`
	AccessToken      string     `bson:"accessToken" json:"-"`
	RefreshToken     string     `bson:"refreshToken" json:"-"`
	TokenExpiry      *time.Time `bson:"tokenExpiry,omitempty" json:"-"`
	TokenVersion     int64      `gorm:"not null" bson:"tokenVersion" json:"-"`
	SessionHash      string     `gorm:"index" bson:"sessionHash" json:"-"`
	SessionExpiresAt *time.Time `bson:"sessionExpiresAt,omitempty" json:"-"`
	Banned           bool       `bson:"banned" json:"banned"`
	BanReason        string     `bson:"banReason" json:"banReason,omitempty"`
	BannedAt         *time.Time `bson:"bannedAt,omitempty" json:"bannedAt,omitempty"`

	Guilds []GuildMembership `gorm:"foreignKey:UserID;references:DiscordID" bson:"guilds" json:"guilds"`
}

// GuildMembership is the snapshot of one guild taken at the user's last login.
type GuildMembership struct {
	ID         uint       `gorm:"primaryKey" bson:"-" json:"-"`
	UserID     string     `gorm:"not null;index" bson:"-" json:"-"`
	GuildID    string     `gorm:"not null;index" bson:"guildId" json:"guildId"`
	GuildName  string     `bson:"guildName" json:"guildName"`
	GuildIcon  string     `bson:"guildIcon" json:"guildIcon"`
	Capability Capability `gorm:"not null" bson:"capability" json:"capability"`
	AddedAt    time.Time  `bson:"addedAt" json:"addedAt"`
}

func (m GuildMembership) IsAdmin() bool { return m.Capability.AtLeast(CapabilityAdmin) }

func (m GuildMembership) IsOwner() bool { return m.Capability == CapabilityOwner }

// Membership returns the cached snapshot for guildID, if any.
func (u *User) Membership(guildID string) (GuildMembership, bool) {
	for _, g := range u.Guilds {
		if g.GuildID == guildID {
			return g, true
		}
	}
	return GuildMembership{}, false
}
