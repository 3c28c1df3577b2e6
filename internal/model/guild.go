package model

import "time"

const (
	DefaultPrefix         = "!"
	DefaultWelcomeChannel = "general"
)

type Guild struct {
	GuildID     string        `gorm:"primaryKey" bson:"_id" json:"id"`
	GuildName   string        `gorm:"not null" bson:"guildName" json:"name"`
	GuildIcon   string        `bson:"guildIcon" json:"icon"`
	OwnerID     string        `bson:"ownerId" json:"ownerId"`
	OwnerName   string        `bson:"ownerName" json:"ownerName"`
	MemberCount int           `bson:"memberCount" json:"memberCount"`
	Prefix      string        `gorm:"size:5;not null" bson:"prefix" json:"prefix"`
	Description string        `gorm:"size:1000" bson:"description" json:"description"`
	Settings    GuildSettings `gorm:"embedded;embeddedPrefix:settings_" bson:"settings" json:"settings"`
	Stats       GuildStats    `gorm:"embedded;embeddedPrefix:stats_" bson:"stats" json:"stats"`
	Admins      []string      `gorm:"serializer:json;type:text" bson:"admins" json:"admins"`
	Moderators  []string      `gorm:"serializer:json;type:text" bson:"moderators" json:"moderators"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

type GuildSettings struct {
	AutoModeration bool   `bson:"autoModeration" json:"autoModeration"`
	WelcomeMessage bool   `bson:"welcomeMessage" json:"welcomeMessage"`
	LogsEnabled    bool   `bson:"logsEnabled" json:"logsEnabled"`
	Announcements  bool   `bson:"announcements" json:"announcements"`
	WelcomeChannel string `bson:"welcomeChannel" json:"welcomeChannel"`
}

type GuildStats struct {
	TotalCommands int64      `bson:"totalCommands" json:"totalCommands"`
	TotalMessages int64      `bson:"totalMessages" json:"totalMessages"`
	TotalUsers    int64      `bson:"totalUsers" json:"totalUsers"`
	ActiveUsers   int64      `bson:"activeUsers" json:"activeUsers"`
	LastCommandAt *time.Time `bson:"lastCommandAt,omitempty" json:"lastCommandAt"`
	LastMessageAt *time.Time `bson:"lastMessageAt,omitempty" json:"lastMessageAt"`
}

// DefaultSettings is what a guild starts with the first time a login reveals it.
func DefaultSettings() GuildSettings {
	return GuildSettings{
		LogsEnabled:    true,
		WelcomeChannel: DefaultWelcomeChannel,
	}
}

// NewGuild builds the default document for a guild seen for the first time.
func NewGuild(id, name, icon, ownerID, ownerName string, now time.Time) Guild {
	return Guild{
		GuildID:    id,
		GuildName:  name,
		GuildIcon:  icon,
		OwnerID:    ownerID,
		OwnerName:  ownerName,
		Prefix:     DefaultPrefix,
		Settings:   DefaultSettings(),
		Admins:     []string{},
		Moderators: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DailyStat holds one day of activity counters for a guild.
type DailyStat struct {
	ID       uint   `gorm:"primaryKey" bson:"-" json:"-"`
	GuildID  string `gorm:"not null;uniqueIndex:idx_daily_guild_date" bson:"guildId" json:"-"`
	Date     string `gorm:"not null;uniqueIndex:idx_daily_guild_date" bson:"date" json:"date"`
	Commands int64  `bson:"commands" json:"commands"`
	Messages int64  `bson:"messages" json:"messages"`
	Users    int64  `bson:"users" json:"users"`
}

// DayLayout is the calendar-day key format of DailyStat.Date.
const DayLayout = "2006-01-02"
