package model

import "time"

// Command is a per-guild custom command. (GuildID, Name) is unique.
type Command struct {
	ID            string    `gorm:"primaryKey" bson:"_id" json:"id"`
	GuildID       string    `gorm:"not null;uniqueIndex:idx_command_guild_name" bson:"guildId" json:"guildId"`
	Name          string    `gorm:"size:32;not null;uniqueIndex:idx_command_guild_name" bson:"name" json:"name"`
	Description   string    `gorm:"size:1024;not null" bson:"description" json:"description"`
	Enabled       bool      `bson:"enabled" json:"enabled"`
	CreatedBy     string    `gorm:"not null" bson:"createdBy" json:"createdBy"`
	CreatedByName string    `bson:"createdByName" json:"createdByName"`
	UpdatedBy     string    `bson:"updatedBy" json:"updatedBy,omitempty"`
	UpdatedByName string    `bson:"updatedByName" json:"updatedByName,omitempty"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}
