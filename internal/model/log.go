package model

import (
	"time"

	"gorm.io/datatypes"
)

type LogType string

const (
	LogTypeCommand    LogType = "command"
	LogTypeModeration LogType = "moderation"
	LogTypeError      LogType = "error"
	LogTypeSystem     LogType = "system"
	LogTypeConfig     LogType = "config"
)

func (t LogType) Valid() bool {
	switch t {
	case LogTypeCommand, LogTypeModeration, LogTypeError, LogTypeSystem, LogTypeConfig:
		return true
	}
	return false
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// LogRetention is how long a log entry lives before it is purged.
const LogRetention = 90 * 24 * time.Hour

// Log is an append-only audit/activity entry.
type Log struct {
	ID         string            `gorm:"primaryKey" bson:"_id" json:"id"`
	GuildID    string            `gorm:"not null;index" bson:"guildId" json:"guildId"`
	UserID     string            `gorm:"not null;index" bson:"userId" json:"userId"`
	Username   string            `bson:"username" json:"username"`
	Type       LogType           `gorm:"not null;index" bson:"type" json:"type"`
	Message    string            `gorm:"not null" bson:"message" json:"message"`
	Severity   Severity          `gorm:"not null" bson:"severity" json:"severity"`
	Action     string            `bson:"action,omitempty" json:"action,omitempty"`
	TargetID   string            `bson:"targetId,omitempty" json:"targetId,omitempty"`
	TargetName string            `bson:"targetName,omitempty" json:"targetName,omitempty"`
	Metadata   datatypes.JSONMap `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp  time.Time         `gorm:"not null;index" bson:"timestamp" json:"timestamp"`
}
