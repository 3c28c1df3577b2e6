// Package store defines the persistence ports of the dashboard. The sqlstore
// and mongostore packages provide the adapters.
package store

import (
	"context"
	"errors"
	"time"

	"guild-dashboard/internal/model"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

type Users interface {
	GetUser(ctx context.Context, discordID string) (*model.User, error)
	GetUserBySession(ctx context.Context, sessionHash string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	// SaveLogin upserts the user, replaces its membership list wholesale and
	// makes sure every guild in guilds exists. Existing guilds only get their
	// name and icon refreshed.
	SaveLogin(ctx context.Context, user *model.User, guilds []model.Guild) error
	SetSession(ctx context.Context, discordID, sessionHash string, expiresAt time.Time) error
	// RevokeSessions bumps the token version and clears the refresh session.
	RevokeSessions(ctx context.Context, discordID string) error
	BanUser(ctx context.Context, discordID, reason string, at time.Time) (*model.User, error)
}

// GuildUpdate carries the settings-form fields; nil means unchanged.
type GuildUpdate struct {
	Prefix      *string
	Description *string
	Settings    *model.GuildSettings
}

// StatsDelta is one batch of activity reported by the companion bot.
type StatsDelta struct {
	Commands    int64
	Messages    int64
	Users       int64
	MemberCount *int
	At          time.Time
}

type Guilds interface {
	GetGuild(ctx context.Context, guildID string) (*model.Guild, error)
	ListGuilds(ctx context.Context) ([]model.Guild, error)
	UpdateGuild(ctx context.Context, guildID string, upd GuildUpdate) (*model.Guild, error)
	// AddGuildAdmin returns added=false when userID already was an admin.
	AddGuildAdmin(ctx context.Context, guildID, userID string) (g *model.Guild, added bool, err error)
	RemoveGuildAdmin(ctx context.Context, guildID, userID string) (*model.Guild, error)
	IncrementStats(ctx context.Context, guildID string, d StatsDelta) error
	DailyStats(ctx context.Context, guildID string, since time.Time) ([]model.DailyStat, error)
	// DeleteGuild removes the guild with its logs, commands, roles and daily stats.
	DeleteGuild(ctx context.Context, guildID string) (*CascadeResult, error)
}

type CascadeResult struct {
	Logs     int64 `json:"deletedLogsCount"`
	Commands int64 `json:"deletedCommandsCount"`
	Roles    int64 `json:"deletedRolesCount"`
}

type CommandFilter struct {
	Enabled *bool
	Search  string
}

type Commands interface {
	ListCommands(ctx context.Context, guildID string, f CommandFilter) ([]model.Command, error)
	GetCommand(ctx context.Context, guildID, id string) (*model.Command, error)
	// CreateCommand returns ErrConflict when (guildID, name) already exists.
	CreateCommand(ctx context.Context, cmd *model.Command) error
	UpdateCommand(ctx context.Context, cmd *model.Command) error
	DeleteCommand(ctx context.Context, guildID, id string) error
	SetCommandsEnabled(ctx context.Context, guildID string, ids []string, enabled bool, by string) (int64, error)
	CountCommands(ctx context.Context, guildID string) (int64, error)
}

type Roles interface {
	ListRoles(ctx context.Context, guildID string) ([]model.Role, error)
	GetRole(ctx context.Context, guildID, roleID string) (*model.Role, error)
	// SaveRole upserts by (GuildID, RoleID).
	SaveRole(ctx context.Context, role *model.Role) error
}

type LogFilter struct {
	GuildID  string
	Type     model.LogType
	Severity model.Severity
	UserID   string
	Since    *time.Time
	Until    *time.Time
	Offset   int
	Limit    int
}

// Count is one bucket of a log aggregation.
type Count struct {
	Key   string `bson:"_id" json:"_id"`
	Count int64  `bson:"count" json:"count"`
}

type LogStats struct {
	ByType     []Count `json:"byType"`
	BySeverity []Count `json:"bySeverity"`
	TopUsers   []Count `json:"topUsers"`
}

type Logs interface {
	AppendLog(ctx context.Context, l *model.Log) error
	// QueryLogs returns one page, newest first, plus the total match count.
	QueryLogs(ctx context.Context, f LogFilter) ([]model.Log, int64, error)
	GetLog(ctx context.Context, guildID, id string) (*model.Log, error)
	RecentLogs(ctx context.Context, guildID string, n int) ([]model.Log, error)
	// CountLogs counts one guild's logs, or all logs when guildID is empty.
	CountLogs(ctx context.Context, guildID string) (int64, error)
	LogStats(ctx context.Context, guildID string, since time.Time) (*LogStats, error)
	DeleteGuildLogs(ctx context.Context, guildID string) (int64, error)
	DeleteAllLogs(ctx context.Context) (int64, error)
	PurgeLogsBefore(ctx context.Context, t time.Time) (int64, error)
}

type Bans interface {
	BanIP(ctx context.Context, b *model.BannedIP) error
	UnbanIP(ctx context.Context, ip string) error
	GetBannedIP(ctx context.Context, ip string) (*model.BannedIP, error)
	ListBannedIPs(ctx context.Context) ([]model.BannedIP, error)
}

type Settings interface {
	// GetSetting returns ErrNotFound for keys never written.
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

type Totals struct {
	Servers       int64 `json:"servers"`
	Users         int64 `json:"users"`
	Logs          int64 `json:"logs"`
	TotalCommands int64 `json:"totalCommands"`
	TotalMessages int64 `json:"totalMessages"`
}

// Store is the full persistence surface.
type Store interface {
	Users
	Guilds
	Commands
	Roles
	Logs
	Bans
	Settings
	Totals(ctx context.Context) (*Totals, error)
	Close(ctx context.Context) error
}
