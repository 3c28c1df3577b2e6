package model

import (
	"strings"
	"time"
)

// Permission keys accepted in role payloads.
const (
	PermManageCommands = "manage_commands"
	PermManageRoles    = "manage_roles"
	PermManageSettings = "manage_settings"
	PermViewLogs       = "view_logs"
	PermBanUsers       = "ban_users"
	PermKickUsers      = "kick_users"
)

var PermissionKeys = []string{
	PermManageCommands,
	PermManageRoles,
	PermManageSettings,
	PermViewLogs,
	PermBanUsers,
	PermKickUsers,
}

type Permissions struct {
	ManageCommands bool `bson:"manage_commands" json:"manage_commands"`
	ManageRoles    bool `bson:"manage_roles" json:"manage_roles"`
	ManageSettings bool `bson:"manage_settings" json:"manage_settings"`
	ViewLogs       bool `bson:"view_logs" json:"view_logs"`
	BanUsers       bool `bson:"ban_users" json:"ban_users"`
	KickUsers      bool `bson:"kick_users" json:"kick_users"`
}

// IsPermissionKey reports whether key is one of the six capability names.
func IsPermissionKey(key string) bool {
	for _, k := range PermissionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Apply overlays the given keys onto p. Unknown keys are ignored; callers
// validate with IsPermissionKey first.
func (p Permissions) Apply(values map[string]bool) Permissions {
	for k, v := range values {
		switch k {
		case PermManageCommands:
			p.ManageCommands = v
		case PermManageRoles:
			p.ManageRoles = v
		case PermManageSettings:
			p.ManageSettings = v
		case PermViewLogs:
			p.ViewLogs = v
		case PermBanUsers:
			p.BanUsers = v
		case PermKickUsers:
			p.KickUsers = v
		}
	}
	return p
}

func AllPermissions() Permissions {
	return Permissions{true, true, true, true, true, true}
}

// Role is a named permission set inside a guild. (GuildID, RoleID) is unique.
type Role struct {
	ID            string      `gorm:"primaryKey" bson:"_id" json:"id"`
	GuildID       string      `gorm:"not null;uniqueIndex:idx_role_guild_role" bson:"guildId" json:"-"`
	RoleID        string      `gorm:"not null;uniqueIndex:idx_role_guild_role" bson:"roleId" json:"roleId"`
	RoleName      string      `gorm:"not null" bson:"roleName" json:"name"`
	Permissions   Permissions `gorm:"embedded;embeddedPrefix:perm_" bson:"permissions" json:"permissions"`
	UpdatedBy     string      `bson:"updatedBy" json:"-"`
	UpdatedByName string      `bson:"updatedByName" json:"-"`
	UpdatedAt     time.Time   `bson:"updatedAt" json:"-"`
}

// RoleDisplayName derives a name from a role id: "moderator" -> "Moderator".
func RoleDisplayName(roleID string) string {
	if roleID == "" {
		return ""
	}
	return strings.ToUpper(roleID[:1]) + roleID[1:]
}

// DefaultRoles is returned for guilds that have not stored any role yet.
func DefaultRoles() []Role {
	return []Role{
		{ID: "admin", RoleID: "admin", RoleName: "Administrator", Permissions: AllPermissions()},
		{ID: "moderator", RoleID: "moderator", RoleName: "Moderator", Permissions: Permissions{
			ViewLogs:  true,
			BanUsers:  true,
			KickUsers: true,
		}},
		{ID: "member", RoleID: "member", RoleName: "Member"},
	}
}
