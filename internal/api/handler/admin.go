package handler

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/notify"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Confirmation codes the admin panel must echo for destructive operations.
const (
	ConfirmDeleteServer  = "DELETE_SERVER_CONFIRM"
	ConfirmBanUser       = "BAN_USER_CONFIRM"
	ConfirmBanIP         = "BAN_IP_CONFIRM"
	ConfirmDeleteAllLogs = "DELETE_ALL_LOGS_CONFIRM"
)

// AdminPermissions is granted to privileged callers whose credential does
// not list its own.
var AdminPermissions = []string{"ban-ip", "delete-server", "manage-users", "view-logs", "manage-database"}

// Invalidator drops a cached user.
type Invalidator interface {
	Invalidate(discordID string)
}

// BanCache drops a cached IP decision.
type BanCache interface {
	Forget(ip string)
}

type TotalsSource interface {
	Totals(ctx context.Context) (*store.Totals, error)
}

// Admin bundles what the admin routes share.
type Admin struct {
	Log      *zap.Logger
	Notifier notify.Notifier
}

// alert records a destructive operation in the server log and tells the
// operators about it.
func (a Admin) alert(c *gin.Context, msg string, fields ...zap.Field) {
	id, name := actor(c)
	fields = append(fields, zap.String("by", id), zap.String("byName", name), zap.String("ip", c.ClientIP()))
	a.Log.Warn(msg, fields...)
	if a.Notifier != nil {
		a.Notifier.Notify(c.Request.Context(), fmt.Sprintf("%s (by %s)", msg, name))
	}
}

func confirmed(c *gin.Context, got, want string) bool {
	if got != want {
		response.BadRequest(c, "Invalid confirmation code")
		return false
	}
	return true
}

// VerifyAdminCredentials accepts an allowlisted Discord session, the master
// key or a configured username/password.
func VerifyAdminCredentials(admins middleware.Admins, creds []auth.Credential) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username"`
			Password string `json:"password"`
			APIKey   string `json:"apiKey"`
		}
		if !bindJSON(c, &input) {
			return
		}

		var discordAdmin bool
		if u := middleware.CurrentUser(c); u != nil {
			discordAdmin = admins.IsDiscordAdmin(u.DiscordID)
		}
		key := input.APIKey
		if key == "" {
			key = c.GetHeader(middleware.HeaderAPIKey)
		}
		validKey := key != "" && admins.ValidKey(key)

		var (
			cred      auth.Credential
			validCred bool
		)
		if input.Username != "" && input.Password != "" {
			cred, validCred = auth.CheckCredentials(creds, input.Username, input.Password)
		}

		if !discordAdmin && !validKey && !validCred {
			response.Unauthorized(c, "Invalid admin credentials")
			return
		}

		level := middleware.AdminLevelCredential
		perms := AdminPermissions
		switch {
		case discordAdmin:
			level = middleware.AdminLevelDiscord
		case validCred:
			if cred.Level != "" {
				level = cred.Level
			}
			if len(cred.Permissions) > 0 {
				perms = cred.Permissions
			}
		}
		response.OK(c, "Admin access verified", gin.H{
			"adminLevel":  level,
			"permissions": perms,
		})
	}
}

func GetDatabaseStats(totals TotalsSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := totals.Totals(c.Request.Context())
		if err != nil {
			serverError(c, "Failed to get statistics", err)
			return
		}
		response.OK(c, "Database statistics retrieved", gin.H{
			"database":  t,
			"timestamp": time.Now().UTC(),
		})
	}
}

func ListAllServers(guilds store.Guilds) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := guilds.ListGuilds(c.Request.Context())
		if err != nil {
			serverError(c, "Failed to get servers", err)
			return
		}
		servers := make([]gin.H, 0, len(list))
		for _, g := range list {
			servers = append(servers, gin.H{
				"id":           g.GuildID,
				"name":         g.GuildName,
				"memberCount":  g.MemberCount,
				"commandCount": g.Stats.TotalCommands,
				"messageCount": g.Stats.TotalMessages,
				"createdAt":    g.CreatedAt,
			})
		}
		response.OK(c, "All servers retrieved", gin.H{
			"totalServers": len(servers),
			"servers":      servers,
		})
	}
}

func ListAllUsers(users store.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := users.ListUsers(c.Request.Context())
		if err != nil {
			serverError(c, "Failed to get users", err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, u := range list {
			out = append(out, gin.H{
				"id":          u.DiscordID,
				"username":    u.Username,
				"email":       u.Email,
				"serverCount": len(u.Guilds),
				"banned":      u.Banned,
				"createdAt":   u.CreatedAt,
			})
		}
		response.OK(c, "All users retrieved", gin.H{
			"totalUsers": len(out),
			"users":      out,
		})
	}
}

// DeleteServer removes a guild with its logs, commands, roles and daily
// stats. Users and other guilds are untouched.
func (a Admin) DeleteServer(guilds store.Guilds) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			ConfirmationCode string `json:"confirmationCode"`
		}
		if !bindJSON(c, &input) || !confirmed(c, input.ConfirmationCode, ConfirmDeleteServer) {
			return
		}

		ctx := c.Request.Context()
		guildID := c.Param("guildId")
		g, err := guilds.GetGuild(ctx, guildID)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Server not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to delete server", err)
			return
		}

		res, err := guilds.DeleteGuild(ctx, guildID)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Server not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to delete server", err)
			return
		}

		a.alert(c, fmt.Sprintf("Server deleted: %s (%s)", g.GuildName, guildID),
			zap.Int64("logs", res.Logs), zap.Int64("commands", res.Commands), zap.Int64("roles", res.Roles))
		response.OK(c, "Server deleted from database", gin.H{
			"guildId":              guildID,
			"serverName":           g.GuildName,
			"deletedLogsCount":     res.Logs,
			"deletedCommandsCount": res.Commands,
			"deletedRolesCount":    res.Roles,
			"deletedAt":            time.Now().UTC(),
			"status":               "deleted",
		})
	}
}

// BanUser bans a dashboard user everywhere. Outstanding tokens stop working
// at once because the token version moves.
func (a Admin) BanUser(users store.Users, dir Invalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			UserID           string `json:"userId"`
			Reason           string `json:"reason"`
			ConfirmationCode string `json:"confirmationCode"`
		}
		if !bindJSON(c, &input) {
			return
		}
		userID := c.Param("userId")
		if userID == "" {
			userID = input.UserID
		}
		if userID == "" {
			response.BadRequest(c, "User ID required")
			return
		}
		if !confirmed(c, input.ConfirmationCode, ConfirmBanUser) {
			return
		}

		now := time.Now().UTC()
		u, err := users.BanUser(c.Request.Context(), userID, input.Reason, now)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to ban user", err)
			return
		}
		dir.Invalidate(userID)

		a.alert(c, fmt.Sprintf("User banned: %s (%s)", u.Username, userID), zap.String("reason", input.Reason))
		response.OK(c, "User banned globally", gin.H{
			"userId":   userID,
			"username": u.Username,
			"banned":   true,
			"reason":   input.Reason,
			"bannedAt": now,
		})
	}
}

// parseBanDuration understands Go durations, whole days ("7d") and
// "permanent". Empty means permanent.
func parseBanDuration(s string, from time.Time) (*time.Time, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "permanent" || s == "forever" {
		return nil, true
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n <= 0 {
			return nil, false
		}
		t := from.AddDate(0, 0, n)
		return &t, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return nil, false
	}
	t := from.Add(d)
	return &t, true
}

func (a Admin) BanIP(bans store.Bans, cache BanCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			IPAddress        string `json:"ipAddress"`
			Reason           string `json:"reason"`
			Duration         string `json:"duration"`
			ConfirmationCode string `json:"confirmationCode"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if input.IPAddress == "" {
			response.BadRequest(c, "IP address required")
			return
		}
		ip := net.ParseIP(strings.TrimSpace(input.IPAddress))
		if ip == nil {
			response.BadRequest(c, "Invalid IP address")
			return
		}
		if !confirmed(c, input.ConfirmationCode, ConfirmBanIP) {
			return
		}

		now := time.Now().UTC()
		expiresAt, ok := parseBanDuration(input.Duration, now)
		if !ok {
			response.BadRequest(c, "Invalid duration")
			return
		}

		id, _ := actor(c)
		ban := &model.BannedIP{
			IPAddress: ip.String(),
			Reason:    input.Reason,
			Duration:  input.Duration,
			ExpiresAt: expiresAt,
			BannedBy:  id,
			CreatedAt: now,
		}
		if err := bans.BanIP(c.Request.Context(), ban); err != nil {
			serverError(c, "Failed to ban IP", err)
			return
		}
		cache.Forget(ban.IPAddress)

		a.alert(c, "IP banned: "+ban.IPAddress, zap.String("reason", input.Reason), zap.String("duration", input.Duration))
		response.OK(c, "IP address banned successfully", gin.H{
			"ipAddress": ban.IPAddress,
			"bannedAt":  now,
			"reason":    ban.Reason,
			"duration":  ban.Duration,
			"expiresAt": ban.ExpiresAt,
			"status":    "active",
		})
	}
}

func ListBannedIPs(bans store.Bans) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := bans.ListBannedIPs(c.Request.Context())
		if err != nil {
			serverError(c, "Failed to get banned IPs", err)
			return
		}
		if list == nil {
			list = []model.BannedIP{}
		}
		response.OK(c, "Banned IPs retrieved", list)
	}
}

// UnbanIP lifts a ban; no confirmation is needed to undo.
func (a Admin) UnbanIP(bans store.Bans, cache BanCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.Param("ip")
		if parsed := net.ParseIP(ip); parsed != nil {
			ip = parsed.String()
		}
		err := bans.UnbanIP(c.Request.Context(), ip)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "IP address is not banned")
			return
		}
		if err != nil {
			serverError(c, "Failed to unban IP", err)
			return
		}
		cache.Forget(ip)
		a.Log.Info("IP unbanned", zap.String("ip", ip))
		response.OK(c, "IP address unbanned", gin.H{"ipAddress": ip})
	}
}

func (a Admin) ClearAllLogs(logs store.Logs) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			ConfirmationCode string `json:"confirmationCode"`
		}
		if !bindJSON(c, &input) || !confirmed(c, input.ConfirmationCode, ConfirmDeleteAllLogs) {
			return
		}

		n, err := logs.DeleteAllLogs(c.Request.Context())
		if err != nil {
			serverError(c, "Failed to clear logs", err)
			return
		}
		a.alert(c, fmt.Sprintf("All logs deleted: %d documents", n))
		response.OK(c, "All logs cleared", gin.H{
			"deletedCount": n,
			"clearedAt":    time.Now().UTC(),
		})
	}
}
