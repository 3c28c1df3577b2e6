package handler

import (
	"fmt"
	"time"
	"unicode/utf8"

	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const (
	maxPrefixLen      = 5
	maxDescriptionLen = 1000
	recentLogsLimit   = 7
	defaultStatsDays  = 7
	maxStatsDays      = 90
)

type guildView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Icon        string              `json:"icon"`
	OwnerID     string              `json:"ownerId"`
	OwnerName   string              `json:"ownerName"`
	MemberCount int                 `json:"memberCount"`
	Prefix      string              `json:"prefix"`
	Description string              `json:"description"`
	Settings    model.GuildSettings `json:"settings"`
	Admins      []string            `json:"admins"`
	Moderators  []string            `json:"moderators"`
}

func newGuildView(g *model.Guild) guildView {
	v := guildView{
		ID:          g.GuildID,
		Name:        g.GuildName,
		Icon:        g.GuildIcon,
		OwnerID:     g.OwnerID,
		OwnerName:   g.OwnerName,
		MemberCount: g.MemberCount,
		Prefix:      g.Prefix,
		Description: g.Description,
		Settings:    g.Settings,
		Admins:      g.Admins,
		Moderators:  g.Moderators,
	}
	if v.Admins == nil {
		v.Admins = []string{}
	}
	if v.Moderators == nil {
		v.Moderators = []string{}
	}
	return v
}

func loadGuild(c *gin.Context, guilds store.Guilds) (*model.Guild, bool) {
	g, err := guilds.GetGuild(c.Request.Context(), c.Param("guildId"))
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(c, "Guild not found")
		return nil, false
	}
	if err != nil {
		serverError(c, "Failed to get guild", err)
		return nil, false
	}
	return g, true
}

func GetGuild(guilds store.Guilds) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := loadGuild(c, guilds)
		if !ok {
			return
		}
		response.OK(c, "Guild retrieved", newGuildView(g))
	}
}

// mergeSettings overlays the known keys of patch onto base. For an unknown
// key or a value of the wrong type it returns the client-facing problem.
func mergeSettings(base model.GuildSettings, patch map[string]interface{}) (model.GuildSettings, string) {
	for k, v := range patch {
		var dst *bool
		switch k {
		case "autoModeration":
			dst = &base.AutoModeration
		case "welcomeMessage":
			dst = &base.WelcomeMessage
		case "logsEnabled":
			dst = &base.LogsEnabled
		case "announcements":
			dst = &base.Announcements
		case "welcomeChannel":
			s, ok := v.(string)
			if !ok {
				return base, fmt.Sprintf("Setting %s must be a string", k)
			}
			base.WelcomeChannel = s
			continue
		default:
			return base, "Invalid setting: " + k
		}
		b, ok := v.(bool)
		if !ok {
			return base, fmt.Sprintf("Setting %s must be a boolean", k)
		}
		*dst = b
	}
	return base, ""
}

// UpdateGuild applies the settings form. Sending the same payload twice
// leaves the same state; each call is audited.
func UpdateGuild(guilds store.Guilds, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Prefix      *string                `json:"prefix"`
			Description *string                `json:"description"`
			Settings    map[string]interface{} `json:"settings"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if p := input.Prefix; p != nil {
			if n := utf8.RuneCountInString(*p); n < 1 || n > maxPrefixLen {
				response.BadRequest(c, "Prefix must be 1-5 characters")
				return
			}
		}
		if d := input.Description; d != nil && utf8.RuneCountInString(*d) > maxDescriptionLen {
			response.BadRequest(c, "Description must be 1000 characters or less")
			return
		}

		g, ok := loadGuild(c, guilds)
		if !ok {
			return
		}

		upd := store.GuildUpdate{Prefix: input.Prefix, Description: input.Description}
		if input.Settings != nil {
			merged, problem := mergeSettings(g.Settings, input.Settings)
			if problem != "" {
				response.BadRequest(c, problem)
				return
			}
			upd.Settings = &merged
		}

		updated, err := guilds.UpdateGuild(c.Request.Context(), g.GuildID, upd)
		if err != nil {
			serverError(c, "Failed to update guild", err)
			return
		}

		id, name := actor(c)
		meta := map[string]interface{}{}
		if input.Prefix != nil {
			meta["prefix"] = *input.Prefix
		}
		if input.Description != nil {
			meta["description"] = *input.Description
		}
		if input.Settings != nil {
			meta["settings"] = input.Settings
		}
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:    g.GuildID,
			UserID:     id,
			Username:   name,
			Type:       model.LogTypeConfig,
			Action:     "UPDATE_SETTINGS",
			Message:    "Guild settings updated",
			TargetID:   g.GuildID,
			TargetName: g.GuildName,
			Metadata:   meta,
		})

		response.OK(c, "Guild settings updated", newGuildView(updated))
	}
}

type recentLogView struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      model.LogType  `json:"type"`
	Message   string         `json:"message"`
	Severity  model.Severity `json:"severity"`
}

func GetGuildStats(guilds store.Guilds, commands store.Commands, logs store.Logs) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, ok := loadGuild(c, guilds)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		days := clamp(queryInt(c, "days", defaultStatsDays), 1, maxStatsDays)

		commandCount, err := commands.CountCommands(ctx, g.GuildID)
		if err != nil {
			serverError(c, "Failed to get guild stats", err)
			return
		}
		logCount, err := logs.CountLogs(ctx, g.GuildID)
		if err != nil {
			serverError(c, "Failed to get guild stats", err)
			return
		}
		recent, err := logs.RecentLogs(ctx, g.GuildID, recentLogsLimit)
		if err != nil {
			serverError(c, "Failed to get guild stats", err)
			return
		}
		since := time.Now().UTC().AddDate(0, 0, -(days - 1))
		daily, err := guilds.DailyStats(ctx, g.GuildID, since)
		if err != nil {
			serverError(c, "Failed to get guild stats", err)
			return
		}

		recentViews := make([]recentLogView, 0, len(recent))
		for _, l := range recent {
			recentViews = append(recentViews, recentLogView{
				ID:        l.ID,
				Timestamp: l.Timestamp,
				Type:      l.Type,
				Message:   l.Message,
				Severity:  l.Severity,
			})
		}
		if daily == nil {
			daily = []model.DailyStat{}
		}

		response.OK(c, "Guild stats retrieved", gin.H{
			"guildId":      g.GuildID,
			"guildName":    g.GuildName,
			"commandCount": commandCount,
			"logCount":     logCount,
			"memberCount":  g.MemberCount,
			"prefix":       g.Prefix,
			"stats":        g.Stats,
			"recentLogs":   recentViews,
			"daily":        daily,
		})
	}
}

// AddGuildAdmin is owner-only and idempotent; only a real change is audited.
func AddGuildAdmin(guilds store.Guilds, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			UserID string `json:"userId"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if input.UserID == "" {
			response.BadRequest(c, "User ID required")
			return
		}

		guildID := c.Param("guildId")
		g, added, err := guilds.AddGuildAdmin(c.Request.Context(), guildID, input.UserID)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Guild not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to add admin", err)
			return
		}

		if added {
			id, name := actor(c)
			rec.Record(c.Request.Context(), audit.Entry{
				GuildID:  guildID,
				UserID:   id,
				Username: name,
				Type:     model.LogTypeConfig,
				Action:   "ADD_ADMIN",
				Message:  "User added as admin",
				TargetID: input.UserID,
			})
		}
		response.OK(c, "Admin added", newGuildView(g))
	}
}

func RemoveGuildAdmin(guilds store.Guilds, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID, userID := c.Param("guildId"), c.Param("userId")
		g, err := guilds.RemoveGuildAdmin(c.Request.Context(), guildID, userID)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Guild not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to remove admin", err)
			return
		}

		id, name := actor(c)
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:  guildID,
			UserID:   id,
			Username: name,
			Type:     model.LogTypeConfig,
			Action:   "REMOVE_ADMIN",
			Message:  "User removed from admins",
			TargetID: userID,
		})
		response.OK(c, "Admin removed", newGuildView(g))
	}
}

// currentGuildID is the :guildId RequireGuild already validated.
func currentGuildID(c *gin.Context) string {
	if m, ok := middleware.CurrentMembership(c); ok {
		return m.GuildID
	}
	return c.Param("guildId")
}
