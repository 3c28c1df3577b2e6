package handler

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const maxCommandDescriptionLen = 1024

var commandNameRe = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

type commandView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func newCommandView(cmd *model.Command) commandView {
	return commandView{
		ID:          cmd.ID,
		Name:        cmd.Name,
		Description: cmd.Description,
		Enabled:     cmd.Enabled,
		CreatedAt:   cmd.CreatedAt,
		UpdatedAt:   cmd.UpdatedAt,
	}
}

func ListCommands(commands store.Commands) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f store.CommandFilter
		if v, ok := c.GetQuery("enabled"); ok {
			enabled := v == "true"
			f.Enabled = &enabled
		}
		f.Search = strings.TrimSpace(c.Query("search"))

		cmds, err := commands.ListCommands(c.Request.Context(), currentGuildID(c), f)
		if err != nil {
			serverError(c, "Failed to get commands", err)
			return
		}
		out := make([]commandView, 0, len(cmds))
		for i := range cmds {
			out = append(out, newCommandView(&cmds[i]))
		}
		response.OK(c, "Commands retrieved", out)
	}
}

func loadCommand(c *gin.Context, commands store.Commands) (*model.Command, bool) {
	cmd, err := commands.GetCommand(c.Request.Context(), currentGuildID(c), c.Param("commandId"))
	if errors.Is(err, store.ErrNotFound) {
		response.NotFound(c, "Command not found")
		return nil, false
	}
	if err != nil {
		serverError(c, "Failed to get command", err)
		return nil, false
	}
	return cmd, true
}

func GetCommand(commands store.Commands) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd, ok := loadCommand(c, commands)
		if !ok {
			return
		}
		response.OK(c, "Command retrieved", newCommandView(cmd))
	}
}

func CreateCommand(commands store.Commands, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Enabled     *bool  `json:"enabled"`
		}
		if !bindJSON(c, &input) {
			return
		}

		name := input.Name
		if strings.TrimSpace(name) == "" || strings.TrimSpace(input.Description) == "" {
			response.BadRequest(c, "Name and description are required")
			return
		}
		if !commandNameRe.MatchString(name) {
			response.BadRequest(c, "Invalid command name. Use lowercase alphanumeric, hyphens, underscores only")
			return
		}
		if utf8.RuneCountInString(input.Description) > maxCommandDescriptionLen {
			response.BadRequest(c, "Description must be 1024 characters or less")
			return
		}

		id, username := actor(c)
		now := time.Now().UTC()
		cmd := &model.Command{
			GuildID:       currentGuildID(c),
			Name:          name,
			Description:   input.Description,
			Enabled:       input.Enabled == nil || *input.Enabled,
			CreatedBy:     id,
			CreatedByName: username,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err := commands.CreateCommand(c.Request.Context(), cmd)
		if errors.Is(err, store.ErrConflict) {
			response.Fail(c, http.StatusConflict, "Command already exists in this guild")
			return
		}
		if err != nil {
			serverError(c, "Failed to create command", err)
			return
		}

		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:    cmd.GuildID,
			UserID:     id,
			Username:   username,
			Type:       model.LogTypeCommand,
			Action:     "CREATE_COMMAND",
			Message:    fmt.Sprintf("Command /%s created", cmd.Name),
			TargetID:   cmd.ID,
			TargetName: cmd.Name,
		})
		response.Created(c, "Command created successfully", newCommandView(cmd))
	}
}

func UpdateCommand(commands store.Commands, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        *string `json:"name"`
			Description *string `json:"description"`
			Enabled     *bool   `json:"enabled"`
		}
		if !bindJSON(c, &input) {
			return
		}

		cmd, ok := loadCommand(c, commands)
		if !ok {
			return
		}

		if input.Name != nil && *input.Name != cmd.Name {
			response.BadRequest(c, "Cannot change command name after creation")
			return
		}
		if d := input.Description; d != nil {
			if strings.TrimSpace(*d) == "" {
				response.BadRequest(c, "Description cannot be empty")
				return
			}
			if utf8.RuneCountInString(*d) > maxCommandDescriptionLen {
				response.BadRequest(c, "Description must be 1024 characters or less")
				return
			}
			cmd.Description = *d
		}
		if input.Enabled != nil {
			cmd.Enabled = *input.Enabled
		}

		id, username := actor(c)
		cmd.UpdatedBy = id
		cmd.UpdatedByName = username
		if err := commands.UpdateCommand(c.Request.Context(), cmd); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.NotFound(c, "Command not found")
				return
			}
			serverError(c, "Failed to update command", err)
			return
		}

		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:    cmd.GuildID,
			UserID:     id,
			Username:   username,
			Type:       model.LogTypeCommand,
			Action:     "UPDATE_COMMAND",
			Message:    fmt.Sprintf("Command /%s updated", cmd.Name),
			TargetID:   cmd.ID,
			TargetName: cmd.Name,
		})
		response.OK(c, "Command updated successfully", newCommandView(cmd))
	}
}

func DeleteCommand(commands store.Commands, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		cmd, ok := loadCommand(c, commands)
		if !ok {
			return
		}
		err := commands.DeleteCommand(c.Request.Context(), cmd.GuildID, cmd.ID)
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Command not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to delete command", err)
			return
		}

		id, username := actor(c)
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:    cmd.GuildID,
			UserID:     id,
			Username:   username,
			Type:       model.LogTypeCommand,
			Action:     "DELETE_COMMAND",
			Message:    fmt.Sprintf("Command /%s deleted", cmd.Name),
			TargetID:   cmd.ID,
			TargetName: cmd.Name,
		})
		response.OK(c, "Command deleted successfully", nil)
	}
}

// BulkUpdateCommands toggles several commands at once. Ids from other guilds
// are silently left alone.
func BulkUpdateCommands(commands store.Commands, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			CommandIDs []string `json:"commandIds"`
			Enabled    *bool    `json:"enabled"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if len(input.CommandIDs) == 0 {
			response.BadRequest(c, "Command IDs array required")
			return
		}
		if input.Enabled == nil {
			response.BadRequest(c, "Enabled status required")
			return
		}

		guildID := currentGuildID(c)
		id, username := actor(c)
		n, err := commands.SetCommandsEnabled(c.Request.Context(), guildID, input.CommandIDs, *input.Enabled, id)
		if err != nil {
			serverError(c, "Failed to bulk update commands", err)
			return
		}

		state := "disabled"
		if *input.Enabled {
			state = "enabled"
		}
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:  guildID,
			UserID:   id,
			Username: username,
			Type:     model.LogTypeCommand,
			Action:   "BULK_UPDATE_COMMANDS",
			Message:  strconv.Itoa(len(input.CommandIDs)) + " command(s) " + state,
			Metadata: map[string]interface{}{
				"commandIds": input.CommandIDs,
				"enabled":    *input.Enabled,
			},
		})
		response.OK(c, "Commands updated", gin.H{
			"matchedCount":  n,
			"modifiedCount": n,
		})
	}
}
