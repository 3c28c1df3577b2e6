package handler

import (
	"context"
	"strconv"
	"strings"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// Reloader re-reads runtime settings after they changed.
type Reloader interface {
	Reload(ctx context.Context) error
}

// maskToken keeps the last four characters so operators can tell tokens apart.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

func readSetting(ctx context.Context, settings store.Settings, key string) (string, error) {
	v, err := settings.GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return v, err
}

// GetTelegramConfig returns the notifier settings with the bot token masked.
func GetTelegramConfig(settings store.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		token, err := readSetting(ctx, settings, model.SettingTelegramBotToken)
		if err != nil {
			serverError(c, "Failed to retrieve Telegram configuration", err)
			return
		}
		chatID, err := readSetting(ctx, settings, model.SettingTelegramChatID)
		if err != nil {
			serverError(c, "Failed to retrieve Telegram configuration", err)
			return
		}

		response.OK(c, "Telegram configuration retrieved", gin.H{
			"bot_token":  maskToken(token),
			"configured": token != "",
			"chat_id":    chatID,
		})
	}
}

// UpdateTelegramConfig stores the notifier settings and restarts the bot.
// A nil field keeps its current value; an empty string clears it.
func UpdateTelegramConfig(settings store.Settings, notifier Reloader) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			BotToken *string `json:"bot_token"`
			ChatID   *string `json:"chat_id"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if input.ChatID != nil && *input.ChatID != "" {
			if _, err := strconv.ParseInt(strings.TrimSpace(*input.ChatID), 10, 64); err != nil {
				response.BadRequest(c, "Chat ID must be numeric")
				return
			}
		}

		ctx := c.Request.Context()
		if input.BotToken != nil {
			if err := settings.PutSetting(ctx, model.SettingTelegramBotToken, strings.TrimSpace(*input.BotToken)); err != nil {
				serverError(c, "Failed to update Telegram Bot Token", err)
				return
			}
		}
		if input.ChatID != nil {
			if err := settings.PutSetting(ctx, model.SettingTelegramChatID, strings.TrimSpace(*input.ChatID)); err != nil {
				serverError(c, "Failed to update Telegram chat", err)
				return
			}
		}

		if notifier != nil {
			if err := notifier.Reload(ctx); err != nil {
				_ = c.Error(err)
				response.BadRequest(c, "Telegram configuration saved but the bot could not start")
				return
			}
		}
		response.OK(c, "Telegram configuration updated successfully", nil)
	}
}
