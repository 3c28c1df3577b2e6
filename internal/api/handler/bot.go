package handler

import (
	"time"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// IngestGuildStats takes an activity batch from the companion bot and adds
// it to the guild counters and today's daily bucket.
func IngestGuildStats(guilds store.Guilds) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Commands    int64 `json:"commands"`
			Messages    int64 `json:"messages"`
			Users       int64 `json:"users"`
			MemberCount *int  `json:"memberCount"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if input.Commands < 0 || input.Messages < 0 || input.Users < 0 ||
			(input.MemberCount != nil && *input.MemberCount < 0) {
			response.BadRequest(c, "Counters must be non-negative")
			return
		}

		err := guilds.IncrementStats(c.Request.Context(), c.Param("guildId"), store.StatsDelta{
			Commands:    input.Commands,
			Messages:    input.Messages,
			Users:       input.Users,
			MemberCount: input.MemberCount,
			At:          time.Now().UTC(),
		})
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Guild not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to record stats", err)
			return
		}
		response.OK(c, "Stats recorded", nil)
	}
}
