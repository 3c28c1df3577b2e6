package handler

import (
	"math"
	"time"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

type logView struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	UserID     string            `json:"userId"`
	Username   string            `json:"username"`
	Type       model.LogType     `json:"type"`
	Message    string            `json:"message"`
	Severity   model.Severity    `json:"severity"`
	Action     string            `json:"action"`
	TargetID   string            `json:"targetId"`
	TargetName string            `json:"targetName"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
}

func newLogView(l *model.Log, withMetadata bool) logView {
	v := logView{
		ID:         l.ID,
		Timestamp:  l.Timestamp,
		UserID:     l.UserID,
		Username:   l.Username,
		Type:       l.Type,
		Message:    l.Message,
		Severity:   l.Severity,
		Action:     l.Action,
		TargetID:   l.TargetID,
		TargetName: l.TargetName,
	}
	if withMetadata {
		v.Metadata = l.Metadata
	}
	return v
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// logFilter reads the list query. Unknown type or severity values are
// ignored rather than rejected, as are unparsable dates.
func logFilter(c *gin.Context) (store.LogFilter, int, int) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := clamp(queryInt(c, "limit", defaultLogLimit), 1, maxLogLimit)

	f := store.LogFilter{
		GuildID: currentGuildID(c),
		UserID:  c.Query("userId"),
		Offset:  (page - 1) * limit,
		Limit:   limit,
	}
	if t := model.LogType(c.Query("type")); t.Valid() {
		f.Type = t
	}
	if s := model.Severity(c.Query("severity")); s.Valid() {
		f.Severity = s
	}
	if t, ok := parseTime(c.Query("startDate")); ok {
		f.Since = &t
	}
	if t, ok := parseTime(c.Query("endDate")); ok {
		f.Until = &t
	}
	return f, page, limit
}

func ListLogs(logs store.Logs) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, page, limit := logFilter(c)
		entries, total, err := logs.QueryLogs(c.Request.Context(), f)
		if err != nil {
			serverError(c, "Failed to get logs", err)
			return
		}

		out := make([]logView, 0, len(entries))
		for i := range entries {
			out = append(out, newLogView(&entries[i], false))
		}
		response.OK(c, "Logs retrieved", gin.H{
			"logs": out,
			"pagination": pagination{
				Page:  page,
				Limit: limit,
				Total: total,
				Pages: int(math.Ceil(float64(total) / float64(limit))),
			},
		})
	}
}

func GetLog(logs store.Logs) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, err := logs.GetLog(c.Request.Context(), currentGuildID(c), c.Param("logId"))
		if errors.Is(err, store.ErrNotFound) {
			response.NotFound(c, "Log not found")
			return
		}
		if err != nil {
			serverError(c, "Failed to get log", err)
			return
		}
		response.OK(c, "Log retrieved", newLogView(l, true))
	}
}

func GetLogStats(logs store.Logs) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := clamp(queryInt(c, "days", defaultStatsDays), 1, maxStatsDays)
		since := time.Now().UTC().AddDate(0, 0, -days)

		st, err := logs.LogStats(c.Request.Context(), currentGuildID(c), since)
		if err != nil {
			serverError(c, "Failed to get log statistics", err)
			return
		}
		response.OK(c, "Log statistics retrieved", gin.H{
			"period": gin.H{
				"days":      days,
				"startDate": since,
			},
			"byType":     nonNil(st.ByType),
			"bySeverity": nonNil(st.BySeverity),
			"topUsers":   nonNil(st.TopUsers),
		})
	}
}

func nonNil(c []store.Count) []store.Count {
	if c == nil {
		return []store.Count{}
	}
	return c
}

// ClearGuildLogs is owner-only. The clearing itself is recorded afterwards,
// so the guild is left with exactly that one entry.
func ClearGuildLogs(logs store.Logs, rec audit.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		guildID := currentGuildID(c)
		n, err := logs.DeleteGuildLogs(c.Request.Context(), guildID)
		if err != nil {
			serverError(c, "Failed to clear logs", err)
			return
		}

		id, username := actor(c)
		rec.Record(c.Request.Context(), audit.Entry{
			GuildID:  guildID,
			UserID:   id,
			Username: username,
			Type:     model.LogTypeSystem,
			Action:   "CLEAR_LOGS",
			Message:  "All logs cleared",
			Severity: model.SeverityWarning,
			Metadata: map[string]interface{}{"deletedCount": n},
		})
		response.OK(c, "All logs cleared", gin.H{"deletedCount": n})
	}
}
