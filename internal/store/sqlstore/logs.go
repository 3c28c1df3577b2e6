package sqlstore

import (
	"context"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const topUsersLimit = 5

func (s *Store) AppendLog(ctx context.Context, l *model.Log) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = s.now()
	}
	l.Timestamp = l.Timestamp.UTC()
	return errors.Wrap(s.db.WithContext(ctx).Create(l).Error, "append log")
}

func (s *Store) logScope(ctx context.Context, f store.LogFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.Log{})
	if f.GuildID != "" {
		q = q.Where("guild_id = ?", f.GuildID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Since != nil {
		q = q.Where("timestamp >= ?", f.Since.UTC())
	}
	if f.Until != nil {
		q = q.Where("timestamp <= ?", f.Until.UTC())
	}
	return q
}

func (s *Store) QueryLogs(ctx context.Context, f store.LogFilter) ([]model.Log, int64, error) {
	var total int64
	if err := s.logScope(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count logs")
	}

	q := s.logScope(ctx, f).Order("timestamp desc").Offset(f.Offset)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var logs []model.Log
	if err := q.Find(&logs).Error; err != nil {
		return nil, 0, errors.Wrap(err, "query logs")
	}
	return logs, total, nil
}

func (s *Store) GetLog(ctx context.Context, guildID, id string) (*model.Log, error) {
	var l model.Log
	if err := s.db.WithContext(ctx).First(&l, "guild_id = ? AND id = ?", guildID, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *Store) RecentLogs(ctx context.Context, guildID string, n int) ([]model.Log, error) {
	logs, _, err := s.QueryLogs(ctx, store.LogFilter{GuildID: guildID, Limit: n})
	return logs, err
}

func (s *Store) CountLogs(ctx context.Context, guildID string) (int64, error) {
	var n int64
	err := s.logScope(ctx, store.LogFilter{GuildID: guildID}).Count(&n).Error
	return n, errors.Wrap(err, "count logs")
}

type bucket struct {
	Name  string
	Total int64
}

func (s *Store) groupLogs(ctx context.Context, guildID string, since time.Time, column string, limit int) ([]store.Count, error) {
	q := s.logScope(ctx, store.LogFilter{GuildID: guildID, Since: &since}).
		Select(column + " AS name, COUNT(*) AS total").
		Group(column).
		Order("total desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []bucket
	if err := q.Scan(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "group logs by %s", column)
	}
	out := make([]store.Count, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Count{Key: r.Name, Count: r.Total})
	}
	return out, nil
}

func (s *Store) LogStats(ctx context.Context, guildID string, since time.Time) (*store.LogStats, error) {
	var (
		st  store.LogStats
		err error
	)
	if st.ByType, err = s.groupLogs(ctx, guildID, since, "type", 0); err != nil {
		return nil, err
	}
	if st.BySeverity, err = s.groupLogs(ctx, guildID, since, "severity", 0); err != nil {
		return nil, err
	}
	if st.TopUsers, err = s.groupLogs(ctx, guildID, since, "username", topUsersLimit); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) DeleteGuildLogs(ctx context.Context, guildID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Delete(&model.Log{})
	return res.RowsAffected, errors.Wrap(res.Error, "delete guild logs")
}

func (s *Store) DeleteAllLogs(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("1 = 1").Delete(&model.Log{})
	return res.RowsAffected, errors.Wrap(res.Error, "delete all logs")
}

func (s *Store) PurgeLogsBefore(ctx context.Context, t time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", t.UTC()).Delete(&model.Log{})
	return res.RowsAffected, errors.Wrap(res.Error, "purge logs")
}
