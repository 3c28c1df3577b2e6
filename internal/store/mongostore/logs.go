package mongostore

import (
	"context"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const topUsersLimit = 5

func (s *Store) AppendLog(ctx context.Context, l *model.Log) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = s.now()
	}
	_, err := s.col(colLogs).InsertOne(ctx, l)
	return errors.Wrap(err, "append log")
}

func (s *Store) QueryLogs(ctx context.Context, f store.LogFilter) ([]model.Log, int64, error) {
	q := logFilter(f)
	total, err := s.col(colLogs).CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count logs")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(int64(f.Offset))
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cur, err := s.col(colLogs).Find(ctx, q, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "query logs")
	}
	logs := []model.Log{}
	if err := cur.All(ctx, &logs); err != nil {
		return nil, 0, errors.Wrap(err, "decode logs")
	}
	return logs, total, nil
}

func (s *Store) GetLog(ctx context.Context, guildID, id string) (*model.Log, error) {
	var l model.Log
	if err := findOne(ctx, s.col(colLogs), bson.M{"_id": id, "guildId": guildID}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) RecentLogs(ctx context.Context, guildID string, n int) ([]model.Log, error) {
	logs, _, err := s.QueryLogs(ctx, store.LogFilter{GuildID: guildID, Limit: n})
	return logs, err
}

func (s *Store) CountLogs(ctx context.Context, guildID string) (int64, error) {
	n, err := s.col(colLogs).CountDocuments(ctx, logFilter(store.LogFilter{GuildID: guildID}))
	return n, errors.Wrap(err, "count logs")
}

func (s *Store) groupLogs(ctx context.Context, match bson.M, field string, limit int) ([]store.Count, error) {
	cur, err := s.col(colLogs).Aggregate(ctx, groupPipeline(match, field, limit))
	if err != nil {
		return nil, errors.Wrapf(err, "group logs by %s", field)
	}
	out := []store.Count{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrapf(err, "decode %s buckets", field)
	}
	return out, nil
}

func (s *Store) LogStats(ctx context.Context, guildID string, since time.Time) (*store.LogStats, error) {
	match := logFilter(store.LogFilter{GuildID: guildID, Since: &since})
	var (
		st  store.LogStats
		err error
	)
	if st.ByType, err = s.groupLogs(ctx, match, "type", 0); err != nil {
		return nil, err
	}
	if st.BySeverity, err = s.groupLogs(ctx, match, "severity", 0); err != nil {
		return nil, err
	}
	if st.TopUsers, err = s.groupLogs(ctx, match, "username", topUsersLimit); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) DeleteGuildLogs(ctx context.Context, guildID string) (int64, error) {
	res, err := s.col(colLogs).DeleteMany(ctx, bson.M{"guildId": guildID})
	if err != nil {
		return 0, errors.Wrap(err, "delete guild logs")
	}
	return res.DeletedCount, nil
}

func (s *Store) DeleteAllLogs(ctx context.Context) (int64, error) {
	res, err := s.col(colLogs).DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, errors.Wrap(err, "delete all logs")
	}
	return res.DeletedCount, nil
}

// PurgeLogsBefore duplicates the TTL index for deployments where the TTL
// monitor is disabled.
func (s *Store) PurgeLogsBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.col(colLogs).DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": t}})
	if err != nil {
		return 0, errors.Wrap(err, "purge logs")
	}
	return res.DeletedCount, nil
}
