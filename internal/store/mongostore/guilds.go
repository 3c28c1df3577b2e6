package mongostore

import (
	"context"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) GetGuild(ctx context.Context, guildID string) (*model.Guild, error) {
	var g model.Guild
	if err := findOne(ctx, s.col(colGuilds), bson.M{"_id": guildID}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListGuilds(ctx context.Context) ([]model.Guild, error) {
	cur, err := s.col(colGuilds).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list guilds")
	}
	guilds := []model.Guild{}
	if err := cur.All(ctx, &guilds); err != nil {
		return nil, errors.Wrap(err, "decode guilds")
	}
	return guilds, nil
}

func (s *Store) findAndUpdateGuild(ctx context.Context, filter, update bson.M) (*model.Guild, error) {
	var g model.Guild
	err := s.col(colGuilds).FindOneAndUpdate(ctx, filter, update, returnAfter()).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update guild")
	}
	return &g, nil
}

func (s *Store) UpdateGuild(ctx context.Context, guildID string, upd store.GuildUpdate) (*model.Guild, error) {
	return s.findAndUpdateGuild(ctx, bson.M{"_id": guildID}, guildUpdate(upd, s.now()))
}

func (s *Store) AddGuildAdmin(ctx context.Context, guildID, userID string) (*model.Guild, bool, error) {
	res, err := s.col(colGuilds).UpdateOne(ctx,
		bson.M{"_id": guildID, "admins": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"admins": userID}, "$set": bson.M{"updatedAt": s.now()}},
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "add guild admin")
	}
	g, err := s.GetGuild(ctx, guildID)
	if err != nil {
		return nil, false, err
	}
	return g, res.ModifiedCount > 0, nil
}

func (s *Store) RemoveGuildAdmin(ctx context.Context, guildID, userID string) (*model.Guild, error) {
	return s.findAndUpdateGuild(ctx,
		bson.M{"_id": guildID},
		bson.M{"$pull": bson.M{"admins": userID}, "$set": bson.M{"updatedAt": s.now()}},
	)
}

func (s *Store) IncrementStats(ctx context.Context, guildID string, d store.StatsDelta) error {
	at := d.At
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.col(colGuilds).UpdateOne(ctx, bson.M{"_id": guildID}, statsUpdate(d, at))
	if err != nil {
		return errors.Wrap(err, "increment guild stats")
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	_, err = s.col(colDailyStats).UpdateOne(ctx,
		bson.M{"guildId": guildID, "date": at.UTC().Format(model.DayLayout)},
		dailyUpdate(d),
		upsert(),
	)
	return errors.Wrap(err, "upsert daily stat")
}

func (s *Store) DailyStats(ctx context.Context, guildID string, since time.Time) ([]model.DailyStat, error) {
	cur, err := s.col(colDailyStats).Find(ctx,
		bson.M{"guildId": guildID, "date": bson.M{"$gte": since.UTC().Format(model.DayLayout)}},
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "daily stats")
	}
	days := []model.DailyStat{}
	if err := cur.All(ctx, &days); err != nil {
		return nil, errors.Wrap(err, "decode daily stats")
	}
	return days, nil
}

// DeleteGuild deletes dependents before the guild document so a failure
// leaves the guild visible and the delete can be retried.
func (s *Store) DeleteGuild(ctx context.Context, guildID string) (*store.CascadeResult, error) {
	if _, err := s.GetGuild(ctx, guildID); err != nil {
		return nil, err
	}
	byGuild := bson.M{"guildId": guildID}

	var out store.CascadeResult
	res, err := s.col(colLogs).DeleteMany(ctx, byGuild)
	if err != nil {
		return nil, errors.Wrap(err, "delete guild logs")
	}
	out.Logs = res.DeletedCount

	if res, err = s.col(colCommands).DeleteMany(ctx, byGuild); err != nil {
		return nil, errors.Wrap(err, "delete guild commands")
	}
	out.Commands = res.DeletedCount

	if res, err = s.col(colRoles).DeleteMany(ctx, byGuild); err != nil {
		return nil, errors.Wrap(err, "delete guild roles")
	}
	out.Roles = res.DeletedCount

	if _, err = s.col(colDailyStats).DeleteMany(ctx, byGuild); err != nil {
		return nil, errors.Wrap(err, "delete daily stats")
	}
	if _, err = s.col(colGuilds).DeleteOne(ctx, bson.M{"_id": guildID}); err != nil {
		return nil, errors.Wrap(err, "delete guild")
	}
	return &out, nil
}
