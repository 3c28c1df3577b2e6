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

func (s *Store) GetUser(ctx context.Context, discordID string) (*model.User, error) {
	var u model.User
	if err := findOne(ctx, s.col(colUsers), bson.M{"_id": discordID}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserBySession(ctx context.Context, sessionHash string) (*model.User, error) {
	if sessionHash == "" {
		return nil, store.ErrNotFound
	}
	var u model.User
	if err := findOne(ctx, s.col(colUsers), bson.M{"sessionHash": sessionHash}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := s.col(colUsers).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	users := []model.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	return users, nil
}

// SaveLogin ensures the guilds first, then writes the user with its whole
// membership array in one document update.
func (s *Store) SaveLogin(ctx context.Context, user *model.User, guilds []model.Guild) error {
	now := s.now()
	if len(guilds) > 0 {
		writes := make([]mongo.WriteModel, 0, len(guilds))
		for _, g := range guilds {
			writes = append(writes, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": g.GuildID}).
				SetUpdate(ensureGuildUpdate(g, now)).
				SetUpsert(true))
		}
		if _, err := s.col(colGuilds).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
			return errors.Wrap(err, "ensure guilds")
		}
	}

	err := s.col(colUsers).FindOneAndUpdate(ctx,
		bson.M{"_id": user.DiscordID},
		loginUpdate(user, now),
		returnAfter().SetUpsert(true),
	).Decode(user)
	return errors.Wrap(err, "upsert user")
}

func (s *Store) SetSession(ctx context.Context, discordID, sessionHash string, expiresAt time.Time) error {
	res, err := s.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": discordID},
		bson.M{"$set": bson.M{"sessionHash": sessionHash, "sessionExpiresAt": expiresAt}},
	)
	if err != nil {
		return errors.Wrap(err, "set session")
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeSessions(ctx context.Context, discordID string) error {
	res, err := s.col(colUsers).UpdateOne(ctx, bson.M{"_id": discordID}, revokeUpdate())
	if err != nil {
		return errors.Wrap(err, "revoke sessions")
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) BanUser(ctx context.Context, discordID, reason string, at time.Time) (*model.User, error) {
	upd := revokeUpdate()
	upd["$set"] = bson.M{
		"sessionHash": "",
		"banned":      true,
		"banReason":   reason,
		"bannedAt":    at,
	}
	var u model.User
	err := s.col(colUsers).FindOneAndUpdate(ctx, bson.M{"_id": discordID}, upd, returnAfter()).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "ban user")
	}
	return &u, nil
}
