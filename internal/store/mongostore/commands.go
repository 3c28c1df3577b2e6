package mongostore

import (
	"context"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) ListCommands(ctx context.Context, guildID string, f store.CommandFilter) ([]model.Command, error) {
	cur, err := s.col(colCommands).Find(ctx, commandFilter(guildID, f),
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list commands")
	}
	cmds := []model.Command{}
	if err := cur.All(ctx, &cmds); err != nil {
		return nil, errors.Wrap(err, "decode commands")
	}
	return cmds, nil
}

func (s *Store) GetCommand(ctx context.Context, guildID, id string) (*model.Command, error) {
	var cmd model.Command
	if err := findOne(ctx, s.col(colCommands), bson.M{"_id": id, "guildId": guildID}, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (s *Store) CreateCommand(ctx context.Context, cmd *model.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	now := s.now()
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = now
	}
	cmd.UpdatedAt = now
	_, err := s.col(colCommands).InsertOne(ctx, cmd)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	return errors.Wrap(err, "create command")
}

func (s *Store) UpdateCommand(ctx context.Context, cmd *model.Command) error {
	cmd.UpdatedAt = s.now()
	res, err := s.col(colCommands).UpdateOne(ctx,
		bson.M{"_id": cmd.ID, "guildId": cmd.GuildID},
		bson.M{"$set": bson.M{
			"description":   cmd.Description,
			"enabled":       cmd.Enabled,
			"updatedBy":     cmd.UpdatedBy,
			"updatedByName": cmd.UpdatedByName,
			"updatedAt":     cmd.UpdatedAt,
		}},
	)
	if err != nil {
		return errors.Wrap(err, "update command")
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCommand(ctx context.Context, guildID, id string) error {
	res, err := s.col(colCommands).DeleteOne(ctx, bson.M{"_id": id, "guildId": guildID})
	if err != nil {
		return errors.Wrap(err, "delete command")
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetCommandsEnabled(ctx context.Context, guildID string, ids []string, enabled bool, by string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.col(colCommands).UpdateMany(ctx,
		bson.M{"guildId": guildID, "_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"enabled": enabled, "updatedBy": by, "updatedAt": s.now()}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "bulk update commands")
	}
	return res.ModifiedCount, nil
}

func (s *Store) CountCommands(ctx context.Context, guildID string) (int64, error) {
	n, err := s.col(colCommands).CountDocuments(ctx, bson.M{"guildId": guildID})
	return n, errors.Wrap(err, "count commands")
}
