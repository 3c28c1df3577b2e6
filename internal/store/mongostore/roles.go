package mongostore

import (
	"context"

	"guild-dashboard/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) ListRoles(ctx context.Context, guildID string) ([]model.Role, error) {
	cur, err := s.col(colRoles).Find(ctx, bson.M{"guildId": guildID},
		options.Find().SetSort(bson.D{{Key: "roleId", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list roles")
	}
	roles := []model.Role{}
	if err := cur.All(ctx, &roles); err != nil {
		return nil, errors.Wrap(err, "decode roles")
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, guildID, roleID string) (*model.Role, error) {
	var r model.Role
	if err := findOne(ctx, s.col(colRoles), bson.M{"guildId": guildID, "roleId": roleID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) SaveRole(ctx context.Context, role *model.Role) error {
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = s.now()
	}
	id := role.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := s.col(colRoles).FindOneAndUpdate(ctx,
		bson.M{"guildId": role.GuildID, "roleId": role.RoleID},
		bson.M{
			"$set": bson.M{
				"roleName":      role.RoleName,
				"permissions":   role.Permissions,
				"updatedBy":     role.UpdatedBy,
				"updatedByName": role.UpdatedByName,
				"updatedAt":     role.UpdatedAt,
			},
			"$setOnInsert": bson.M{"_id": id},
		},
		returnAfter().SetUpsert(true),
	).Decode(role)
	return errors.Wrap(err, "save role")
}
