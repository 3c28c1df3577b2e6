package sqlstore

import (
	"context"

	"guild-dashboard/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

func (s *Store) ListRoles(ctx context.Context, guildID string) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("role_id").Find(&roles).Error; err != nil {
		return nil, errors.Wrap(err, "list roles")
	}
	return roles, nil
}

func (s *Store) GetRole(ctx context.Context, guildID, roleID string) (*model.Role, error) {
	var role model.Role
	err := s.db.WithContext(ctx).First(&role, "guild_id = ? AND role_id = ?", guildID, roleID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &role, nil
}

func (s *Store) SaveRole(ctx context.Context, role *model.Role) error {
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = s.now()
	}
	role.UpdatedAt = role.UpdatedAt.UTC()
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "guild_id"}, {Name: "role_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"role_name",
			"perm_manage_commands", "perm_manage_roles", "perm_manage_settings",
			"perm_view_logs", "perm_ban_users", "perm_kick_users",
			"updated_by", "updated_by_name", "updated_at",
		}),
	}).Create(role).Error
	if err != nil {
		return errors.Wrap(err, "save role")
	}
	// an existing row keeps its id; read it back
	var saved model.Role
	if err := db.First(&saved, "guild_id = ? AND role_id = ?", role.GuildID, role.RoleID).Error; err != nil {
		return errors.Wrap(err, "read saved role")
	}
	*role = saved
	return nil
}
