package sqlstore

import (
	"context"
	"strings"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func (s *Store) ListCommands(ctx context.Context, guildID string, f store.CommandFilter) ([]model.Command, error) {
	q := s.db.WithContext(ctx).Where("guild_id = ?", guildID)
	if f.Enabled != nil {
		q = q.Where("enabled = ?", *f.Enabled)
	}
	if f.Search != "" {
		q = q.Where(`name LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(f.Search))+"%")
	}

	var cmds []model.Command
	if err := q.Order("created_at desc").Find(&cmds).Error; err != nil {
		return nil, errors.Wrap(err, "list commands")
	}
	return cmds, nil
}

func (s *Store) GetCommand(ctx context.Context, guildID, id string) (*model.Command, error) {
	var cmd model.Command
	err := s.db.WithContext(ctx).First(&cmd, "guild_id = ? AND id = ?", guildID, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cmd, nil
}

func (s *Store) CreateCommand(ctx context.Context, cmd *model.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = s.now()
	}
	cmd.CreatedAt = cmd.CreatedAt.UTC()
	cmd.UpdatedAt = cmd.CreatedAt
	err := s.db.WithContext(ctx).Create(cmd).Error
	if isDuplicate(err) {
		return store.ErrConflict
	}
	return errors.Wrap(err, "create command")
}

func (s *Store) UpdateCommand(ctx context.Context, cmd *model.Command) error {
	cmd.UpdatedAt = s.now()
	res := s.db.WithContext(ctx).Model(cmd).
		Where("guild_id = ?", cmd.GuildID).
		Select("description", "enabled", "updated_by", "updated_by_name", "updated_at").
		Updates(cmd)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update command")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteCommand(ctx context.Context, guildID, id string) error {
	res := s.db.WithContext(ctx).Where("guild_id = ? AND id = ?", guildID, id).Delete(&model.Command{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete command")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetCommandsEnabled(ctx context.Context, guildID string, ids []string, enabled bool, by string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&model.Command{}).
		Where("guild_id = ? AND id IN ?", guildID, ids).
		Updates(map[string]interface{}{
			"enabled":    enabled,
			"updated_by": by,
			"updated_at": s.now(),
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "bulk update commands")
	}
	return res.RowsAffected, nil
}

func (s *Store) CountCommands(ctx context.Context, guildID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Command{}).Where("guild_id = ?", guildID).Count(&n).Error
	return n, errors.Wrap(err, "count commands")
}
