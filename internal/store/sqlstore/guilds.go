package sqlstore

import (
	"context"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) GetGuild(ctx context.Context, guildID string) (*model.Guild, error) {
	var g model.Guild
	if err := s.db.WithContext(ctx).First(&g, "guild_id = ?", guildID).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func (s *Store) ListGuilds(ctx context.Context) ([]model.Guild, error) {
	var guilds []model.Guild
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&guilds).Error; err != nil {
		return nil, errors.Wrap(err, "list guilds")
	}
	return guilds, nil
}

func (s *Store) UpdateGuild(ctx context.Context, guildID string, upd store.GuildUpdate) (*model.Guild, error) {
	updates := map[string]interface{}{"updated_at": s.now()}
	if upd.Prefix != nil {
		updates["prefix"] = *upd.Prefix
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if st := upd.Settings; st != nil {
		updates["settings_auto_moderation"] = st.AutoModeration
		updates["settings_welcome_message"] = st.WelcomeMessage
		updates["settings_logs_enabled"] = st.LogsEnabled
		updates["settings_announcements"] = st.Announcements
		updates["settings_welcome_channel"] = st.WelcomeChannel
	}

	res := s.db.WithContext(ctx).Model(&model.Guild{}).Where("guild_id = ?", guildID).Updates(updates)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "update guild")
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetGuild(ctx, guildID)
}

func (s *Store) AddGuildAdmin(ctx context.Context, guildID, userID string) (*model.Guild, bool, error) {
	var (
		g     model.Guild
		added bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&g, "guild_id = ?", guildID).Error; err != nil {
			return notFound(err)
		}
		for _, id := range g.Admins {
			if id == userID {
				return nil
			}
		}
		g.Admins = append(g.Admins, userID)
		g.UpdatedAt = s.now()
		added = true
		return tx.Model(&g).Select("admins", "updated_at").Updates(&g).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &g, added, nil
}

func (s *Store) RemoveGuildAdmin(ctx context.Context, guildID, userID string) (*model.Guild, error) {
	var g model.Guild
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&g, "guild_id = ?", guildID).Error; err != nil {
			return notFound(err)
		}
		kept := make([]string, 0, len(g.Admins))
		for _, id := range g.Admins {
			if id != userID {
				kept = append(kept, id)
			}
		}
		g.Admins = kept
		g.UpdatedAt = s.now()
		return tx.Model(&g).Select("admins", "updated_at").Updates(&g).Error
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) IncrementStats(ctx context.Context, guildID string, d store.StatsDelta) error {
	at := d.At
	if at.IsZero() {
		at = s.now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"stats_total_commands": gorm.Expr("stats_total_commands + ?", d.Commands),
			"stats_total_messages": gorm.Expr("stats_total_messages + ?", d.Messages),
			"stats_total_users":    gorm.Expr("stats_total_users + ?", d.Users),
			"updated_at":           at,
		}
		if d.Commands > 0 {
			updates["stats_last_command_at"] = at
		}
		if d.Messages > 0 {
			updates["stats_last_message_at"] = at
		}
		if d.MemberCount != nil {
			updates["member_count"] = *d.MemberCount
		}
		res := tx.Model(&model.Guild{}).Where("guild_id = ?", guildID).Updates(updates)
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment guild stats")
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}

		day := model.DailyStat{
			GuildID:  guildID,
			Date:     at.UTC().Format(model.DayLayout),
			Commands: d.Commands,
			Messages: d.Messages,
			Users:    d.Users,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "guild_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"commands": gorm.Expr("commands + ?", d.Commands),
				"messages": gorm.Expr("messages + ?", d.Messages),
				"users":    gorm.Expr("users + ?", d.Users),
			}),
		}).Create(&day).Error
		return errors.Wrap(err, "upsert daily stat")
	})
}

func (s *Store) DailyStats(ctx context.Context, guildID string, since time.Time) ([]model.DailyStat, error) {
	var days []model.DailyStat
	err := s.db.WithContext(ctx).
		Where("guild_id = ? AND date >= ?", guildID, since.UTC().Format(model.DayLayout)).
		Order("date").
		Find(&days).Error
	if err != nil {
		return nil, errors.Wrap(err, "daily stats")
	}
	return days, nil
}

func (s *Store) DeleteGuild(ctx context.Context, guildID string) (*store.CascadeResult, error) {
	var out store.CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g model.Guild
		if err := tx.First(&g, "guild_id = ?", guildID).Error; err != nil {
			return notFound(err)
		}

		res := tx.Where("guild_id = ?", guildID).Delete(&model.Log{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete guild logs")
		}
		out.Logs = res.RowsAffected

		res = tx.Where("guild_id = ?", guildID).Delete(&model.Command{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete guild commands")
		}
		out.Commands = res.RowsAffected

		res = tx.Where("guild_id = ?", guildID).Delete(&model.Role{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete guild roles")
		}
		out.Roles = res.RowsAffected

		if err := tx.Where("guild_id = ?", guildID).Delete(&model.DailyStat{}).Error; err != nil {
			return errors.Wrap(err, "delete daily stats")
		}
		return errors.Wrap(tx.Delete(&g).Error, "delete guild")
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
