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

func preloadGuilds(db *gorm.DB) *gorm.DB {
	return db.Preload("Guilds", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	})
}

func (s *Store) GetUser(ctx context.Context, discordID string) (*model.User, error) {
	var user model.User
	err := preloadGuilds(s.db.WithContext(ctx)).First(&user, "discord_id = ?", discordID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserBySession(ctx context.Context, sessionHash string) (*model.User, error) {
	if sessionHash == "" {
		return nil, store.ErrNotFound
	}
	var user model.User
	err := preloadGuilds(s.db.WithContext(ctx)).First(&user, "session_hash = ?", sessionHash).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := preloadGuilds(s.db.WithContext(ctx)).Order("created_at desc").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

// SaveLogin runs as one transaction: the user row, the membership replace and
// the guild ensures either all land or none do.
func (s *Store) SaveLogin(ctx context.Context, user *model.User, guilds []model.Guild) error {
	memberships := make([]model.GuildMembership, len(user.Guilds))
	copy(memberships, user.Guilds)

	if user.TokenVersion == 0 {
		user.TokenVersion = 1
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "discord_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "avatar", "email", "access_token", "refresh_token",
				"token_expiry", "last_login", "updated_at",
			}),
		}).Create(user).Error
		if err != nil {
			return errors.Wrap(err, "upsert user")
		}

		// Replace, never merge: stale memberships must not survive a login.
		if err := tx.Where("user_id = ?", user.DiscordID).Delete(&model.GuildMembership{}).Error; err != nil {
			return errors.Wrap(err, "clear memberships")
		}
		for i := range memberships {
			memberships[i].ID = 0
			memberships[i].UserID = user.DiscordID
		}
		if len(memberships) > 0 {
			if err := tx.Create(&memberships).Error; err != nil {
				return errors.Wrap(err, "insert memberships")
			}
		}

		for i := range guilds {
			g := guilds[i]
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "guild_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"guild_name", "guild_icon", "updated_at"}),
			}).Create(&g).Error
			if err != nil {
				return errors.Wrapf(err, "ensure guild %s", g.GuildID)
			}
		}

		return preloadGuilds(tx).First(user, "discord_id = ?", user.DiscordID).Error
	})
	return err
}

func (s *Store) SetSession(ctx context.Context, discordID, sessionHash string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("discord_id = ?", discordID).
		Updates(map[string]interface{}{
			"session_hash":       sessionHash,
			"session_expires_at": expiresAt,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "set session")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeSessions(ctx context.Context, discordID string) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("discord_id = ?", discordID).
		Updates(map[string]interface{}{
			"token_version":      gorm.Expr("token_version + 1"),
			"session_hash":       "",
			"session_expires_at": nil,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "revoke sessions")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) BanUser(ctx context.Context, discordID, reason string, at time.Time) (*model.User, error) {
	res := s.db.WithContext(ctx).Model(&model.User{}).
		Where("discord_id = ?", discordID).
		Updates(map[string]interface{}{
			"banned":             true,
			"ban_reason":         reason,
			"banned_at":          at,
			"token_version":      gorm.Expr("token_version + 1"),
			"session_hash":       "",
			"session_expires_at": nil,
		})
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "ban user")
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUser(ctx, discordID)
}
