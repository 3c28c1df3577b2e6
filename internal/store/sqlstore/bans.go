package sqlstore

import (
	"context"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

func (s *Store) BanIP(ctx context.Context, b *model.BannedIP) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(b).Error
	return errors.Wrap(err, "ban ip")
}

func (s *Store) UnbanIP(ctx context.Context, ip string) error {
	res := s.db.WithContext(ctx).Where("ip_address = ?", ip).Delete(&model.BannedIP{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "unban ip")
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetBannedIP(ctx context.Context, ip string) (*model.BannedIP, error) {
	var b model.BannedIP
	if err := s.db.WithContext(ctx).First(&b, "ip_address = ?", ip).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) ListBannedIPs(ctx context.Context) ([]model.BannedIP, error) {
	var bans []model.BannedIP
	err := s.db.WithContext(ctx).Order("created_at desc").Find(&bans).Error
	return bans, errors.Wrap(err, "list banned ips")
}
