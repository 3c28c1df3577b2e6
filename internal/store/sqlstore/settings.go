package sqlstore

import (
	"context"

	"guild-dashboard/internal/model"

	"github.com/pkg/errors"
)

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var st model.Setting
	if err := s.db.WithContext(ctx).First(&st, "key = ?", key).Error; err != nil {
		return "", notFound(err)
	}
	return st.Value, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).
		Where(model.Setting{Key: key}).
		Assign(map[string]interface{}{"value": value}).
		FirstOrCreate(&model.Setting{}).Error
	return errors.Wrap(err, "put setting")
}
