package mongostore

import (
	"context"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) BanIP(ctx context.Context, b *model.BannedIP) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	_, err := s.col(colBannedIPs).ReplaceOne(ctx, bson.M{"_id": b.IPAddress}, b, options.Replace().SetUpsert(true))
	return errors.Wrap(err, "ban ip")
}

func (s *Store) UnbanIP(ctx context.Context, ip string) error {
	res, err := s.col(colBannedIPs).DeleteOne(ctx, bson.M{"_id": ip})
	if err != nil {
		return errors.Wrap(err, "unban ip")
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetBannedIP(ctx context.Context, ip string) (*model.BannedIP, error) {
	var b model.BannedIP
	if err := findOne(ctx, s.col(colBannedIPs), bson.M{"_id": ip}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBannedIPs(ctx context.Context) ([]model.BannedIP, error) {
	cur, err := s.col(colBannedIPs).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list banned ips")
	}
	bans := []model.BannedIP{}
	if err := cur.All(ctx, &bans); err != nil {
		return nil, errors.Wrap(err, "decode banned ips")
	}
	return bans, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var st model.Setting
	if err := findOne(ctx, s.col(colSettings), bson.M{"_id": key}, &st); err != nil {
		return "", err
	}
	return st.Value, nil
}

func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.col(colSettings).UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"value": value}}, upsert())
	return errors.Wrap(err, "put setting")
}
