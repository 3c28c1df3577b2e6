// Package mongostore implements the store ports on MongoDB.
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
	"go.uber.org/zap"
)

const (
	colUsers      = "users"
	colGuilds     = "guilds"
	colCommands   = "commands"
	colRoles      = "roles"
	colLogs       = "logs"
	colDailyStats = "daily_stats"
	colBannedIPs  = "banned_ips"
	colSettings   = "settings"

	defaultMaxPoolSize = 100
	connectTimeout     = 10 * time.Second
)

type Config struct {
	URI         string `yaml:"uri"`
	Database    string `yaml:"database"`
	MaxPoolSize int    `yaml:"max_pool_size"`
}

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and makes sure every index exists.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "dashboard"
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = defaultMaxPoolSize
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(uint64(cfg.MaxPoolSize)).
		SetServerSelectionTimeout(connectTimeout)

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(cctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}

	s := &Store{
		client: client,
		db:     client.Database(cfg.Database),
		log:    log,
		now:    time.Now,
	}
	if err := s.ensureIndexes(cctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	log.Info("mongo connected", zap.String("database", cfg.Database))
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for col, idx := range indexModels() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return errors.Wrapf(err, "create indexes on %s", col)
		}
	}
	return nil
}

func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "sessionHash", Value: 1}}},
		},
		colCommands: {
			{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colRoles: {
			{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "roleId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colLogs: {
			{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
			{Keys: bson.D{{Key: "timestamp", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(model.LogRetention / time.Second))},
		},
		colDailyStats: {
			{Keys: bson.D{{Key: "guildId", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Totals(ctx context.Context) (*store.Totals, error) {
	var (
		t   store.Totals
		err error
	)
	if t.Servers, err = s.col(colGuilds).CountDocuments(ctx, bson.M{}); err != nil {
		return nil, errors.Wrap(err, "count guilds")
	}
	if t.Users, err = s.col(colUsers).CountDocuments(ctx, bson.M{}); err != nil {
		return nil, errors.Wrap(err, "count users")
	}
	if t.Logs, err = s.col(colLogs).CountDocuments(ctx, bson.M{}); err != nil {
		return nil, errors.Wrap(err, "count logs")
	}

	cur, err := s.col(colGuilds).Aggregate(ctx, totalsPipeline())
	if err != nil {
		return nil, errors.Wrap(err, "sum guild stats")
	}
	var sums []struct {
		Commands int64 `bson:"commands"`
		Messages int64 `bson:"messages"`
	}
	if err := cur.All(ctx, &sums); err != nil {
		return nil, errors.Wrap(err, "decode guild stats")
	}
	if len(sums) > 0 {
		t.TotalCommands = sums[0].Commands
		t.TotalMessages = sums[0].Messages
	}
	return &t, nil
}

func findOne(ctx context.Context, c *mongo.Collection, filter interface{}, out interface{}, opts ...*options.FindOneOptions) error {
	err := c.FindOne(ctx, filter, opts...).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	return err
}

func upsert() *options.UpdateOptions { return options.Update().SetUpsert(true) }

func returnAfter() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}
