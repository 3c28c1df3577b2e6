package session

import (
	"context"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/patrickmn/go-cache"
)

const (
	userCacheKeyPrefix  = "user_"
	DefaultDirectoryTTL = 30 * time.Second
	directoryCleanup    = time.Minute
)

// Directory is a read-through cache of users in front of the store. Entries
// are dropped explicitly on login, logout and ban; the TTL bounds staleness
// for everything else.
type Directory struct {
	users store.Users
	cache *cache.Cache
	ttl   time.Duration
}

func NewDirectory(users store.Users, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &Directory{
		users: users,
		cache: cache.New(ttl, directoryCleanup),
		ttl:   ttl,
	}
}

func (d *Directory) Lookup(ctx context.Context, discordID string) (*model.User, error) {
	key := userCacheKeyPrefix + discordID
	if cached, found := d.cache.Get(key); found {
		return cached.(*model.User), nil
	}
	u, err := d.users.GetUser(ctx, discordID)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, u, d.ttl)
	return u, nil
}

func (d *Directory) Invalidate(discordID string) {
	d.cache.Delete(userCacheKeyPrefix + discordID)
}
