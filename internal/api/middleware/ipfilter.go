package middleware

import (
	"time"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultBanCacheTTL = 30 * time.Second

// IPFilter rejects clients whose address is banned. Store lookups, hits and
// misses alike, are cached briefly.
type IPFilter struct {
	bans  store.Bans
	cache *cache.Cache
	log   *zap.Logger
	now   func() time.Time
}

func NewIPFilter(bans store.Bans, ttl time.Duration, log *zap.Logger) *IPFilter {
	if ttl <= 0 {
		ttl = defaultBanCacheTTL
	}
	return &IPFilter{
		bans:  bans,
		cache: cache.New(ttl, 2*ttl),
		log:   log.Named("ipfilter"),
		now:   time.Now,
	}
}

// Forget drops the cached decision for ip after a ban or unban.
func (f *IPFilter) Forget(ip string) { f.cache.Delete(ip) }

func (f *IPFilter) banned(c *gin.Context, ip string) bool {
	if v, ok := f.cache.Get(ip); ok {
		b, _ := v.(*model.BannedIP)
		return b != nil && b.Active(f.now())
	}

	b, err := f.bans.GetBannedIP(c.Request.Context(), ip)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b = nil
	case err != nil:
		// fail open; a broken store must not lock every client out
		f.log.Error("banned ip lookup failed", zap.Error(err), zap.String("ip", ip))
		return false
	}
	f.cache.SetDefault(ip, b)
	return b != nil && b.Active(f.now())
}

func (f *IPFilter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if f.banned(c, c.ClientIP()) {
			response.Forbidden(c, "Your IP address has been banned")
			return
		}
		c.Next()
	}
}
