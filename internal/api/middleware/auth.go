package middleware

import (
	"context"
	"strings"

	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const (
	ctxUser       = "user"
	ctxClaims     = "claims"
	ctxMembership = "membership"
	ctxAdminLevel = "adminLevel"

	HeaderAPIKey = "X-API-Key"
	HeaderBotKey = "X-Bot-Key"
)

// Admin levels reported for privileged callers.
const (
	AdminLevelDiscord    = "discord-admin"
	AdminLevelCredential = "credential-admin"
)

// UserLookup resolves the user behind a verified token, usually through the
// cached directory.
type UserLookup interface {
	Lookup(ctx context.Context, discordID string) (*model.User, error)
}

// Authenticate verifies the bearer token and attaches the user to the
// context. Guild rights are read from the cached snapshot only; Discord is
// never contacted here.
func Authenticate(signer *auth.Signer, users UserLookup) gin.HandlerFunc {
	return authenticate(signer, users, false)
}

// OptionalAuthenticate behaves like Authenticate when a token is sent and
// lets anonymous requests through otherwise.
func OptionalAuthenticate(signer *auth.Signer, users UserLookup) gin.HandlerFunc {
	return authenticate(signer, users, true)
}

func authenticate(signer *auth.Signer, users UserLookup, optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := getToken(c)
		if !ok {
			if optional {
				c.Next()
				return
			}
			response.Unauthorized(c, "Access token required")
			return
		}

		claims, err := signer.Parse(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			return
		}

		user, err := users.Lookup(c.Request.Context(), claims.UserID())
		if errors.Is(err, store.ErrNotFound) {
			response.Unauthorized(c, "User not found")
			return
		}
		if err != nil {
			response.InternalError(c, "Authentication failed")
			return
		}

		if user.TokenVersion != claims.TokenVersion {
			response.Unauthorized(c, "Session expired, please login again")
			return
		}
		if user.Banned {
			response.Forbidden(c, "User is banned")
			return
		}

		c.Set(ctxClaims, claims)
		c.Set(ctxUser, user)
		c.Next()
	}
}

// RequireGuild admits callers whose cached membership of :guildId grants at
// least the required capability.
func RequireGuild(required model.Capability) gin.HandlerFunc {
	denied := "Insufficient permissions. Admin access required"
	if required == model.CapabilityOwner {
		denied = "Only guild owner can perform this action"
	}
	return func(c *gin.Context) {
		guildID := c.Param("guildId")
		if guildID == "" {
			response.BadRequest(c, "Guild ID is required")
			return
		}

		user := CurrentUser(c)
		if user == nil {
			response.Unauthorized(c, "Access token required")
			return
		}

		m, ok := user.Membership(guildID)
		if !ok || !m.Capability.AtLeast(required) {
			response.Forbidden(c, denied)
			return
		}

		c.Set(ctxMembership, m)
		c.Next()
	}
}

// Admins identifies the operators of the whole installation.
type Admins struct {
	MasterKey  string
	DiscordIDs []string
}

func (a Admins) IsDiscordAdmin(discordID string) bool {
	if discordID == "" {
		return false
	}
	for _, id := range a.DiscordIDs {
		if id == discordID {
			return true
		}
	}
	return false
}

func (a Admins) ValidKey(key string) bool { return auth.MatchSecret(a.MasterKey, key) }

// RequirePrivileged admits the master API key or an authenticated user on
// the admin allowlist. It must run after OptionalAuthenticate.
func RequirePrivileged(admins Admins) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(HeaderAPIKey); key != "" && admins.ValidKey(key) {
			c.Set(ctxAdminLevel, AdminLevelCredential)
			c.Next()
			return
		}

		user := CurrentUser(c)
		if user == nil {
			response.Unauthorized(c, "Admin access required")
			return
		}
		if !admins.IsDiscordAdmin(user.DiscordID) {
			response.Forbidden(c, "Admin access required")
			return
		}
		c.Set(ctxAdminLevel, AdminLevelDiscord)
		c.Next()
	}
}

// RequireBotKey guards the ingest routes used by the companion bot.
func RequireBotKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.MatchSecret(key, c.GetHeader(HeaderBotKey)) {
			response.Unauthorized(c, "Invalid bot key")
			return
		}
		c.Next()
	}
}

// getToken reads the bearer header, falling back to the token query
// parameter browsers must use for websocket upgrades.
func getToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], true
		}
	}

	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

func CurrentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	cl, _ := v.(*auth.Claims)
	return cl
}

// CurrentMembership is set by RequireGuild.
func CurrentMembership(c *gin.Context) (model.GuildMembership, bool) {
	v, ok := c.Get(ctxMembership)
	if !ok {
		return model.GuildMembership{}, false
	}
	m, ok := v.(model.GuildMembership)
	return m, ok
}

// AdminLevel is set by RequirePrivileged.
func AdminLevel(c *gin.Context) string { return c.GetString(ctxAdminLevel) }
