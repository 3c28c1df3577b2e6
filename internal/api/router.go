// Package api assembles the HTTP surface of the dashboard.
package api

import (
	"io/fs"
	"net/http"
	"strings"

	"guild-dashboard/internal/api/handler"
	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/websocket"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/notify"
	"guild-dashboard/internal/session"
	"guild-dashboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Limits are the rate limiters of the router. A nil limiter is disabled.
type Limits struct {
	General *middleware.RateLimiter
	Auth    *middleware.RateLimiter
	Create  *middleware.RateLimiter
}

// Deps is everything the routes need. Static and Telegram may be nil.
type Deps struct {
	Store     store.Store
	Signer    *auth.Signer
	Directory *session.Directory
	Sessions  *session.Service
	Audit     audit.Recorder
	Hub       *websocket.Hub
	IPFilter  *middleware.IPFilter
	Limits    Limits

	Admins      middleware.Admins
	Credentials []auth.Credential
	BotKey      string
	Notifier    notify.Notifier
	Telegram    handler.Reloader

	AllowedOrigins []string
	TrustedProxies []string
	Version        string
	Environment    string
	Static         fs.FS
	Log            *zap.Logger
}

// NewRouter wires every route. Requests under /api and /ws get JSON answers;
// anything else is handed to the dashboard bundle.
func NewRouter(d Deps) (http.Handler, error) {
	cors := middleware.CORS(d.AllowedOrigins)

	r := gin.New()
	// ip bans and rate limits key on ClientIP
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, errors.Wrap(err, "trusted proxies")
	}
	r.Use(
		middleware.Recovery(d.Log),
		middleware.RequestLogger(d.Log),
		// global so preflights of unrouted methods still get headers
		func(c *gin.Context) {
			if isAPIPath(c.Request.URL.Path) {
				cors(c)
				return
			}
			c.Next()
		},
		d.IPFilter.Handler(),
		d.Limits.General.Handler(),
	)

	r.GET("/health", handler.Health())

	authn := middleware.Authenticate(d.Signer, d.Directory)
	isAdmin := middleware.RequireGuild(model.CapabilityAdmin)
	isOwner := middleware.RequireGuild(model.CapabilityOwner)

	apiGroup := r.Group("/api")
	apiGroup.GET("/status", handler.Status(d.Version, d.Environment))

	v1 := apiGroup.Group("/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.GET("/url", handler.GetAuthURL(d.Sessions))
		authGroup.POST("/callback", d.Limits.Auth.Handler(), handler.AuthCallback(d.Sessions))
		authGroup.POST("/refresh", d.Limits.Auth.Handler(), handler.RefreshSession(d.Sessions))
		authGroup.GET("/user", authn, handler.GetCurrentUser())
		authGroup.GET("/guilds", authn, handler.GetUserGuilds())
		authGroup.POST("/logout", authn, handler.Logout(d.Sessions))
	}

	guilds := v1.Group("/guilds", authn)
	{
		guilds.GET("", handler.GetUserGuilds())

		guild := guilds.Group("/:guildId")
		guild.GET("", isAdmin, handler.GetGuild(d.Store))
		guild.PUT("", isAdmin, handler.UpdateGuild(d.Store, d.Audit))
		guild.GET("/stats", isAdmin, handler.GetGuildStats(d.Store, d.Store, d.Store))
		guild.POST("/admins", isOwner, handler.AddGuildAdmin(d.Store, d.Audit))
		guild.DELETE("/admins/:userId", isOwner, handler.RemoveGuildAdmin(d.Store, d.Audit))

		commands := guild.Group("/commands", isAdmin)
		commands.GET("", handler.ListCommands(d.Store))
		commands.GET("/:commandId", handler.GetCommand(d.Store))
		commands.POST("", d.Limits.Create.Handler(), handler.CreateCommand(d.Store, d.Audit))
		commands.PUT("/:commandId", handler.UpdateCommand(d.Store, d.Audit))
		commands.DELETE("/:commandId", handler.DeleteCommand(d.Store, d.Audit))
		commands.POST("/bulk-update", handler.BulkUpdateCommands(d.Store, d.Audit))

		roles := guild.Group("/roles", isAdmin)
		roles.GET("", handler.ListRoles(d.Store))
		roles.GET("/:roleId", handler.GetRole(d.Store))
		roles.PUT("/:roleId", handler.UpdateRolePermissions(d.Store, d.Audit))
		roles.PUT("", handler.UpdateMultipleRoles(d.Store, d.Audit))

		logs := guild.Group("/logs")
		logs.GET("", isAdmin, handler.ListLogs(d.Store))
		logs.GET("/stats", isAdmin, handler.GetLogStats(d.Store))
		logs.GET("/:logId", isAdmin, handler.GetLog(d.Store))
		logs.DELETE("", isOwner, handler.ClearGuildLogs(d.Store, d.Audit))
	}

	adm := handler.Admin{Log: d.Log.Named("admin"), Notifier: d.Notifier}
	admin := v1.Group("/admin", middleware.OptionalAuthenticate(d.Signer, d.Directory))
	{
		admin.POST("/verify-credentials", d.Limits.Auth.Handler(), handler.VerifyAdminCredentials(d.Admins, d.Credentials))

		priv := admin.Group("", middleware.RequirePrivileged(d.Admins))
		priv.GET("/stats", handler.GetDatabaseStats(d.Store))
		priv.GET("/servers", handler.ListAllServers(d.Store))
		priv.GET("/users", handler.ListAllUsers(d.Store))
		priv.DELETE("/servers/:guildId", adm.DeleteServer(d.Store))
		priv.POST("/users/:userId/ban", adm.BanUser(d.Store, d.Directory))
		priv.POST("/ban-ip", adm.BanIP(d.Store, d.IPFilter))
		priv.GET("/banned-ips", handler.ListBannedIPs(d.Store))
		priv.DELETE("/banned-ips/:ip", adm.UnbanIP(d.Store, d.IPFilter))
		priv.DELETE("/logs/clear-all", adm.ClearAllLogs(d.Store))
		priv.GET("/config/telegram", handler.GetTelegramConfig(d.Store))
		priv.PUT("/config/telegram", handler.UpdateTelegramConfig(d.Store, d.Telegram))
	}

	bot := v1.Group("/bot", middleware.RequireBotKey(d.BotKey))
	bot.POST("/guilds/:guildId/stats", handler.IngestGuildStats(d.Store))

	ws := r.Group("/ws", authn)
	ws.GET("/guilds/:guildId/logs", isAdmin, websocket.LogStream(d.Hub, d.AllowedOrigins, d.Log.Named("ws")))

	notFound := handler.NotFound()
	spa := SPA(d.Static)
	r.NoRoute(func(c *gin.Context) {
		if isAPIPath(c.Request.URL.Path) || isWSPath(c.Request.URL.Path) {
			notFound(c)
			return
		}
		spa(c)
	})

	return r, nil
}

func isAPIPath(p string) bool { return p == "/api" || strings.HasPrefix(p, "/api/") }

func isWSPath(p string) bool { return p == "/ws" || strings.HasPrefix(p, "/ws/") }
