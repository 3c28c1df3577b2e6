package handler

import (
	"net/http"
	"time"

	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/response"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
}

func newUserView(u *model.User) userView {
	return userView{ID: u.DiscordID, Username: u.Username, Avatar: u.Avatar, Email: u.Email}
}

type serverView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Icon       string           `json:"icon"`
	IsAdmin    bool             `json:"isAdmin"`
	IsOwner    bool             `json:"isOwner"`
	Capability model.Capability `json:"capability"`
}

// managedServers lists the cached guilds the user may administer.
func managedServers(u *model.User) []serverView {
	out := make([]serverView, 0, len(u.Guilds))
	for _, m := range u.Guilds {
		if !m.IsAdmin() {
			continue
		}
		out = append(out, serverView{
			ID:         m.GuildID,
			Name:       m.GuildName,
			Icon:       m.GuildIcon,
			IsAdmin:    true,
			IsOwner:    m.IsOwner(),
			Capability: m.Capability,
		})
	}
	return out
}

type sessionView struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         userView     `json:"user"`
	Servers      []serverView `json:"servers"`
}

func newSessionView(r *session.Result) sessionView {
	return sessionView{
		Token:        r.Token,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		User:         newUserView(r.User),
		Servers:      managedServers(r.User),
	}
}

func GetAuthURL(svc *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		url, err := svc.AuthURL()
		if err != nil {
			serverError(c, "Failed to generate auth URL", err)
			return
		}
		response.OK(c, "Auth URL generated", gin.H{"url": url})
	}
}

// AuthCallback finishes the Discord login with the authorization code the
// frontend received.
func AuthCallback(svc *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Code string `json:"code"`
		}
		if !bindJSON(c, &input) {
			return
		}

		res, err := svc.Login(c.Request.Context(), input.Code)
		switch {
		case errors.Is(err, session.ErrInvalidCode):
			response.BadRequest(c, "Authorization code required")
			return
		case errors.Is(err, session.ErrBanned):
			response.Forbidden(c, "User is banned")
			return
		case errors.Is(err, session.ErrProvider):
			_ = c.Error(err)
			response.InternalError(c, "OAuth failed")
			return
		case err != nil:
			serverError(c, "Authentication failed", err)
			return
		}

		response.OK(c, "Authentication successful", newSessionView(res))
	}
}

func RefreshSession(svc *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			RefreshToken string `json:"refreshToken"`
		}
		if !bindJSON(c, &input) {
			return
		}
		if input.RefreshToken == "" {
			response.BadRequest(c, "Refresh token required")
			return
		}

		res, err := svc.Refresh(c.Request.Context(), input.RefreshToken)
		switch {
		case errors.Is(err, session.ErrInvalidRefreshToken):
			response.Unauthorized(c, "Invalid or expired refresh token")
			return
		case errors.Is(err, session.ErrBanned):
			response.Forbidden(c, "User is banned")
			return
		case err != nil:
			serverError(c, "Failed to refresh token", err)
			return
		}

		response.OK(c, "Token refreshed", newSessionView(res))
	}
}

func GetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := middleware.CurrentUser(c)
		response.OK(c, "User retrieved", gin.H{
			"id":          u.DiscordID,
			"username":    u.Username,
			"avatar":      u.Avatar,
			"email":       u.Email,
			"lastLogin":   u.LastLogin,
			"serverCount": len(managedServers(u)),
		})
	}
}

// GetUserGuilds serves the login snapshot; Discord is not asked again.
func GetUserGuilds() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, "User guilds retrieved", managedServers(middleware.CurrentUser(c)))
	}
}

func Logout(svc *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := middleware.CurrentUser(c)
		if err := svc.Logout(c.Request.Context(), u.DiscordID); err != nil {
			serverError(c, "Logout failed", err)
			return
		}
		response.Success(c, http.StatusOK, "Logged out successfully", nil)
	}
}
