// Package session runs the Discord login flow and maintains dashboard
// sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/discord"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"
)

var (
	ErrInvalidCode         = errors.New("authorization code is required")
	ErrProvider            = errors.New("oauth failed")
	ErrBanned              = errors.New("user is banned")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// Result is what a successful login or refresh hands back to the client.
type Result struct {
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	User         *model.User
}

type Service struct {
	users      store.Users
	provider   discord.Provider
	signer     *auth.Signer
	dir        *Directory
	refreshTTL time.Duration
	timeout    time.Duration
	now        func() time.Time
}

type Option func(*Service)

func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithProviderTimeout bounds the code exchange plus the identity fetch.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewService(users store.Users, provider discord.Provider, signer *auth.Signer, dir *Directory, opts ...Option) *Service {
	s := &Service{
		users:      users,
		provider:   provider,
		signer:     signer,
		dir:        dir,
		refreshTTL: auth.DefaultRefreshTTL,
		timeout:    discord.DefaultTimeout,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) AuthURL() (string, error) {
	state, err := auth.RandomHex(16)
	if err != nil {
		return "", err
	}
	return s.provider.AuthURL(state), nil
}

// Login exchanges code, refreshes the user's guild snapshot and issues a
// session. Nothing is written when the provider fails or the user is banned.
func (s *Service) Login(ctx context.Context, code string) (*Result, error) {
	if code == "" {
		return nil, ErrInvalidCode
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tok, err := s.provider.Exchange(pctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	profile, guilds, err := s.provider.Identity(pctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	existing, err := s.users.GetUser(ctx, profile.ID)
	switch {
	case err == nil && existing.Banned:
		return nil, ErrBanned
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	now := s.now()
	memberships, rows := discord.ManagedGuilds(profile, guilds, now)
	user := &model.User{
		DiscordID:    profile.ID,
		Username:     profile.Username,
		Avatar:       profile.Avatar,
		Email:        profile.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		LastLogin:    &now,
		Guilds:       memberships,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		user.TokenExpiry = &exp
	}
	if err := s.users.SaveLogin(ctx, user, rows); err != nil {
		return nil, err
	}
	s.dir.Invalidate(user.DiscordID)

	return s.issue(ctx, user)
}

// Refresh trades a refresh token for a new session and rotates the refresh
// token. The provider is not contacted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.GetUserBySession(ctx, auth.HashRefreshToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if user.SessionExpiresAt == nil || !s.now().Before(*user.SessionExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	if user.Banned {
		return nil, ErrBanned
	}
	return s.issue(ctx, user)
}

// Logout invalidates every outstanding token of the user.
func (s *Service) Logout(ctx context.Context, discordID string) error {
	if err := s.users.RevokeSessions(ctx, discordID); err != nil {
		return err
	}
	s.dir.Invalidate(discordID)
	return nil
}

func (s *Service) issue(ctx context.Context, user *model.User) (*Result, error) {
	plain, hash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.users.SetSession(ctx, user.DiscordID, hash, s.now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Issue(user.DiscordID, user.Username, user.TokenVersion)
	if err != nil {
		return nil, err
	}
	return &Result{
		Token:        token,
		RefreshToken: plain,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}
