// Package discord talks to Discord's OAuth2 and REST endpoints on behalf of a
// logging-in user.
package discord

import (
	"context"
	"net/http"
	"time"

	"guild-dashboard/internal/model"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout = 10 * time.Second
	maxGuilds      = 200
)

var Scopes = []string{"identify", "email", "guilds"}

// Endpoint is Discord's OAuth2 authorization server.
var Endpoint = oauth2.Endpoint{
	AuthURL:   discordgo.EndpointOauth2 + "authorize",
	TokenURL:  discordgo.EndpointOauth2 + "token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type Profile struct {
	ID       string
	Username string
	Avatar   string
	Email    string
}

// Guild is one entry of the user's guild list as Discord reports it.
type Guild struct {
	ID          string
	Name        string
	Icon        string
	Owner       bool
	Permissions int64
}

// Provider is the identity provider seen by the login flow.
type Provider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Identity(ctx context.Context, tok *oauth2.Token) (*Profile, []Guild, error)
}

type Config struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	Timeout      time.Duration `yaml:"request_timeout"`
}

type Client struct {
	oauth *oauth2.Config
	http  *http.Client
}

var _ Provider = (*Client)(nil)

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     Endpoint,
		},
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "exchange code")
	}
	return tok, nil
}

// Identity fetches the user profile and guild list with the user's bearer token.
func (c *Client) Identity(ctx context.Context, tok *oauth2.Token) (*Profile, []Guild, error) {
	s, err := discordgo.New("Bearer " + tok.AccessToken)
	if err != nil {
		return nil, nil, errors.Wrap(err, "discord session")
	}
	s.Client = c.http

	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch user")
	}
	ugs, err := s.UserGuilds(maxGuilds, "", "", false, discordgo.WithContext(ctx))
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch guilds")
	}

	guilds := make([]Guild, 0, len(ugs))
	for _, g := range ugs {
		guilds = append(guilds, Guild{
			ID:          g.ID,
			Name:        g.Name,
			Icon:        g.Icon,
			Owner:       g.Owner,
			Permissions: g.Permissions,
		})
	}
	return &Profile{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Email: u.Email}, guilds, nil
}

// CapabilityOf maps Discord's owner flag and permission bits onto the
// dashboard capability. ok is false for plain members.
func CapabilityOf(g Guild) (c model.Capability, ok bool) {
	switch {
	case g.Owner:
		return model.CapabilityOwner, true
	case g.Permissions&discordgo.PermissionAdministrator != 0,
		g.Permissions&discordgo.PermissionManageServer != 0:
		return model.CapabilityAdmin, true
	}
	return model.CapabilityMember, false
}

// ManagedGuilds keeps the guilds the user can administer and builds both the
// membership snapshot and the guild rows to ensure.
func ManagedGuilds(p *Profile, guilds []Guild, now time.Time) ([]model.GuildMembership, []model.Guild) {
	var (
		memberships []model.GuildMembership
		rows        []model.Guild
	)
	for _, g := range guilds {
		c, ok := CapabilityOf(g)
		if !ok {
			continue
		}
		memberships = append(memberships, model.GuildMembership{
			GuildID:    g.ID,
			GuildName:  g.Name,
			GuildIcon:  g.Icon,
			Capability: c,
			AddedAt:    now,
		})
		var ownerID, ownerName string
		if c == model.CapabilityOwner {
			ownerID, ownerName = p.ID, p.Username
		}
		rows = append(rows, model.NewGuild(g.ID, g.Name, g.Icon, ownerID, ownerName, now))
	}
	return memberships, rows
}
