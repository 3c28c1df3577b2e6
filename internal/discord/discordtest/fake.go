// Package discordtest provides an in-memory discord.Provider for tests.
package discordtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"guild-dashboard/internal/discord"

	"golang.org/x/oauth2"
)

// Fake answers every code with the configured identity. Users maps a code to
// the profile returned for it; Guilds maps a user id to its guild list.
type Fake struct {
	mu sync.Mutex

	Users       map[string]discord.Profile
	Guilds      map[string][]discord.Guild
	ExchangeErr error
	IdentityErr error

	exchanges int
}

func New() *Fake {
	return &Fake{
		Users:  map[string]discord.Profile{},
		Guilds: map[string][]discord.Guild{},
	}
}

// Add registers code as the login of p with the given guilds.
func (f *Fake) Add(code string, p discord.Profile, guilds ...discord.Guild) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[code] = p
	f.Guilds[p.ID] = guilds
}

func (f *Fake) Exchanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

func (f *Fake) AuthURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (f *Fake) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges++
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	if _, ok := f.Users[code]; !ok {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func (f *Fake) Identity(ctx context.Context, tok *oauth2.Token) (*discord.Profile, []discord.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.IdentityErr != nil {
		return nil, nil, f.IdentityErr
	}
	code := tok.AccessToken[len("access-"):]
	p, ok := f.Users[code]
	if !ok {
		return nil, nil, errors.New("unknown token")
	}
	return &p, f.Guilds[p.ID], nil
}
