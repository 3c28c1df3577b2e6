package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"guild-dashboard/internal/model"
	"guild-dashboard/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runs against a live server only when DASHBOARD_TEST_MONGO_URI is set.
func openLive(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("DASHBOARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DASHBOARD_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{URI: uri, Database: "dashboard_test_" + uuid.NewString()[:8]}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close(context.Background())
	})
	return s
}

func TestLiveLoginAndCommands(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()

	g := model.NewGuild("g1", "One", "", "u1", "alice", time.Now())
	u := &model.User{DiscordID: "u1", Username: "alice", Guilds: []model.GuildMembership{
		{GuildID: "g1", GuildName: "One", Capability: model.CapabilityOwner},
	}}
	if err := s.SaveLogin(ctx, u, []model.Guild{g}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.TokenVersion != 1 {
		t.Errorf("token version = %d", u.TokenVersion)
	}
	if err := s.RevokeSessions(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveLogin(ctx, &model.User{DiscordID: "u1", Username: "alice"}, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetUser(ctx, "u1")
	if got.TokenVersion != 2 || len(got.Guilds) != 0 {
		t.Errorf("user after relogin = %+v", got)
	}

	cmd := &model.Command{GuildID: "g1", Name: "ping", CreatedBy: "u1"}
	if err := s.CreateCommand(ctx, cmd); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCommand(ctx, &model.Command{GuildID: "g1", Name: "ping", CreatedBy: "u1"}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate: %v", err)
	}

	res, err := s.DeleteGuild(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Commands != 1 {
		t.Errorf("cascade = %+v", res)
	}
}
