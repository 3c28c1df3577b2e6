package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"guild-dashboard/internal/api/middleware"
	"guild-dashboard/internal/api/websocket"
	"guild-dashboard/internal/audit"
	"guild-dashboard/internal/auth"
	"guild-dashboard/internal/discord"
	"guild-dashboard/internal/discord/discordtest"
	"guild-dashboard/internal/model"
	"guild-dashboard/internal/notify"
	"guild-dashboard/internal/session"
	"guild-dashboard/internal/store"
	"guild-dashboard/internal/store/sqlstore"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

const (
	masterKey = "master-key"
	botKey    = "bot-key"
)

type testEnv struct {
	h        http.Handler
	st       *sqlstore.Store
	provider *discordtest.Fake
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	st, err := sqlstore.Open(sqlstore.MemoryPath, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close(context.Background()) })

	log := zap.NewNop()
	provider := discordtest.New()
	signer := auth.NewSigner("test-secret", time.Hour)
	dir := session.NewDirectory(st, time.Minute)
	hub := websocket.NewHub(log)

	d := Deps{
		Store:     st,
		Signer:    signer,
		Directory: dir,
		Sessions:  session.NewService(st, provider, signer, dir),
		Audit:     audit.NewWriter(st, log, audit.WithPublisher(hub)),
		Hub:       hub,
		IPFilter:  middleware.NewIPFilter(st, time.Minute, log),
		Admins: middleware.Admins{
			MasterKey:  masterKey,
			DiscordIDs: []string{"op"},
		},
		BotKey:         botKey,
		Notifier:       notify.Nop{},
		AllowedOrigins: []string{"http://localhost:3000"},
		Version:        "test",
		Environment:    "development",
		Log:            log,
	}
	for _, o := range opts {
		o(&d)
	}
	h, err := NewRouter(d)
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{h: h, st: st, provider: provider}
}

type reply struct {
	Code    int             `json:"-"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (r reply) into(t *testing.T, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

type call struct {
	method  string
	path    string
	token   string
	body    interface{}
	headers map[string]string
	remote  string
}

func (e *testEnv) do(t *testing.T, c call) reply {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&body).Encode(c.body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.remote != "" {
		req.RemoteAddr = c.remote
	}

	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)

	r := reply{Code: w.Code}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
			t.Fatalf("%s %s: decode %q: %v", c.method, c.path, w.Body.String(), err)
		}
	}
	return r
}

func (e *testEnv) admin(t *testing.T, method, path string, body interface{}) reply {
	t.Helper()
	return e.do(t, call{method: method, path: path, body: body, headers: map[string]string{"X-API-Key": masterKey}})
}

type loginData struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	Servers      []struct {
		ID      string `json:"id"`
		IsOwner bool   `json:"isOwner"`
	} `json:"servers"`
}

func (e *testEnv) login(t *testing.T, code string, p discord.Profile, guilds ...discord.Guild) loginData {
	t.Helper()
	e.provider.Add(code, p, guilds...)
	r := e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/callback", body: map[string]string{"code": code}})
	if r.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", code, r.Code, r.Error)
	}
	var d loginData
	r.into(t, &d)
	return d
}

// owner logs in as the owner of g1 and g2.
func (e *testEnv) owner(t *testing.T) string {
	t.Helper()
	return e.login(t, "owner-code", discord.Profile{ID: "u-owner", Username: "owner"},
		discord.Guild{ID: "g1", Name: "Guild One", Owner: true},
		discord.Guild{ID: "g2", Name: "Guild Two", Owner: true},
	).Token
}

func TestHealthAndStatus(t *testing.T) {
	e := newTestEnv(t)

	r := e.do(t, call{method: http.MethodGet, path: "/health"})
	if r.Code != http.StatusOK {
		t.Fatalf("health = %d", r.Code)
	}

	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var status map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status["status"] != "running" || status["version"] != "test" {
		t.Errorf("status = %v", status)
	}
}

func TestUnknownRoutes(t *testing.T) {
	static := fstest.MapFS{
		"index.html":    {Data: []byte("<html>app</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	}
	e := newTestEnv(t, func(d *Deps) { d.Static = static })

	r := e.do(t, call{method: http.MethodGet, path: "/api/v1/nope"})
	if r.Code != http.StatusNotFound || r.Error != "Route /api/v1/nope not found" {
		t.Errorf("api 404 = %d %q", r.Code, r.Error)
	}

	for path, want := range map[string]string{
		"/":              "<html>app</html>",
		"/guilds/g1":     "<html>app</html>",
		"/assets/app.js": "console.log(1)",
	} {
		w := httptest.NewRecorder()
		e.h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Errorf("GET %s = %d %q", path, w.Code, w.Body.String())
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/guilds/g1/commands", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("preflight = %d %v", w.Code, w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin = %d", w.Code)
	}
}

func TestLoginKeepsManagedGuildsAndCreatesThem(t *testing.T) {
	e := newTestEnv(t)
	d := e.login(t, "code", discord.Profile{ID: "u1", Username: "alice"},
		discord.Guild{ID: "gOwn", Name: "Own", Owner: true},
		discord.Guild{ID: "gAdm", Name: "Adm", Permissions: 0x8},
		discord.Guild{ID: "gMgr", Name: "Mgr", Permissions: 0x20},
		discord.Guild{ID: "gMem", Name: "Mem", Permissions: 0x400},
	)
	if len(d.Servers) != 3 {
		t.Fatalf("servers = %+v", d.Servers)
	}
	if d.RefreshToken == "" {
		t.Error("no refresh token")
	}

	r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds", token: d.Token})
	var listed []struct{ ID string }
	r.into(t, &listed)
	if len(listed) != 3 {
		t.Errorf("GET /guilds = %s", r.Data)
	}

	r = e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/gAdm", token: d.Token})
	if r.Code != http.StatusOK {
		t.Fatalf("GET guild = %d %s", r.Code, r.Error)
	}
	var g struct {
		Prefix   string              `json:"prefix"`
		Settings model.GuildSettings `json:"settings"`
		Admins   []string            `json:"admins"`
	}
	r.into(t, &g)
	if g.Prefix != "!" || !g.Settings.LogsEnabled || g.Settings.WelcomeChannel != "general" || g.Admins == nil {
		t.Errorf("defaults = %+v", g)
	}

	if _, err := e.st.GetGuild(context.Background(), "gMem"); err != store.ErrNotFound {
		t.Errorf("member-only guild stored: %v", err)
	}

	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/callback", body: map[string]string{"code": "unknown"}})
	if r.Code != http.StatusInternalServerError || r.Error != "OAuth failed" {
		t.Errorf("bad code = %d %q", r.Code, r.Error)
	}
	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/callback", body: map[string]string{}})
	if r.Code != http.StatusBadRequest {
		t.Errorf("missing code = %d", r.Code)
	}
}

func TestGuildRoutesRejectNonAdmins(t *testing.T) {
	e := newTestEnv(t)
	e.owner(t)
	member := e.login(t, "member-code", discord.Profile{ID: "u-member", Username: "member"},
		discord.Guild{ID: "g1", Name: "Guild One", Permissions: 0x400},
	).Token

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/guilds/g1"},
		{http.MethodPut, "/api/v1/guilds/g1"},
		{http.MethodGet, "/api/v1/guilds/g1/stats"},
		{http.MethodPost, "/api/v1/guilds/g1/admins"},
		{http.MethodDelete, "/api/v1/guilds/g1/admins/u2"},
		{http.MethodGet, "/api/v1/guilds/g1/commands"},
		{http.MethodGet, "/api/v1/guilds/g1/commands/c1"},
		{http.MethodPost, "/api/v1/guilds/g1/commands"},
		{http.MethodPut, "/api/v1/guilds/g1/commands/c1"},
		{http.MethodDelete, "/api/v1/guilds/g1/commands/c1"},
		{http.MethodPost, "/api/v1/guilds/g1/commands/bulk-update"},
		{http.MethodGet, "/api/v1/guilds/g1/roles"},
		{http.MethodGet, "/api/v1/guilds/g1/roles/r1"},
		{http.MethodPut, "/api/v1/guilds/g1/roles/r1"},
		{http.MethodPut, "/api/v1/guilds/g1/roles"},
		{http.MethodGet, "/api/v1/guilds/g1/logs"},
		{http.MethodGet, "/api/v1/guilds/g1/logs/stats"},
		{http.MethodGet, "/api/v1/guilds/g1/logs/l1"},
		{http.MethodDelete, "/api/v1/guilds/g1/logs"},
		{http.MethodGet, "/ws/guilds/g1/logs?token=" + member},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			r := e.do(t, call{method: rt.method, path: rt.path, token: member, body: map[string]string{}})
			if r.Code != http.StatusForbidden || r.Success {
				t.Errorf("got %d %q", r.Code, r.Error)
			}
		})
	}

	r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g1"})
	if r.Code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d", r.Code)
	}
}

func TestOwnerOnlyRoutes(t *testing.T) {
	e := newTestEnv(t)
	owner := e.owner(t)
	adm := e.login(t, "admin-code", discord.Profile{ID: "u-admin", Username: "admin"},
		discord.Guild{ID: "g1", Name: "Guild One", Permissions: 0x8},
	).Token

	r := e.do(t, call{method: http.MethodPost, path: "/api/v1/guilds/g1/admins", token: adm, body: map[string]string{"userId": "x"}})
	if r.Code != http.StatusForbidden || r.Error != "Only guild owner can perform this action" {
		t.Errorf("admin adding admin = %d %q", r.Code, r.Error)
	}
	r = e.do(t, call{method: http.MethodDelete, path: "/api/v1/guilds/g1/logs", token: adm})
	if r.Code != http.StatusForbidden {
		t.Errorf("admin clearing logs = %d", r.Code)
	}

	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/guilds/g1/admins", token: owner, body: map[string]string{"userId": "u-admin"}})
	if r.Code != http.StatusOK {
		t.Fatalf("owner adding admin = %d %q", r.Code, r.Error)
	}
	var g struct{ Admins []string }
	r.into(t, &g)
	if len(g.Admins) != 1 || g.Admins[0] != "u-admin" {
		t.Errorf("admins = %v", g.Admins)
	}
	r = e.do(t, call{method: http.MethodDelete, path: "/api/v1/guilds/g1/admins/u-admin", token: owner})
	if r.Code != http.StatusOK {
		t.Errorf("owner removing admin = %d %q", r.Code, r.Error)
	}
}

type commandData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func TestCommandLifecycle(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	base := "/api/v1/guilds/g1/commands"

	r := e.do(t, call{method: http.MethodPost, path: base, token: tok, body: map[string]string{"name": "ping", "description": "pong"}})
	if r.Code != http.StatusCreated {
		t.Fatalf("create = %d %q", r.Code, r.Error)
	}
	var created commandData
	r.into(t, &created)
	if created.Name != "ping" || !created.Enabled {
		t.Errorf("created = %+v", created)
	}

	r = e.do(t, call{method: http.MethodGet, path: base, token: tok})
	var listed []commandData
	r.into(t, &listed)
	if len(listed) != 1 || listed[0].ID != created.ID || !listed[0].Enabled {
		t.Errorf("list = %s", r.Data)
	}

	r = e.do(t, call{method: http.MethodPost, path: base, token: tok, body: map[string]string{"name": "ping", "description": "again"}})
	if r.Code != http.StatusConflict || r.Error != "Command already exists in this guild" {
		t.Errorf("duplicate = %d %q", r.Code, r.Error)
	}

	// the same name is free in another guild
	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/guilds/g2/commands", token: tok, body: map[string]string{"name": "ping", "description": "pong"}})
	if r.Code != http.StatusCreated {
		t.Errorf("other guild = %d %q", r.Code, r.Error)
	}

	for _, bad := range []map[string]string{
		{"name": "", "description": "x"},
		{"name": "has space", "description": "x"},
		{"name": "PING", "description": "x"},
		{"name": " ping ", "description": "x"},
		{"name": strings.Repeat("a", 33), "description": "x"},
		{"name": "ok", "description": strings.Repeat("d", 1025)},
	} {
		if r := e.do(t, call{method: http.MethodPost, path: base, token: tok, body: bad}); r.Code != http.StatusBadRequest {
			t.Errorf("create %v = %d", bad, r.Code)
		}
	}
	r = e.do(t, call{method: http.MethodGet, path: base, token: tok})
	r.into(t, &listed)
	if len(listed) != 1 {
		t.Errorf("rejected names were stored: %s", r.Data)
	}

	item := base + "/" + created.ID
	r = e.do(t, call{method: http.MethodPut, path: item, token: tok, body: map[string]string{"name": "other"}})
	if r.Code != http.StatusBadRequest {
		t.Errorf("rename = %d", r.Code)
	}
	r = e.do(t, call{method: http.MethodPut, path: item, token: tok, body: map[string]interface{}{"description": "new", "enabled": false}})
	var updated commandData
	r.into(t, &updated)
	if r.Code != http.StatusOK || updated.Enabled {
		t.Errorf("update = %d %s", r.Code, r.Data)
	}

	r = e.do(t, call{method: http.MethodPost, path: base + "/bulk-update", token: tok, body: map[string]interface{}{"commandIds": []string{created.ID, "missing"}, "enabled": true}})
	var bulk struct {
		Matched  int `json:"matchedCount"`
		Modified int `json:"modifiedCount"`
	}
	r.into(t, &bulk)
	if bulk.Matched != 1 || bulk.Modified != 1 {
		t.Errorf("bulk = %s", r.Data)
	}

	r = e.do(t, call{method: http.MethodGet, path: base + "?enabled=false", token: tok})
	r.into(t, &listed)
	if len(listed) != 0 {
		t.Errorf("disabled after bulk enable = %s", r.Data)
	}

	if r := e.do(t, call{method: http.MethodDelete, path: item, token: tok}); r.Code != http.StatusOK {
		t.Errorf("delete = %d", r.Code)
	}
	if r := e.do(t, call{method: http.MethodGet, path: item, token: tok}); r.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", r.Code)
	}

	logs, _, err := e.st.QueryLogs(context.Background(), store.LogFilter{GuildID: "g1", Type: model.LogTypeCommand})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 4 {
		t.Errorf("command audit entries = %d, want 4", len(logs))
	}
}

func TestUpdateGuildIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	payload := map[string]interface{}{
		"prefix":      "?",
		"description": "friendly place",
		"settings":    map[string]interface{}{"autoModeration": true, "welcomeChannel": "lobby"},
	}

	var views [2]json.RawMessage
	for i := range views {
		r := e.do(t, call{method: http.MethodPut, path: "/api/v1/guilds/g1", token: tok, body: payload})
		if r.Code != http.StatusOK {
			t.Fatalf("update %d = %d %q", i, r.Code, r.Error)
		}
		views[i] = r.Data
	}
	if !bytes.Equal(views[0], views[1]) {
		t.Errorf("state differs:\n%s\n%s", views[0], views[1])
	}

	g, err := e.st.GetGuild(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Prefix != "?" || !g.Settings.AutoModeration || !g.Settings.LogsEnabled || g.Settings.WelcomeChannel != "lobby" {
		t.Errorf("guild = %+v", g)
	}

	logs, _, err := e.st.QueryLogs(context.Background(), store.LogFilter{GuildID: "g1", Type: model.LogTypeConfig})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Errorf("config audit entries = %d, want 2", len(logs))
	}

	for _, bad := range []map[string]interface{}{
		{"prefix": ""},
		{"prefix": "toolong"},
		{"description": strings.Repeat("x", 1001)},
		{"settings": map[string]interface{}{"unknown": true}},
		{"settings": map[string]interface{}{"logsEnabled": "yes"}},
	} {
		if r := e.do(t, call{method: http.MethodPut, path: "/api/v1/guilds/g1", token: tok, body: bad}); r.Code != http.StatusBadRequest {
			t.Errorf("update %v = %d", bad, r.Code)
		}
	}
}

func TestPermissionsComeFromLoginSnapshot(t *testing.T) {
	e := newTestEnv(t)
	p := discord.Profile{ID: "u-admin", Username: "admin"}
	tok := e.login(t, "code", p, discord.Guild{ID: "g1", Name: "Guild One", Permissions: 0x8}).Token

	// rights revoked on Discord; the dashboard does not know yet
	e.provider.Add("code", p, discord.Guild{ID: "g1", Name: "Guild One", Permissions: 0x400})
	if r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g1", token: tok}); r.Code != http.StatusOK {
		t.Fatalf("stale snapshot = %d", r.Code)
	}

	fresh := e.login(t, "code", p, discord.Guild{ID: "g1", Name: "Guild One", Permissions: 0x400}).Token
	for _, tk := range []string{tok, fresh} {
		if r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g1", token: tk}); r.Code != http.StatusForbidden {
			t.Errorf("after relogin = %d", r.Code)
		}
	}
}

func TestLogoutAndRefresh(t *testing.T) {
	e := newTestEnv(t)
	d := e.login(t, "code", discord.Profile{ID: "u1", Username: "alice"},
		discord.Guild{ID: "g1", Name: "Guild One", Owner: true})

	r := e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refreshToken": d.RefreshToken}})
	if r.Code != http.StatusOK {
		t.Fatalf("refresh = %d %q", r.Code, r.Error)
	}
	var refreshed loginData
	r.into(t, &refreshed)

	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refreshToken": d.RefreshToken}})
	if r.Code != http.StatusUnauthorized {
		t.Errorf("reused refresh token = %d", r.Code)
	}

	if r := e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/logout", token: refreshed.Token}); r.Code != http.StatusOK {
		t.Fatalf("logout = %d", r.Code)
	}
	r = e.do(t, call{method: http.MethodGet, path: "/api/v1/auth/user", token: refreshed.Token})
	if r.Code != http.StatusUnauthorized {
		t.Errorf("token after logout = %d", r.Code)
	}
}

func TestLogPagination(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 25; i++ {
		err := e.st.AppendLog(ctx, &model.Log{
			GuildID:   "g1",
			UserID:    "u-owner",
			Username:  "owner",
			Type:      model.LogTypeModeration,
			Severity:  model.SeverityInfo,
			Message:   fmt.Sprintf("entry %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	type page struct {
		Logs []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		} `json:"logs"`
		Pagination struct {
			Page  int `json:"page"`
			Limit int `json:"limit"`
			Total int `json:"total"`
			Pages int `json:"pages"`
		} `json:"pagination"`
	}
	get := func(query string) page {
		t.Helper()
		r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g1/logs" + query, token: tok})
		if r.Code != http.StatusOK {
			t.Fatalf("list %s = %d", query, r.Code)
		}
		var p page
		r.into(t, &p)
		return p
	}

	p := get("?page=2&limit=10")
	if len(p.Logs) != 10 || p.Pagination.Total != 25 || p.Pagination.Pages != 3 || p.Pagination.Page != 2 {
		t.Errorf("page 2 = %+v", p.Pagination)
	}
	if p.Logs[0].Message != "entry 14" {
		t.Errorf("page 2 starts with %q", p.Logs[0].Message)
	}

	p = get("")
	if len(p.Logs) != 20 || p.Pagination.Limit != 20 || p.Logs[0].Message != "entry 24" {
		t.Errorf("defaults = %+v first %q", p.Pagination, p.Logs[0].Message)
	}
	if p = get("?limit=500"); p.Pagination.Limit != 100 || len(p.Logs) != 25 {
		t.Errorf("limit cap = %+v", p.Pagination)
	}
	if p = get("?limit=-3&page=-1"); p.Pagination.Limit != 1 || p.Pagination.Page != 1 || len(p.Logs) != 1 {
		t.Errorf("lower bounds = %+v", p.Pagination)
	}
	if p = get("?page=9&limit=10"); len(p.Logs) != 0 || p.Pagination.Total != 25 {
		t.Errorf("past the end = %+v", p)
	}
	if p = get("?type=bogus"); p.Pagination.Total != 25 {
		t.Errorf("unknown type filter = %+v", p.Pagination)
	}
	if p = get("?type=config"); p.Pagination.Total != 0 {
		t.Errorf("type filter = %+v", p.Pagination)
	}

	first := get("?limit=1").Logs[0]
	r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g1/logs/" + first.ID, token: tok})
	if r.Code != http.StatusOK {
		t.Errorf("single log = %d", r.Code)
	}
	r = e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g2/logs/" + first.ID, token: tok})
	if r.Code != http.StatusNotFound {
		t.Errorf("log of another guild = %d", r.Code)
	}

	r = e.do(t, call{method: http.MethodDelete, path: "/api/v1/guilds/g1/logs", token: tok})
	var cleared struct {
		Deleted int `json:"deletedCount"`
	}
	r.into(t, &cleared)
	if cleared.Deleted != 25 {
		t.Errorf("cleared = %s", r.Data)
	}
}

func TestRolesFallBackToDefaults(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	base := "/api/v1/guilds/g1/roles"

	r := e.do(t, call{method: http.MethodGet, path: base, token: tok})
	var roles []struct {
		RoleID string `json:"roleId"`
	}
	r.into(t, &roles)
	if r.Code != http.StatusOK || len(roles) != 3 || roles[1].RoleID != "moderator" {
		t.Fatalf("defaults = %d %s", r.Code, r.Data)
	}

	r = e.do(t, call{method: http.MethodGet, path: base + "/custom", token: tok})
	var unsaved struct {
		ID *string `json:"id"`
	}
	r.into(t, &unsaved)
	if r.Code != http.StatusOK || unsaved.ID != nil {
		t.Errorf("unsaved role = %d %s", r.Code, r.Data)
	}

	roleID := "moderator"
	r = e.do(t, call{method: http.MethodPut, path: base + "/" + roleID, token: tok,
		body: map[string]interface{}{"permissions": map[string]bool{"bogus": true}}})
	if r.Code != http.StatusBadRequest {
		t.Errorf("bad permission = %d", r.Code)
	}
	r = e.do(t, call{method: http.MethodPut, path: base + "/" + roleID, token: tok,
		body: map[string]interface{}{"permissions": map[string]bool{"manage_commands": true}}})
	if r.Code != http.StatusOK {
		t.Fatalf("update role = %d %q", r.Code, r.Error)
	}
	saved, err := e.st.GetRole(context.Background(), "g1", roleID)
	if err != nil || !saved.Permissions.ManageCommands || saved.Permissions.BanUsers {
		t.Errorf("saved = %+v, %v", saved, err)
	}
}

func TestDeleteServerCascadesToOneGuild(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	for _, g := range []string{"g1", "g2"} {
		r := e.do(t, call{method: http.MethodPost, path: "/api/v1/guilds/" + g + "/commands", token: tok,
			body: map[string]string{"name": "ping", "description": "pong"}})
		if r.Code != http.StatusCreated {
			t.Fatalf("seed %s = %d", g, r.Code)
		}
	}

	r := e.admin(t, http.MethodDelete, "/api/v1/admin/servers/g1", map[string]string{"confirmationCode": "nope"})
	if r.Code != http.StatusBadRequest || r.Error != "Invalid confirmation code" {
		t.Errorf("wrong code = %d %q", r.Code, r.Error)
	}
	if _, err := e.st.GetGuild(context.Background(), "g1"); err != nil {
		t.Fatalf("guild gone after rejected delete: %v", err)
	}

	r = e.admin(t, http.MethodDelete, "/api/v1/admin/servers/g1", map[string]string{"confirmationCode": "DELETE_SERVER_CONFIRM"})
	if r.Code != http.StatusOK {
		t.Fatalf("delete = %d %q", r.Code, r.Error)
	}
	var res struct {
		Logs     int    `json:"deletedLogsCount"`
		Commands int    `json:"deletedCommandsCount"`
		Status   string `json:"status"`
	}
	r.into(t, &res)
	if res.Logs != 1 || res.Commands != 1 || res.Status != "deleted" {
		t.Errorf("cascade = %s", r.Data)
	}

	ctx := context.Background()
	if _, err := e.st.GetGuild(ctx, "g1"); err != store.ErrNotFound {
		t.Errorf("g1 still there: %v", err)
	}
	if n, _ := e.st.CountCommands(ctx, "g2"); n != 1 {
		t.Errorf("g2 commands = %d", n)
	}
	if n, _ := e.st.CountLogs(ctx, "g2"); n != 1 {
		t.Errorf("g2 logs = %d", n)
	}

	r = e.admin(t, http.MethodDelete, "/api/v1/admin/servers/g1", map[string]string{"confirmationCode": "DELETE_SERVER_CONFIRM"})
	if r.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", r.Code)
	}
}

func TestAdminRoutesNeedPrivilege(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)

	for _, c := range []call{
		{method: http.MethodGet, path: "/api/v1/admin/stats"},
		{method: http.MethodGet, path: "/api/v1/admin/users", token: tok},
		{method: http.MethodGet, path: "/api/v1/admin/servers", headers: map[string]string{"X-API-Key": "wrong"}},
	} {
		if r := e.do(t, c); r.Code != http.StatusUnauthorized && r.Code != http.StatusForbidden {
			t.Errorf("%s %s = %d", c.method, c.path, r.Code)
		}
	}

	r := e.admin(t, http.MethodGet, "/api/v1/admin/stats", nil)
	var st struct {
		Database store.Totals `json:"database"`
	}
	r.into(t, &st)
	if r.Code != http.StatusOK || st.Database.Servers != 2 || st.Database.Users != 1 {
		t.Errorf("stats = %d %s", r.Code, r.Data)
	}

	op := e.login(t, "op-code", discord.Profile{ID: "op", Username: "operator"}).Token
	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/admin/verify-credentials", token: op, body: map[string]string{}})
	var level struct {
		AdminLevel string `json:"adminLevel"`
	}
	r.into(t, &level)
	if r.Code != http.StatusOK || level.AdminLevel != middleware.AdminLevelDiscord {
		t.Errorf("discord admin verify = %d %s", r.Code, r.Data)
	}
	if r := e.do(t, call{method: http.MethodGet, path: "/api/v1/admin/servers", token: op}); r.Code != http.StatusOK {
		t.Errorf("discord admin listing = %d", r.Code)
	}

	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/admin/verify-credentials", body: map[string]string{"username": "x", "password": "y"}})
	if r.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials = %d", r.Code)
	}
}

func TestBanUserRevokesSessions(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)

	r := e.admin(t, http.MethodPost, "/api/v1/admin/users/u-owner/ban", map[string]string{"reason": "spam"})
	if r.Code != http.StatusBadRequest {
		t.Errorf("missing confirmation = %d", r.Code)
	}
	if r := e.do(t, call{method: http.MethodGet, path: "/api/v1/auth/user", token: tok}); r.Code != http.StatusOK {
		t.Fatalf("user before ban = %d", r.Code)
	}

	r = e.admin(t, http.MethodPost, "/api/v1/admin/users/u-owner/ban", map[string]string{"reason": "spam", "confirmationCode": "BAN_USER_CONFIRM"})
	if r.Code != http.StatusOK {
		t.Fatalf("ban = %d %q", r.Code, r.Error)
	}
	if r := e.do(t, call{method: http.MethodGet, path: "/api/v1/auth/user", token: tok}); r.Code != http.StatusUnauthorized {
		t.Errorf("old token after ban = %d", r.Code)
	}

	r = e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/callback", body: map[string]string{"code": "owner-code"}})
	if r.Code != http.StatusForbidden {
		t.Errorf("banned login = %d", r.Code)
	}
}

func TestBanIPBlocksClient(t *testing.T) {
	e := newTestEnv(t)
	const banned = "198.51.100.9"
	visit := call{method: http.MethodGet, path: "/api/status", remote: banned + ":4000"}

	if r := e.do(t, visit); r.Code != http.StatusOK {
		t.Fatalf("before ban = %d", r.Code)
	}

	for _, body := range []map[string]string{
		{"confirmationCode": "BAN_IP_CONFIRM"},
		{"ipAddress": "not-an-ip", "confirmationCode": "BAN_IP_CONFIRM"},
		{"ipAddress": banned, "confirmationCode": "BAN_IP_CONFIRM", "duration": "soon"},
		{"ipAddress": banned},
	} {
		if r := e.admin(t, http.MethodPost, "/api/v1/admin/ban-ip", body); r.Code != http.StatusBadRequest {
			t.Errorf("ban %v = %d", body, r.Code)
		}
	}

	r := e.admin(t, http.MethodPost, "/api/v1/admin/ban-ip", map[string]string{
		"ipAddress": banned, "reason": "abuse", "duration": "7d", "confirmationCode": "BAN_IP_CONFIRM",
	})
	if r.Code != http.StatusOK {
		t.Fatalf("ban = %d %q", r.Code, r.Error)
	}
	if r := e.do(t, visit); r.Code != http.StatusForbidden || r.Error != "Your IP address has been banned" {
		t.Errorf("banned client = %d %q", r.Code, r.Error)
	}

	r = e.admin(t, http.MethodGet, "/api/v1/admin/banned-ips", nil)
	var list []struct {
		IP string `json:"ipAddress"`
	}
	r.into(t, &list)
	if len(list) != 1 || list[0].IP != banned {
		t.Errorf("banned list = %s", r.Data)
	}

	if r := e.admin(t, http.MethodDelete, "/api/v1/admin/banned-ips/"+banned, nil); r.Code != http.StatusOK {
		t.Fatalf("unban = %d", r.Code)
	}
	if r := e.do(t, visit); r.Code != http.StatusOK {
		t.Errorf("after unban = %d", r.Code)
	}
	if r := e.admin(t, http.MethodDelete, "/api/v1/admin/banned-ips/"+banned, nil); r.Code != http.StatusNotFound {
		t.Errorf("second unban = %d", r.Code)
	}
}

func TestForwardedForOnlyFromTrustedProxies(t *testing.T) {
	const banned = "198.51.100.9"
	e := newTestEnv(t, func(d *Deps) { d.TrustedProxies = []string{"10.0.0.1"} })
	r := e.admin(t, http.MethodPost, "/api/v1/admin/ban-ip", map[string]string{
		"ipAddress": banned, "confirmationCode": "BAN_IP_CONFIRM",
	})
	if r.Code != http.StatusOK {
		t.Fatalf("ban = %d %q", r.Code, r.Error)
	}

	spoofed := call{method: http.MethodGet, path: "/api/status", remote: banned + ":4000",
		headers: map[string]string{"X-Forwarded-For": "203.0.113.7"}}
	if r := e.do(t, spoofed); r.Code != http.StatusForbidden {
		t.Errorf("banned client with forged header = %d", r.Code)
	}

	proxied := call{method: http.MethodGet, path: "/api/status", remote: "10.0.0.1:4000",
		headers: map[string]string{"X-Forwarded-For": banned}}
	if r := e.do(t, proxied); r.Code != http.StatusForbidden {
		t.Errorf("banned client behind trusted proxy = %d", r.Code)
	}

	limited := newTestEnv(t, func(d *Deps) {
		d.Limits.General = middleware.NewRateLimiter(1, time.Minute, "Too many requests")
	})
	for i, fwd := range []string{"203.0.113.1", "203.0.113.2"} {
		r := limited.do(t, call{method: http.MethodGet, path: "/api/status", remote: "192.0.2.50:4000",
			headers: map[string]string{"X-Forwarded-For": fwd}})
		if want := []int{http.StatusOK, http.StatusTooManyRequests}[i]; r.Code != want {
			t.Errorf("request %d = %d, want %d", i, r.Code, want)
		}
	}
}

func TestClearAllLogs(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	e.do(t, call{method: http.MethodPost, path: "/api/v1/guilds/g1/commands", token: tok, body: map[string]string{"name": "a", "description": "b"}})

	if r := e.admin(t, http.MethodDelete, "/api/v1/admin/logs/clear-all", nil); r.Code != http.StatusBadRequest {
		t.Errorf("missing confirmation = %d", r.Code)
	}
	r := e.admin(t, http.MethodDelete, "/api/v1/admin/logs/clear-all", map[string]string{"confirmationCode": "DELETE_ALL_LOGS_CONFIRM"})
	var res struct {
		Deleted int `json:"deletedCount"`
	}
	r.into(t, &res)
	if r.Code != http.StatusOK || res.Deleted != 1 {
		t.Errorf("clear all = %d %s", r.Code, r.Data)
	}
}

func TestBotIngest(t *testing.T) {
	e := newTestEnv(t)
	tok := e.owner(t)
	path := "/api/v1/bot/guilds/g1/stats"

	if r := e.do(t, call{method: http.MethodPost, path: path, body: map[string]int{"commands": 1}}); r.Code != http.StatusUnauthorized {
		t.Errorf("no key = %d", r.Code)
	}
	bot := func(path string, body interface{}) reply {
		return e.do(t, call{method: http.MethodPost, path: path, body: body, headers: map[string]string{"X-Bot-Key": botKey}})
	}
	if r := bot(path, map[string]int{"commands": -1}); r.Code != http.StatusBadRequest {
		t.Errorf("negative = %d", r.Code)
	}
	if r := bot("/api/v1/bot/guilds/nope/stats", map[string]int{"commands": 1}); r.Code != http.StatusNotFound {
		t.Errorf("unknown guild = %d", r.Code)
	}
	for i := 0; i < 2; i++ {
		if r := bot(path, map[string]int{"commands": 3, "messages": 5, "memberCount": 42}); r.Code != http.StatusOK {
			t.Fatalf("ingest = %d %q", r.Code, r.Error)
		}
	}

	r := e.do(t, call{method: http.MethodGet, path: "/api/v1/guilds/g1/stats?days=500", token: tok})
	var st struct {
		MemberCount int              `json:"memberCount"`
		Stats       model.GuildStats `json:"stats"`
		Daily       []model.DailyStat
	}
	r.into(t, &st)
	if st.Stats.TotalCommands != 6 || st.Stats.TotalMessages != 10 || st.MemberCount != 42 {
		t.Errorf("stats = %s", r.Data)
	}
	if len(st.Daily) != 1 || st.Daily[0].Commands != 6 {
		t.Errorf("daily = %+v", st.Daily)
	}
}

type reloads struct{ n int }

func (r *reloads) Reload(context.Context) error { r.n++; return nil }

func TestTelegramConfig(t *testing.T) {
	rl := &reloads{}
	e := newTestEnv(t, func(d *Deps) { d.Telegram = rl })
	path := "/api/v1/admin/config/telegram"

	if r := e.admin(t, http.MethodPut, path, map[string]string{"chat_id": "abc"}); r.Code != http.StatusBadRequest {
		t.Errorf("non numeric chat = %d", r.Code)
	}
	if r := e.admin(t, http.MethodPut, path, map[string]string{"bot_token": "123456:secret-token", "chat_id": "-100200"}); r.Code != http.StatusOK {
		t.Fatalf("update = %d %q", r.Code, r.Error)
	}
	if rl.n != 1 {
		t.Errorf("reloads = %d", rl.n)
	}

	r := e.admin(t, http.MethodGet, path, nil)
	var cfg struct {
		Token      string `json:"bot_token"`
		Configured bool   `json:"configured"`
		ChatID     string `json:"chat_id"`
	}
	r.into(t, &cfg)
	if !cfg.Configured || cfg.ChatID != "-100200" || strings.Contains(cfg.Token, "secret") || !strings.HasSuffix(cfg.Token, "oken") {
		t.Errorf("config = %+v", cfg)
	}
}

func TestAuthRateLimit(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) {
		d.Limits.Auth = middleware.NewRateLimiter(2, time.Minute, "Too many authentication attempts", middleware.SkipSuccessful())
	})
	body := map[string]string{"code": "unknown"}
	for i := 0; i < 2; i++ {
		if r := e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/callback", body: body}); r.Code != http.StatusInternalServerError {
			t.Fatalf("attempt %d = %d", i, r.Code)
		}
	}
	r := e.do(t, call{method: http.MethodPost, path: "/api/v1/auth/callback", body: body})
	if r.Code != http.StatusTooManyRequests {
		t.Errorf("third attempt = %d", r.Code)
	}
}
