package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/surreal-wow/sdbeditor/internal/auth"
	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/supervisor"
)

// fakeAuth is an Authenticator with canned outcomes; no database involved.
type fakeAuth struct {
	loginToken string
	loginSess  auth.Session
	loginErr   error
	signupErr  error
	sessions   map[string]auth.Session
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (string, auth.Session, error) {
	if f.loginErr != nil {
		return "", auth.Session{}, f.loginErr
	}
	return f.loginToken, f.loginSess, nil
}

func (f *fakeAuth) Signup(ctx context.Context, username, password, email string) error {
	return f.signupErr
}

func (f *fakeAuth) Authenticate(token string) (auth.Session, bool) {
	sess, ok := f.sessions[token]
	return sess, ok
}

// newStarterFixture builds the starter API over a supervisor whose process
// patterns can never match a real command line.
func newStarterFixture(t *testing.T, fa *fakeAuth) *StarterServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Starter{
		Root: root,
		DB: config.AccountDB{
			Host: "127.0.0.1", Port: 3306,
			User: "acore", Password: "hunter2", Database: "acore_auth",
		},
		Paths: config.StarterPaths{
			LogsDir: filepath.Join(root, "logs"),
			ProcessPatterns: map[string]string{
				"auth":   "sdb-test-nomatch-auth",
				"world":  "sdb-test-nomatch-world",
				"armory": "sdb-test-nomatch-armory",
			},
		},
		Security: config.Security{AdminMinLevel: 3},
	}
	sup := supervisor.New(cfg, logging.Discard())
	return NewStarterServer(fa, sup, cfg, logging.Discard())
}

func doAuthRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStarterHealth(t *testing.T) {
	srv := newStarterFixture(t, &fakeAuth{})
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStarterConfigSanitized(t *testing.T) {
	srv := newStarterFixture(t, &fakeAuth{})
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/starter/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got config.Starter
	decodeResp(t, rec, &got)
	if got.DB.Password != "" || got.DB.User != "" {
		t.Fatalf("credentials leaked: %+v", got.DB)
	}
	if got.DB.Host != "127.0.0.1" || got.Security.AdminMinLevel != 3 {
		t.Fatalf("config = %+v", got)
	}
}

func TestLoginRoute(t *testing.T) {
	fa := &fakeAuth{
		loginToken: "tok123",
		loginSess: auth.Session{
			AccountID: 7, Username: "ADMIN", GMLevel: 3,
			ExpiresAt: time.Now().Add(auth.TokenTTL),
		},
	}
	srv := newStarterFixture(t, fa)
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/starter/login", `{"username":"admin","password":"Passw0rd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Token     string `json:"token"`
		AccountID uint32 `json:"accountId"`
		Username  string `json:"username"`
		GMLevel   int    `json:"gmLevel"`
	}
	decodeResp(t, rec, &body)
	if body.Token != "tok123" || body.AccountID != 7 || body.Username != "ADMIN" || body.GMLevel != 3 {
		t.Fatalf("body = %+v", body)
	}

	if rec := doRequest(t, h, http.MethodPost, "/api/starter/login", `{broken`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/starter/login", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}
}

func TestLoginFailureMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"bad credentials", fmt.Errorf("login: %w", auth.ErrBadCredentials), http.StatusUnauthorized, "invalid username or password"},
		{"invalid input", fmt.Errorf("%w: username", auth.ErrInvalidInput), http.StatusBadRequest, "invalid signup input"},
		{"db down", fmt.Errorf("%w: dial tcp 127.0.0.1:3306: connect refused", auth.ErrUnavailable), http.StatusForbidden, "account service unavailable"},
		{"unwrapped cause", fmt.Errorf("sql: table account missing"), http.StatusForbidden, "account service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newStarterFixture(t, &fakeAuth{loginErr: tt.err})
			rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/starter/login", `{"username":"a","password":"b"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
			var body errorBody
			decodeResp(t, rec, &body)
			if body.Error != tt.wantBody {
				t.Fatalf("error = %q, want %q", body.Error, tt.wantBody)
			}
			// Database detail stays out of the response no matter the cause.
			if strings.Contains(rec.Body.String(), "sql") || strings.Contains(rec.Body.String(), "dial") {
				t.Fatalf("cause leaked: %s", rec.Body)
			}
		})
	}
}

func TestSignupRoute(t *testing.T) {
	srv := newStarterFixture(t, &fakeAuth{})
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/starter/signup",
		`{"username":"newuser","password":"Passw0rd","email":"new@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	tests := []struct {
		err        error
		wantStatus int
	}{
		{fmt.Errorf("%w: password too short", auth.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("signup: %w", auth.ErrUsernameTaken), http.StatusConflict},
		{fmt.Errorf("signup: %w", auth.ErrEmailTaken), http.StatusConflict},
		{fmt.Errorf("%w: timeout", auth.ErrUnavailable), http.StatusForbidden},
	}
	for _, tt := range tests {
		srv := newStarterFixture(t, &fakeAuth{signupErr: tt.err})
		rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/starter/signup",
			`{"username":"newuser","password":"Passw0rd","email":"new@example.com"}`)
		if rec.Code != tt.wantStatus {
			t.Fatalf("err %v: status = %d, want %d", tt.err, rec.Code, tt.wantStatus)
		}
	}
}

func TestAdminGate(t *testing.T) {
	fa := &fakeAuth{sessions: map[string]auth.Session{
		"admintok": {AccountID: 1, Username: "BOSS", GMLevel: 3},
		"lowtok":   {AccountID: 2, Username: "PEON", GMLevel: 1},
	}}
	srv := newStarterFixture(t, fa)
	h := srv.Handler()

	if rec := doRequest(t, h, http.MethodGet, "/api/starter/servers/status", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	if rec := doAuthRequest(t, h, http.MethodGet, "/api/starter/servers/status", "expired", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token status = %d", rec.Code)
	}
	if rec := doAuthRequest(t, h, http.MethodGet, "/api/starter/servers/status", "lowtok", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("low gmlevel status = %d", rec.Code)
	}

	rec := doAuthRequest(t, h, http.MethodGet, "/api/starter/servers/status", "admintok", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Services []supervisor.ServiceStatus `json:"services"`
	}
	decodeResp(t, rec, &body)
	if len(body.Services) != 3 {
		t.Fatalf("services = %+v", body.Services)
	}
	for _, svc := range body.Services {
		if svc.Running {
			t.Fatalf("service %s reported running under a no-match pattern", svc.Name)
		}
	}
}

func TestServerActionRoutes(t *testing.T) {
	fa := &fakeAuth{sessions: map[string]auth.Session{
		"admintok": {AccountID: 1, Username: "BOSS", GMLevel: 3},
	}}
	srv := newStarterFixture(t, fa)
	h := srv.Handler()

	if rec := doAuthRequest(t, h, http.MethodPost, "/api/starter/servers/start", "admintok", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing service status = %d: %s", rec.Code, rec.Body)
	}
	if rec := doAuthRequest(t, h, http.MethodPost, "/api/starter/servers/start", "admintok", `{"service":"bogus"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown service status = %d: %s", rec.Code, rec.Body)
	}

	// No binary configured: the cause is internal and must not reach the body.
	rec := doAuthRequest(t, h, http.MethodPost, "/api/starter/servers/start", "admintok", `{"service":"auth"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured start status = %d: %s", rec.Code, rec.Body)
	}
	var body errorBody
	decodeResp(t, rec, &body)
	if body.Error != "internal error" {
		t.Fatalf("error body = %+v", body)
	}

	rec = doAuthRequest(t, h, http.MethodPost, "/api/starter/servers/stop", "admintok", `{"service":"auth"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", rec.Code, rec.Body)
	}
	var stopped struct {
		Service string `json:"service"`
		Stopped []int  `json:"stopped"`
	}
	decodeResp(t, rec, &stopped)
	if stopped.Service != "auth" || len(stopped.Stopped) != 0 {
		t.Fatalf("stop = %+v", stopped)
	}

	if rec := doAuthRequest(t, h, http.MethodGet, "/api/starter/servers/start", "admintok", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method status = %d", rec.Code)
	}
}

func TestSelfRestartRequiresAdmin(t *testing.T) {
	srv := newStarterFixture(t, &fakeAuth{})
	if rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/starter/self-restart", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
