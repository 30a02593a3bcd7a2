package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/surreal-wow/sdbeditor/internal/auth"
	"github.com/surreal-wow/sdbeditor/internal/config"
	"github.com/surreal-wow/sdbeditor/internal/logging"
	"github.com/surreal-wow/sdbeditor/internal/supervisor"
)

// Authenticator is the account surface the starter API fronts.
// *auth.Service is the production implementation.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, auth.Session, error)
	Signup(ctx context.Context, username, password, email string) error
	Authenticate(token string) (auth.Session, bool)
}

// StarterServer is the account and server-control API (default port 5000).
// Every route except login, signup, health and config requires a bearer
// token with sufficient GM level.
type StarterServer struct {
	auth Authenticator
	sup  *supervisor.Supervisor
	cfg  *config.Starter
	log  *logrus.Entry

	mux        *http.ServeMux
	handler    http.Handler
	httpServer *http.Server
}

// NewStarterServer registers the starter API routes.
func NewStarterServer(svc Authenticator, sup *supervisor.Supervisor, cfg *config.Starter, log *logrus.Entry) *StarterServer {
	if log == nil {
		log = logging.Discard()
	}
	s := &StarterServer{auth: svc, sup: sup, cfg: cfg, log: log, mux: http.NewServeMux()}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/starter/login", s.handleLogin)
	s.mux.HandleFunc("/api/starter/signup", s.handleSignup)
	s.mux.HandleFunc("/api/starter/config", s.handleConfig)
	s.mux.HandleFunc("/api/starter/servers/status", s.requireAdmin(s.handleServersStatus))
	s.mux.HandleFunc("/api/starter/servers/start", s.requireAdmin(s.handleServerAction))
	s.mux.HandleFunc("/api/starter/servers/stop", s.requireAdmin(s.handleServerAction))
	s.mux.HandleFunc("/api/starter/servers/restart", s.requireAdmin(s.handleServerAction))
	s.mux.HandleFunc("/api/starter/self-restart", s.requireAdmin(s.handleSelfRestart))

	s.handler = requestLog(log, s.mux)
	return s
}

// Start serves the API on addr, blocking until shutdown.
func (s *StarterServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *StarterServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers and tests.
func (s *StarterServer) Handler() http.Handler {
	return s.handler
}

func (s *StarterServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerToken extracts the Authorization bearer value.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	return tok, tok != ""
}

// requireAdmin gates a handler on a valid session at or above the configured
// GM level.
func (s *StarterServer) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token", "")
			return
		}
		sess, ok := s.auth.Authenticate(tok)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token", "")
			return
		}
		if sess.GMLevel < s.cfg.Security.AdminMinLevel {
			writeError(w, http.StatusForbidden, "insufficient privileges", "")
			return
		}
		next(w, r)
	}
}

// writeAuthFailure maps auth errors. Anything outside the explicit sentinels
// is answered with the generic 403: database trouble must read the same as
// a policy denial from outside.
func (s *StarterServer) writeAuthFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, http.StatusUnauthorized, auth.ErrBadCredentials.Error(), "")
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, auth.ErrUsernameTaken.Error(), "")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, auth.ErrEmailTaken.Error(), "")
	default:
		s.log.WithError(err).Error("auth request failed")
		writeError(w, http.StatusForbidden, auth.ErrUnavailable.Error(), "")
	}
}

// loginResponse flattens the session alongside its token.
type loginResponse struct {
	Token string `json:"token"`
	auth.Session
}

func (s *StarterServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	token, sess, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeAuthFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Session: sess})
}

func (s *StarterServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if err := s.auth.Signup(r.Context(), req.Username, req.Password, req.Email); err != nil {
		s.writeAuthFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "account created"})
}

func (s *StarterServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Sanitized())
}

func (s *StarterServer) handleServersStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use GET", "")
		return
	}
	statuses, err := s.sup.StatusAll()
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": statuses})
}

// handleServerAction covers start, stop and restart; the action is the last
// path segment and the service comes from the body.
func (s *StarterServer) handleServerAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	action := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	var req struct {
		Service string `json:"service"`
	}
	if err := decodeBody(r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "missing service", `body must name a service, e.g. {"service":"auth"}`)
		return
	}

	switch action {
	case "start":
		pid, err := s.sup.Start(req.Service)
		if err != nil {
			writeFailure(s.log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": req.Service, "pid": pid})
	case "stop":
		stopped, err := s.sup.Stop(req.Service)
		if err != nil {
			writeFailure(s.log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": req.Service, "stopped": stopped})
	case "restart":
		pid, err := s.sup.Restart(req.Service)
		if err != nil {
			writeFailure(s.log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"service": req.Service, "pid": pid})
	default:
		writeError(w, http.StatusNotFound, "unknown server action", action)
	}
}

func (s *StarterServer) handleSelfRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed: use POST", "")
		return
	}
	pid, err := s.sup.SelfRestart()
	if err != nil {
		writeFailure(s.log, w, err)
		return
	}
	s.log.WithField("pid", pid).Info("self-restart initiated")
	writeJSON(w, http.StatusOK, map[string]any{"status": "restarting", "pid": pid})
}
