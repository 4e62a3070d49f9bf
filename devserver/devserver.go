// Package devserver is the development backend the navigator talks to.
//
// It serves the SPA shell, static UI pages (with $include expansion and
// design tokens), file-backed lessons and an action log stored in SQLite.
// Every response is marked non-cacheable so edited pages show up on reload.
package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/viewnav/dbopen"
	"github.com/hazyhaar/viewnav/idgen"
	"github.com/hazyhaar/viewnav/shield"
)

// Config holds the settings needed to create a Server.
type Config struct {
	DB     *sql.DB
	WebDir string // holds index.html and ui/

	// Theme selects ui/tokens/colors.<theme>.json. Default: "light".
	Theme string

	// IDGen names action log rows. Default: idgen.LogID.
	IDGen idgen.Generator

	// Coin decides which side the correct lesson answer goes on.
	// Default: a fair random coin.
	Coin func() bool

	Now    func() time.Time
	Logger *slog.Logger
}

// Server is the dev backend.
type Server struct {
	db     *sql.DB
	webDir string
	uiDir  string
	theme  string
	newID  idgen.Generator
	coin   func() bool
	now    func() time.Time
	logger *slog.Logger
	policy *bluemonday.Policy
}

const schema = `
CREATE TABLE IF NOT EXISTS action_logs (
    id         TEXT PRIMARY KEY,
    event      TEXT NOT NULL,
    payload    TEXT NOT NULL DEFAULT '{}',
    ts         INTEGER NOT NULL DEFAULT 0,
    user_agent TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_logs_created ON action_logs(created_at DESC);
`

// New creates a Server and applies the action log schema.
func New(cfg Config) (*Server, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("devserver: DB is required")
	}
	if cfg.WebDir == "" {
		return nil, fmt.Errorf("devserver: web dir is required")
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := cfg.DB.Exec(stmt); err != nil {
			return nil, fmt.Errorf("devserver schema: %w", err)
		}
	}

	s := &Server{
		db:     cfg.DB,
		webDir: filepath.Clean(cfg.WebDir),
		theme:  cfg.Theme,
		newID:  cfg.IDGen,
		coin:   cfg.Coin,
		now:    cfg.Now,
		logger: cfg.Logger,
		policy: bluemonday.StrictPolicy(),
	}
	s.uiDir = filepath.Join(s.webDir, "ui")
	if s.theme == "" {
		s.theme = "light"
	}
	if s.newID == nil {
		s.newID = idgen.LogID
	}
	if s.coin == nil {
		s.coin = func() bool { return rand.IntN(2) == 0 }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Handler returns the router serving every dev backend endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/log", s.handleLogPost)
	r.Get("/log", s.handleLogList)

	r.Get("/", s.serveShell)
	r.Get("/view", s.serveShell)
	r.Get("/view/*", s.serveShell)
	for _, name := range []string{"client.js", "client.css", "favicon.ico"} {
		r.Get("/"+name, s.serveWebFile(name))
	}

	r.Get("/ui/pages/*", s.handlePage)
	r.Get("/ui/*", s.handleUIStatic)
	r.Get("/page/*", s.handlePage)
	r.Get("/home", s.handleHome)

	r.Get("/lesson/{id:[0-9]+}", s.handleLessonByID)
	r.Get("/lesson/slug/{slug}", s.handleLessonBySlug)
	r.Get("/lesson/by/{slug}", s.handleLessonBySlug)

	return r
}

// Prune deletes action log rows older than maxAge and reports how many were
// removed. A non-positive maxAge keeps everything.
func (s *Server) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-maxAge).Unix()
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM action_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("devserver: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RunRetention prunes the action log every interval until ctx is done.
func (s *Server) RunRetention(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if n, err := s.Prune(ctx, maxAge); err != nil {
			s.logger.Warn("devserver: retention", "error", err)
		} else if n > 0 {
			s.logger.Info("devserver: retention", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
