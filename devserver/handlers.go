package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/viewnav/actionlog"
	"github.com/hazyhaar/viewnav/dbopen"
	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/horosafe"
	"github.com/hazyhaar/viewnav/shield"
)

// StoredEntry is one row of the action log.
type StoredEntry struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Payload   any    `json:"payload"`
	TS        int64  `json:"ts"`
	UserAgent string `json:"user_agent"`
	CreatedAt int64  `json:"created_at"`
}

func (s *Server) handleLogPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var e actionlog.Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(e.Event) == "" {
		e.Event = actionlog.DefaultEvent
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		jsonErr(w, "invalid payload", http.StatusBadRequest)
		return
	}

	id := s.newID()
	_, err = dbopen.Exec(r.Context(), s.db,
		`INSERT INTO action_logs (id, event, payload, ts, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, e.Event, string(payload), e.TS, r.UserAgent(), s.now().Unix(),
	)
	if err != nil {
		shield.GetLogger(r.Context()).Error("devserver: store action", "event", e.Event, "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	shield.GetLogger(r.Context()).Info("devserver: action", "id", id, "event", e.Event, "payload", string(payload))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) handleLogList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := s.listEntries(r, limit)
	if err != nil {
		shield.GetLogger(r.Context()).Error("devserver: list actions", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listEntries(r *http.Request, limit int) ([]StoredEntry, error) {
	rows, err := s.db.QueryContext(r.Context(),
		`SELECT id, event, payload, ts, user_agent, created_at
		 FROM action_logs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []StoredEntry{}
	for rows.Next() {
		var e StoredEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.Event, &payload, &e.TS, &e.UserAgent, &e.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			e.Payload = payload
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Server) serveShell(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.webDir, "index.html"))
}

func (s *Server) serveWebFile(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(s.webDir, name))
	}
}

func (s *Server) handleUIStatic(w http.ResponseWriter, r *http.Request) {
	path, err := horosafe.SafePath(s.uiDir, chi.URLParam(r, "*"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// handlePage serves ui/pages/<name>.json. A missing page is answered with a
// not-found card, not a 404, so the navigator always has something to show.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if u, err := url.PathUnescape(name); err == nil {
		name = u
	}
	name = strings.TrimSuffix(name, ".json")
	doc, err := s.page(name)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, horosafe.ErrPathTraversal) {
			shield.GetLogger(r.Context()).Warn("devserver: page", "name", name, "error", err)
		}
		doc = document.NotFoundPage(s.policy.Sanitize(name))
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) page(name string) (document.Node, error) {
	if name == "" {
		return nil, os.ErrNotExist
	}
	path, err := horosafe.SafePath(filepath.Join(s.uiDir, "pages"), name+".json")
	if err != nil {
		return nil, err
	}
	return s.renderFile(path)
}

// homePage tries ?template=<name>, then home, then home_lessons.
func (s *Server) homePage(template string) (document.Node, error) {
	candidates := []string{"home", "home_lessons"}
	if template != "" {
		candidates = append([]string{template}, candidates...)
	}
	var lastErr error
	for _, name := range candidates {
		doc, err := s.page(name)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, horosafe.ErrPathTraversal) {
			break
		}
	}
	return nil, lastErr
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	doc, err := s.homePage(r.URL.Query().Get("template"))
	if err != nil {
		shield.GetLogger(r.Context()).Warn("devserver: home page", "error", err)
		writeJSON(w, http.StatusOK, document.NotFoundPage("home"))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
