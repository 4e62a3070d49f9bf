package devserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/viewnav/dbopen"
	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/idgen"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const lessonTemplate = `{"card":{"log_id":"lesson","variables":[{"name":"total","type":"number","value":0}],
"states":[{"state_id":0,"div":{"type":"container","items":[
  {"type":"container","id":"progress_bar"},
  {"type":"text","id":"word_term","text":""},
  {"type":"image","id":"word_image","image_url":""},
  {"type":"container","id":"choice_left","action":{"log_id":"stale"},"items":[{"type":"text","id":"choice_left_text","text":""}]},
  {"type":"container","id":"choice_right","action":{"log_id":"stale"},"items":[{"type":"text","id":"choice_right_text","text":""}]}
]}}]}}`

func newWebDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<html>shell</html>")
	writeFile(t, dir, "ui/tokens/colors.light.json", `{"colors":{"title":"#111111"}}`)
	writeFile(t, dir, "ui/components/header.json", `{"type":"text","text":"Hello","text_color":"@colors.title"}`)
	writeFile(t, dir, "ui/pages/home.json",
		`{"card":{"log_id":"home","states":[{"state_id":0,"div":{"$include":"components/header.json"}}]}}`)
	writeFile(t, dir, "ui/pages/missing_part.json", `{"items":[{"$include":"components/nope.json"}]}`)
	writeFile(t, dir, "ui/pages/escape.json", `{"$include":"../../index.json"}`)
	writeFile(t, dir, "index.json", `{"secret":true}`)
	writeFile(t, dir, "ui/pages/lesson.json", lessonTemplate)
	writeFile(t, dir, "ui/lessons/7.json", `{"title":"Fruit","words":[
		{"term":"apple","image_url":"/img/apple.png","translation":"pomme","distractor1":"poire"},
		{"term":"pear","translation":"poire","distractor1":"pomme"}]}`)
	writeFile(t, dir, "ui/lessons/intro.json", `{"words":[{"term":"hi","translation":"salut","distractor1":"non"},{"term":"bye"}]}`)
	writeFile(t, dir, "ui/lessons/empty.json", `{"words":[]}`)
	return dir
}

func newTestServer(t *testing.T, webDir string) http.Handler {
	t.Helper()
	s, err := New(Config{
		DB:     dbopen.OpenMemory(t),
		WebDir: webDir,
		IDGen:  idgen.Sequence("log_"),
		Coin:   func() bool { return true },
		Now:    func() time.Time { return time.Unix(1700000000, 0) },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDoc(t *testing.T, rec *httptest.ResponseRecorder) document.Node {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body: %s", rec.Code, rec.Body.String())
	}
	doc, err := document.Decode(rec.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func nodeByID(t *testing.T, doc document.Node, id string) map[string]any {
	t.Helper()
	m, ok := document.Find(doc, hasID(id))
	if !ok {
		t.Fatalf("node %q not found", id)
	}
	return m
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{WebDir: "x"}); err == nil || !strings.Contains(err.Error(), "DB is required") {
		t.Fatalf("err = %v", err)
	}
	if _, err := New(Config{DB: dbopen.OpenMemory(t)}); err == nil {
		t.Fatal("expected error for empty web dir")
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestNoCacheHeaders(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	rec := do(t, h, http.MethodGet, "/page/home", "")
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("Cache-Control = %q", cc)
	}
	if rec.Header().Get("Pragma") != "no-cache" {
		t.Fatalf("Pragma = %q", rec.Header().Get("Pragma"))
	}
}

func TestLogPostAndList(t *testing.T) {
	h := newTestServer(t, newWebDir(t))

	rec := do(t, h, http.MethodPost, "/log", `{"event":"go_home","payload":{"a":1},"ts":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("post: %d %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["ok"] != true || resp["id"] != "log_1" {
		t.Fatalf("post resp = %v", resp)
	}

	if rec := do(t, h, http.MethodPost, "/log", `{}`); rec.Code != http.StatusOK {
		t.Fatalf("post empty: %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/log", "")
	var entries []StoredEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	want := []StoredEntry{
		{ID: "log_2", Event: "click", Payload: map[string]any{}, UserAgent: "", CreatedAt: 1700000000},
		{ID: "log_1", Event: "go_home", Payload: map[string]any{"a": 1.0}, TS: 42, CreatedAt: 1700000000},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}

	rec = do(t, h, http.MethodGet, "/log?limit=1", "")
	entries = nil
	json.NewDecoder(rec.Body).Decode(&entries)
	if len(entries) != 1 {
		t.Fatalf("limit=1 returned %d entries", len(entries))
	}
}

func TestLogPost_InvalidBody(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	rec := do(t, h, http.MethodPost, "/log", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPage_IncludesAndTokens(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	want := map[string]any{
		"card": map[string]any{
			"log_id": "home",
			"states": []any{
				map[string]any{
					"state_id": 0.0,
					"div":      map[string]any{"type": "text", "text": "Hello", "text_color": "#111111"},
				},
			},
		},
	}
	for _, target := range []string{"/page/home", "/page/home.json", "/ui/pages/home.json", "/home"} {
		doc := decodeDoc(t, do(t, h, http.MethodGet, target, ""))
		if diff := cmp.Diff(want, doc); diff != "" {
			t.Errorf("%s (-want +got):\n%s", target, diff)
		}
	}
}

func TestPage_MissingInclude(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	doc := decodeDoc(t, do(t, h, http.MethodGet, "/page/missing_part", ""))
	text, ok := document.Find(doc, func(m map[string]any) bool { return m["type"] == "text" })
	if !ok || text["text"] != "component not found: components/nope.json" {
		t.Fatalf("placeholder = %v", text)
	}
}

func TestPage_NotFound(t *testing.T) {
	h := newTestServer(t, newWebDir(t))

	tests := []struct {
		target string
		name   string
	}{
		{"/page/nope", "nope"},
		{"/ui/pages/nope.json", "nope"},
		{"/page/%3Cb%3Ex%3C%2Fb%3E", "x"},
		{"/page/escape", "escape"},
	}
	for _, tt := range tests {
		doc := decodeDoc(t, do(t, h, http.MethodGet, tt.target, ""))
		if diff := cmp.Diff(document.NotFoundPage(tt.name), doc); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tt.target, diff)
		}
	}
}

func TestHome_Fallbacks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ui/pages/home_lessons.json", `{"card":{"log_id":"home_lessons"}}`)
	writeFile(t, dir, "ui/pages/alt.json", `{"card":{"log_id":"alt"}}`)
	h := newTestServer(t, dir)

	doc := decodeDoc(t, do(t, h, http.MethodGet, "/home", ""))
	if nodeLogID(doc) != "home_lessons" {
		t.Fatalf("fallback home = %v", doc)
	}
	doc = decodeDoc(t, do(t, h, http.MethodGet, "/home?template=alt", ""))
	if nodeLogID(doc) != "alt" {
		t.Fatalf("template home = %v", doc)
	}

	empty := newTestServer(t, t.TempDir())
	doc = decodeDoc(t, do(t, empty, http.MethodGet, "/home", ""))
	if diff := cmp.Diff(document.NotFoundPage("home"), doc); diff != "" {
		t.Fatalf("no home (-want +got):\n%s", diff)
	}
}

func nodeLogID(doc document.Node) any {
	m, _ := doc.(map[string]any)
	card, _ := m["card"].(map[string]any)
	return card["log_id"]
}

func TestShellAndStatic(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	for _, target := range []string{"/", "/view", "/view/lesson/3", "/view/home"} {
		rec := do(t, h, http.MethodGet, target, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "shell") {
			t.Errorf("%s: %d %q", target, rec.Code, rec.Body.String())
		}
	}

	rec := do(t, h, http.MethodGet, "/ui/components/header.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "@colors.title") {
		t.Fatalf("static: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/ui/missing.png", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing static: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/ui/components", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("directory listing: %d", rec.Code)
	}
}

func TestLesson_Step(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	doc := decodeDoc(t, do(t, h, http.MethodGet, "/lesson/7?i=0", ""))

	if got := nodeByID(t, doc, "word_term")["text"]; got != "apple" {
		t.Errorf("word_term = %v", got)
	}
	if got := nodeByID(t, doc, "word_image")["image_url"]; got != "/img/apple.png" {
		t.Errorf("image_url = %v", got)
	}
	if got := nodeByID(t, doc, "choice_left_text")["text"]; got != "pomme" {
		t.Errorf("left text = %v", got)
	}
	if got := nodeByID(t, doc, "choice_right_text")["text"]; got != "poire" {
		t.Errorf("right text = %v", got)
	}
	wantAction := map[string]any{"log_id": "next_word", "url": "/view/lesson/7?i=1"}
	if diff := cmp.Diff(wantAction, nodeByID(t, doc, "choice_left")["action"]); diff != "" {
		t.Errorf("left action (-want +got):\n%s", diff)
	}
	if _, ok := nodeByID(t, doc, "choice_right")["action"]; ok {
		t.Error("wrong answer must not carry an action")
	}
	if got := nodeByID(t, doc, "progress_done")["weight"]; got != 1.0 {
		t.Errorf("progress_done weight = %v", got)
	}

	card := doc.(map[string]any)["card"].(map[string]any)
	wantVars := []any{
		map[string]any{"name": "total", "type": "number", "value": 2.0},
		map[string]any{"name": "correct", "type": "number", "value": 1.0},
		map[string]any{"name": "done", "type": "number", "value": 1.0},
		map[string]any{"name": "rest", "type": "number", "value": 1.0},
	}
	if diff := cmp.Diff(wantVars, card["variables"]); diff != "" {
		t.Errorf("variables (-want +got):\n%s", diff)
	}
}

func TestLesson_LastStepLinksHome(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	doc := decodeDoc(t, do(t, h, http.MethodGet, "/lesson/7?i=1", ""))
	if got := nodeByID(t, doc, "choice_left")["action"].(map[string]any)["url"]; got != "/view/home" {
		t.Fatalf("last step url = %v", got)
	}
	if got := nodeByID(t, doc, "word_image")["image_url"]; got != fallbackImage {
		t.Fatalf("missing image = %v", got)
	}
}

func TestLesson_Edges(t *testing.T) {
	h := newTestServer(t, newWebDir(t))

	// Past the end: home page.
	doc := decodeDoc(t, do(t, h, http.MethodGet, "/lesson/7?i=5", ""))
	if nodeLogID(doc) != "home" {
		t.Errorf("past end = %v", nodeLogID(doc))
	}
	// Invalid index: first step.
	doc = decodeDoc(t, do(t, h, http.MethodGet, "/lesson/7?i=x", ""))
	if got := nodeByID(t, doc, "word_term")["text"]; got != "apple" {
		t.Errorf("invalid index word = %v", got)
	}
	// Unknown or empty lesson: bare template.
	for _, target := range []string{"/lesson/99", "/lesson/by/empty"} {
		doc = decodeDoc(t, do(t, h, http.MethodGet, target, ""))
		if got := nodeByID(t, doc, "word_term")["text"]; got != "" {
			t.Errorf("%s: word_term = %v", target, got)
		}
	}
}

func TestLesson_BySlug(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	for _, target := range []string{"/lesson/by/intro", "/lesson/slug/intro"} {
		doc := decodeDoc(t, do(t, h, http.MethodGet, target, ""))
		if got := nodeByID(t, doc, "choice_left")["action"].(map[string]any)["url"]; got != "/view/lesson/slug/intro?i=1" {
			t.Errorf("%s: next = %v", target, got)
		}
	}
}

func TestLesson_NoTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ui/pages/home.json", `{"card":{"log_id":"home"}}`)
	h := newTestServer(t, dir)
	doc := decodeDoc(t, do(t, h, http.MethodGet, "/lesson/1", ""))
	if nodeLogID(doc) != "home" {
		t.Fatalf("no template = %v", doc)
	}
}

func TestPrune(t *testing.T) {
	db := dbopen.OpenMemory(t)
	now := time.Unix(1700000000, 0)
	s, err := New(Config{
		DB:     db,
		WebDir: t.TempDir(),
		Now:    func() time.Time { return now },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, age := range []time.Duration{0, time.Hour, 48 * time.Hour} {
		_, err := db.Exec(`INSERT INTO action_logs (id, event, created_at) VALUES (?, 'click', ?)`,
			"log_"+strconv.Itoa(i), now.Add(-age).Unix())
		if err != nil {
			t.Fatal(err)
		}
	}

	if n, err := s.Prune(context.Background(), 0); err != nil || n != 0 {
		t.Fatalf("Prune(0) = %d, %v", n, err)
	}
	n, err := s.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("deleted %d rows, want 1", n)
	}
	var left int
	db.QueryRow(`SELECT COUNT(*) FROM action_logs`).Scan(&left)
	if left != 2 {
		t.Fatalf("%d rows left, want 2", left)
	}
}

func TestSecurityStack(t *testing.T) {
	h := newTestServer(t, newWebDir(t))
	rec := do(t, h, http.MethodHead, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("HEAD /health = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing: %v", rec.Header())
	}
}
