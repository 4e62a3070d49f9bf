package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/horosafe"
	"github.com/hazyhaar/viewnav/route"
	"github.com/hazyhaar/viewnav/shield"
)

// maxLessonWords caps how many words of a lesson are played.
const maxLessonWords = 10

const fallbackImage = "https://dummyimage.com/600x600/eeeeee/aaaaaa.png?text=img"

// Word is one step of a lesson.
type Word struct {
	Term        string `json:"term"`
	ImageURL    string `json:"image_url"`
	Translation string `json:"translation"`
	Distractor  string `json:"distractor1"`
}

// Lesson is the content of ui/lessons/<key>.json.
type Lesson struct {
	Title string `json:"title"`
	Words []Word `json:"words"`
}

func (s *Server) handleLessonByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.serveLesson(w, r, id, func(i int) string {
		return route.Step{ID: id, Index: i}.ViewPath()
	})
}

func (s *Server) handleLessonBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if u, err := url.PathUnescape(slug); err == nil {
		slug = u
	}
	s.serveLesson(w, r, slug, func(i int) string {
		return route.Step{Slug: slug, Index: i}.ViewPath()
	})
}

// serveLesson renders step ?i= of lesson key into the lesson template.
// Without a template the home page is served; a lesson with no words gets
// the bare template; a step past the end goes back to the home page.
func (s *Server) serveLesson(w http.ResponseWriter, r *http.Request, key string, stepView func(int) string) {
	step, err := strconv.Atoi(r.URL.Query().Get("i"))
	if err != nil || step < 0 {
		step = 0
	}
	log := shield.GetLogger(r.Context()).With("lesson", key, "step", step)

	card, err := s.page("lesson")
	if err != nil {
		log.Warn("devserver: lesson template", "error", err)
		s.handleHome(w, r)
		return
	}

	lesson, err := s.loadLesson(key)
	if err != nil {
		log.Warn("devserver: lesson content", "error", err)
		writeJSON(w, http.StatusOK, card)
		return
	}
	words := lesson.Words
	if len(words) > maxLessonWords {
		words = words[:maxLessonWords]
	}
	if len(words) == 0 {
		writeJSON(w, http.StatusOK, card)
		return
	}
	if step >= len(words) {
		s.handleHome(w, r)
		return
	}

	next := route.HomeView
	if step+1 < len(words) {
		next = stepView(step + 1)
	}
	s.fillStep(card, words[step], next)
	s.setProgress(card, step+1, len(words))
	log.Debug("devserver: lesson step", "total", len(words))
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) loadLesson(key string) (*Lesson, error) {
	path, err := horosafe.SafePath(filepath.Join(s.uiDir, "lessons"), key+".json")
	if err != nil {
		return nil, err
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var l Lesson
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("devserver: lesson %s: %w", key, err)
	}
	return &l, nil
}

// fillStep writes word into the template. The correct answer lands on a
// random side; only that side carries the action to next.
func (s *Server) fillStep(card document.Node, word Word, next string) {
	image := strings.TrimSpace(word.ImageURL)
	if image == "" {
		image = fallbackImage
	}
	correct := strings.TrimSpace(word.Translation)
	wrong := strings.TrimSpace(word.Distractor)

	left, right := correct, wrong
	var leftAction, rightAction any = nextAction(next), nil
	if !s.coin() {
		left, right = wrong, correct
		leftAction, rightAction = nil, nextAction(next)
	}

	patchByID(card, "word_term", map[string]any{"text": strings.TrimSpace(word.Term)})
	patchByID(card, "word_image", map[string]any{
		"image_url":    image,
		"width":        map[string]any{"type": "match_parent"},
		"height":       map[string]any{"type": "match_parent"},
		"content_mode": "scale_to_fit",
	})
	patchByID(card, "choice_left_text", map[string]any{"text": left})
	patchByID(card, "choice_right_text", map[string]any{"text": right})
	patchByID(card, "choice_left", map[string]any{"action": leftAction})
	patchByID(card, "choice_right", map[string]any{"action": rightAction})
}

func nextAction(target string) map[string]any {
	return map[string]any{"log_id": "next_word", "url": target}
}

// setProgress publishes the step counters as card variables and replaces
// the progress_bar node with a two-segment weighted bar.
func (s *Server) setProgress(card document.Node, done, total int) {
	total = max(total, 1)
	done = min(max(done, 0), total)
	rest := total - done

	setVariables(card, map[string]any{
		"total":   total,
		"correct": done,
		"done":    done,
		"rest":    rest,
	})
	replaceByID(card, "progress_bar", map[string]any{
		"type":           "container",
		"id":             "progress_bar",
		"orientation":    "horizontal",
		"width":          map[string]any{"type": "match_parent"},
		"height":         map[string]any{"type": "fixed", "value": 8},
		"weight":         1,
		"clip_to_bounds": true,
		"border":         map[string]any{"corner_radius": 4},
		"background":     []any{map[string]any{"type": "solid", "color": "#E5E7EB"}},
		"items": []any{
			map[string]any{
				"type":       "container",
				"id":         "progress_done",
				"height":     map[string]any{"type": "match_parent"},
				"weight":     done,
				"background": []any{map[string]any{"type": "solid", "color": "#46B100"}},
			},
			map[string]any{
				"type":   "container",
				"id":     "progress_rest",
				"height": map[string]any{"type": "match_parent"},
				"weight": rest,
			},
		},
	})
}
