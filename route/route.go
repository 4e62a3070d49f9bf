// Package route translates browser-visible view paths into backend resource
// paths, and derives the next step of sequential lesson content.
//
// All functions are pure and total: an unrecognised path is returned
// unchanged and treated as a resource path already.
//
//	route.Resolve("/view/lesson/42?i=3")      // "/lesson/42?i=3"
//	route.Resolve("/view/lesson/slug/intro")  // "/lesson/by/intro"
//	route.Resolve("/view/about")              // "/ui/pages/about.json"
//	route.NextStep("/view/lesson/5?i=0")      // "/view/lesson/5?i=1", true
package route

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	// HomeView is the canonical view path of the home screen.
	HomeView = "/view/home"
	// HomeResource is the backend resource behind every home alias.
	HomeResource = "/home"
	// StaticHomeResource is fetched when HomeResource is unavailable.
	StaticHomeResource = "/ui/pages/home.json"
	// LessonPath is the generic lesson resource path.
	LessonPath = "/lesson"

	viewPrefix  = "/view/"
	pagesPrefix = "/ui/pages/"
	jsonSuffix  = ".json"
	stepParam   = "i"
)

var (
	lessonIDRe   = regexp.MustCompile(`^/view/lesson/(\d+)/?$`)
	lessonSlugRe = regexp.MustCompile(`^/view/lesson/(slug|by)/([^/]+)/?$`)
	pageRe       = regexp.MustCompile(`^/view/page/([^/]+)/?$`)
	sequentialRe = regexp.MustCompile(`^/view/lesson/(\d+|(slug|by)/.+)`)
)

// Split separates a path into its pathname and its query string. The query
// keeps its leading "?"; it is empty when the path has none.
func Split(p string) (pathname, search string) {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i], p[i:]
	}
	return p, ""
}

// IsHomeView reports whether viewPath addresses the home screen.
func IsHomeView(viewPath string) bool {
	pathname, _ := Split(viewPath)
	switch pathname {
	case "/", "/view", "/view/", HomeView:
		return true
	}
	return false
}

// Resolve maps a view path to the resource path the backend serves it from.
func Resolve(viewPath string) string {
	pathname, search := Split(viewPath)

	if IsHomeView(viewPath) {
		return HomeResource + search
	}

	if m := lessonIDRe.FindStringSubmatch(pathname); m != nil {
		return LessonPath + "/" + m[1] + search
	}

	// "by" is a deprecated alias of the canonical "slug" form.
	if m := lessonSlugRe.FindStringSubmatch(pathname); m != nil {
		return LessonPath + "/by/" + EscapeComponent(m[2]) + search
	}

	if m := pageRe.FindStringSubmatch(pathname); m != nil {
		return "/page/" + EscapeComponent(m[1]) + search
	}

	if tail, ok := strings.CutPrefix(pathname, viewPrefix); ok {
		switch {
		case strings.HasPrefix(tail, "ui/"):
			return "/" + tail + search
		case strings.HasSuffix(tail, jsonSuffix):
			return pagesPrefix + tail + search
		default:
			return pagesPrefix + tail + jsonSuffix + search
		}
	}

	return viewPath
}

// Step locates a position inside sequential lesson content. Exactly one of
// ID and Slug is set.
type Step struct {
	ID    string
	Slug  string
	Index int
}

// ViewPath serialises the step in its canonical view form.
func (s Step) ViewPath() string {
	q := "?" + stepParam + "=" + strconv.Itoa(s.Index)
	if s.ID != "" {
		return "/view/lesson/" + s.ID + q
	}
	return "/view/lesson/slug/" + EscapeComponent(s.Slug) + q
}

// ParseStep extracts the lesson identifier and step index from a lesson view
// path. The index defaults to 0 when absent, negative or not a number.
func ParseStep(viewPath string) (Step, bool) {
	pathname, search := Split(viewPath)

	var st Step
	if m := lessonIDRe.FindStringSubmatch(pathname); m != nil {
		st.ID = m[1]
	} else if m := lessonSlugRe.FindStringSubmatch(pathname); m != nil {
		slug, err := url.PathUnescape(m[2])
		if err != nil {
			slug = m[2]
		}
		st.Slug = slug
	} else {
		return Step{}, false
	}

	if search != "" {
		q, _ := url.ParseQuery(search[1:])
		if v := q.Get(stepParam); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				st.Index = n
			}
		}
	}
	return st, true
}

// NextStep returns the view path of the step following viewPath, in the
// same id or slug form. It reports false for non-lesson paths.
func NextStep(viewPath string) (string, bool) {
	st, ok := ParseStep(viewPath)
	if !ok {
		return "", false
	}
	st.Index++
	return st.ViewPath(), true
}

// IsSequential reports whether viewPath addresses sequential lesson
// content, the context in which the prefetch cache is retained.
func IsSequential(viewPath string) bool {
	return sequentialRe.MatchString(viewPath)
}

// EscapeComponent percent-encodes s the way a browser's
// encodeURIComponent does: everything but A-Z a-z 0-9 - _ . ! ~ * ' ( ) is
// escaped byte by byte.
func EscapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
