// Package planner decides what a normalised action does: navigate to a new
// view path, change the state of a UI container, or nothing at all.
package planner

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/viewnav/action"
	"github.com/hazyhaar/viewnav/route"
)

// Kind discriminates the outcome of Plan.
type Kind int

const (
	None     Kind = iota // Action recognised but not actionable.
	Navigate             // Go to Decision.ViewPath.
	SetState             // Apply Decision.Change.
)

func (k Kind) String() string {
	switch k {
	case Navigate:
		return "navigate"
	case SetState:
		return "set_state"
	}
	return "none"
}

// Decision is the outcome of planning one action.
type Decision struct {
	Kind     Kind
	ViewPath string
	Change   action.StateChange
	// Rule names the rule that produced the decision, for logging.
	Rule string
}

// Identifiers with fixed meaning.
const (
	LogIDLegacySetState = "lesson_card_set_state"
	LogIDGoHome         = "go_home"
	LogIDOpenLesson     = "open_lesson"
)

var bareSlugRe = regexp.MustCompile(`(?i)^/[a-z0-9-]+(\?.*)?$`)

// Plan applies the decision rules in priority order: explicit state change,
// legacy state change, semantic navigation tags, then URL navigation.
func Plan(d *action.Descriptor) Decision {
	if d == nil {
		return Decision{Kind: None}
	}

	if d.SetState != nil {
		return Decision{Kind: SetState, Change: *d.SetState, Rule: "set_state"}
	}

	if d.LogID == LogIDLegacySetState {
		return Decision{
			Kind:   SetState,
			Change: action.ParseLegacyStateChange(d.PayloadMap()),
			Rule:   "legacy_set_state",
		}
	}

	switch d.LogID {
	case LogIDGoHome:
		return Decision{Kind: Navigate, ViewPath: route.HomeView, Rule: "go_home"}
	case LogIDOpenLesson:
		p := d.PayloadMap()
		if id := action.FirstString(p, "lesson_id", "id"); id != "" {
			return Decision{Kind: Navigate, ViewPath: "/view/lesson/" + id + "?i=0", Rule: "open_lesson"}
		}
		if slug := action.FirstString(p, "lesson_slug", "slug"); slug != "" {
			return Decision{Kind: Navigate, ViewPath: slugView(slug, "?i=0"), Rule: "open_lesson"}
		}
	}

	u, ok := action.ResolveTargetURL(d.Raw)
	if !ok {
		u, ok = action.ResolveTargetURL(d.Payload)
	}
	if ok {
		return Decision{Kind: Navigate, ViewPath: RewriteURL(u), Rule: "url"}
	}

	return Decision{Kind: None, Rule: "unrecognised"}
}

// RewriteURL maps a URL found on an action to the view path it navigates
// to. Bare single-segment paths are lesson slug shortcuts.
func RewriteURL(u string) string {
	if bareSlugRe.MatchString(u) &&
		!strings.HasPrefix(u, "/lesson") &&
		!strings.HasPrefix(u, "/home") &&
		!strings.HasPrefix(u, "/ui/") &&
		!strings.HasPrefix(u, "/view/") {
		pathname, search := route.Split(u)
		return slugView(pathname[1:], search)
	}

	if rest, ok := strings.CutPrefix(u, "/lesson/by/"); ok {
		slug, search := route.Split(rest)
		return slugView(slug, search)
	}
	if strings.HasPrefix(u, "/lesson") {
		return "/view" + u
	}
	if u == route.HomeResource {
		return route.HomeView
	}
	return u
}

// NextStep returns the view path of the "open next" step from current.
func NextStep(current string) (string, bool) {
	return route.NextStep(current)
}

func slugView(slug, search string) string {
	return "/view/lesson/slug/" + route.EscapeComponent(slug) + search
}
