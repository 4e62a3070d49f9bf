package document

// DefaultPlaceholderText is shown when every fallback has been exhausted.
const DefaultPlaceholderText = "Не удалось загрузить страницу"

// Placeholder builds the minimal inline error card rendered instead of a
// blank surface.
func Placeholder(message string) Node {
	if message == "" {
		message = DefaultPlaceholderText
	}
	return card("error", map[string]any{
		"type":    "text",
		"text":    message,
		"width":   map[string]any{"type": "match_parent"},
		"margins": map[string]any{"top": 24.0, "left": 16.0, "right": 16.0},
	})
}

// NotFoundPage builds the card served for a static page that does not exist.
// name must already be sanitised by the caller.
func NotFoundPage(name string) Node {
	logID := name
	if logID == "" {
		logID = "page"
	}
	return card(logID, map[string]any{
		"type": "container",
		"items": []any{
			map[string]any{
				"type":                      "text",
				"text":                      "page '" + name + "' not found",
				"text_alignment_horizontal": "center",
				"paddings":                  map[string]any{"top": 16.0, "bottom": 16.0},
			},
		},
	})
}

func card(logID string, div map[string]any) Node {
	return map[string]any{
		"card": map[string]any{
			"log_id": logID,
			"states": []any{
				map[string]any{
					"state_id": 0.0,
					"div":      div,
				},
			},
		},
	}
}
