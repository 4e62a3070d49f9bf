package browser

import (
	"context"
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hazyhaar/viewnav/engine"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// toMarkdown converts rendered markup to Markdown. Relative links resolve
// against domain.
func toMarkdown(html, domain string) (string, error) {
	md, err := mdConverter.ConvertString(html, converter.WithDomain(domain))
	if err != nil {
		return "", fmt.Errorf("browser: markdown: %w", err)
	}
	return md, nil
}

// Markdown returns the content of the mount container as Markdown, a
// readable snapshot of what the engine rendered.
func (r *Renderer) Markdown(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == nil || !r.mounted {
		return "", engine.ErrNotMounted
	}
	res, err := r.page.Context(ctx).Eval(`(target) => {
		const el = document.getElementById(target);
		return el ? el.innerHTML : '';
	}`, r.opts.Target)
	if err != nil {
		return "", fmt.Errorf("browser: get container: %w", err)
	}
	return toMarkdown(res.Value.Str(), r.cfg.ShellURL)
}
