package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/hazyhaar/viewnav/horosafe"
	"github.com/hazyhaar/viewnav/route"
)

// DirHandler serves resources from a local web directory laid out like the
// backend's static tree: "/ui/..." maps to <dir>/ui/..., the home resource
// maps to the static home page and "/page/<name>" to ui/pages/<name>.json.
// Dynamic resources (lessons) are not available locally and yield
// ErrNotFound.
func DirHandler(dir string) Handler {
	return func(_ context.Context, path string) ([]byte, error) {
		pathname, _ := route.Split(path)

		var rel string
		switch {
		case pathname == route.HomeResource:
			rel = route.StaticHomeResource
		case strings.HasPrefix(pathname, "/page/"):
			name := strings.TrimSuffix(strings.TrimPrefix(pathname, "/page/"), ".json")
			rel = "/ui/pages/" + name + ".json"
		case strings.HasPrefix(pathname, "/ui/"):
			rel = pathname
		default:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		full, err := horosafe.SafePath(dir, rel)
		if err != nil {
			return nil, fmt.Errorf("connectivity: %s: %w", path, err)
		}
		data, err := os.ReadFile(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return nil, fmt.Errorf("connectivity: read %s: %w", full, err)
		}
		return data, nil
	}
}
