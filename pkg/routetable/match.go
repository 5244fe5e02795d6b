package routetable

import (
	"strings"

	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
)

// Match finds the first entry (in match-priority order) whose method and
// path pattern match rawPath, returning the matched entry and the named
// path parameters it captured. Used directly by the gateway, which has
// no HTTP mux of its own; the HTTP front-end uses gorilla/mux instead
// but relies on the same priority order when registering routes.
func (t *Table) Match(method, rawPath string) (types.RouteEntry, map[string]string, bool) {
	method = strings.ToUpper(method)
	for _, entry := range t.entries {
		if entry.Method != method {
			continue
		}
		if params, ok := matchPath(entry.PathPattern, rawPath); ok {
			return entry, params, true
		}
	}
	return types.RouteEntry{}, nil, false
}

func matchPath(pattern, rawPath string) (map[string]string, bool) {
	patternSegs := splitPath(pattern)
	pathSegs := splitPath(rawPath)
	if len(patternSegs) != len(pathSegs) {
		return nil, false
	}

	var params map[string]string
	for i, seg := range patternSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			if params == nil {
				params = make(map[string]string)
			}
			params[name] = pathSegs[i]
			continue
		}
		if seg != pathSegs[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
