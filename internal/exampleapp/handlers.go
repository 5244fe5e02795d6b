/*
Package exampleapp is a minimal demonstration user-program. Its init()
registers the handlers "add", "boom" and "echo" by name in pkg/appregistry;
a worker looks handlers up by those names and does not use its app-entry
argument to select or load this package. It exists so the rest of
the module has something concrete to dispatch tasks to in tests and in
local experimentation: an "add" handler that echoes a structured result,
and a "boom" handler that always fails, exercising the handler error
path end to end.
*/
package exampleapp

import (
	"fmt"

	"github.com/nithinkrishnamurthi/neutrino/pkg/appregistry"
)

func init() {
	appregistry.Register("add", add)
	appregistry.Register("boom", boom)
	appregistry.Register("echo", echo)
}

// add reads numeric "x" and "y" arguments (as sent by a JSON body or
// path/query parameters) and returns their sum.
func add(args map[string]any) (any, error) {
	x, err := asFloat(args["x"])
	if err != nil {
		return nil, fmt.Errorf("add: x: %w", err)
	}
	y, err := asFloat(args["y"])
	if err != nil {
		return nil, fmt.Errorf("add: y: %w", err)
	}
	return map[string]any{"result": x + y}, nil
}

// boom always fails, to exercise the ErrorKindHandler -> 500 path.
func boom(args map[string]any) (any, error) {
	return nil, fmt.Errorf("boom: handler intentionally failed")
}

// echo returns its arguments unchanged, useful for inspecting how path
// parameters and query parameters and body fields get merged.
func echo(args map[string]any) (any, error) {
	return args, nil
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, fmt.Errorf("cannot parse %q as a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("missing or non-numeric value")
	}
}
