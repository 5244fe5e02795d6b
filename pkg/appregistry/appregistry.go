// Package appregistry is how a neutrino worker process finds the handler
// code a user wrote. Go has no runtime equivalent of importing a module by
// name at startup, so user code registers itself the way database/sql
// drivers do: a blank import of the user's package runs an init() that
// calls Register, and the worker binary resolves the app-entry argument
// from its argv against this registry instead of loading anything
// dynamically.
//
//	package main
//
//	import (
//		_ "example.com/myapp/handlers"
//		"github.com/nithinkrishnamurthi/neutrino/pkg/worker"
//	)
//
//	func main() { _ = worker.Run(worker.Config{ /* socket path, id, app entry from argv */ }) }
//
// handlers/init.go then does:
//
//	func init() {
//		appregistry.Register("add", func(args map[string]any) (any, error) { ... })
//	}
//
// and the route table's operationId names "add" as the handler, which the worker resolves with appregistry.Lookup("add").
package appregistry

import (
	"fmt"
	"sort"
	"sync"
)

// Handler runs one task and returns its result, or an error. A non-nil
// error is reported to the orchestrator as an ErrorKindHandler failure.
type Handler func(args map[string]any) (any, error)

var (
	mu       sync.RWMutex
	handlers = make(map[string]Handler)
)

// Register binds name to handler. It panics on a duplicate registration,
// matching database/sql's Register semantics: a second driver registered
// under the same name is a programming error caught at init time, not a
// runtime condition to recover from.
func Register(name string, handler Handler) {
	mu.Lock()
	defer mu.Unlock()

	if handler == nil {
		panic("appregistry: Register handler is nil for " + name)
	}
	if _, dup := handlers[name]; dup {
		panic("appregistry: Register called twice for handler " + name)
	}
	handlers[name] = handler
}

// Lookup resolves a handler name registered via Register.
func Lookup(name string) (Handler, error) {
	mu.RLock()
	defer mu.RUnlock()

	h, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("appregistry: no handler registered for %q", name)
	}
	return h, nil
}

// Names returns every registered handler name, sorted, for diagnostics
// such as the worker's RouteRegistry announcement.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
