package routetable

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"gopkg.in/yaml.v3"
)

// Table is the immutable route table built once at startup (or rebuilt
// wholesale on a hot reload and swapped atomically by the caller — Table
// itself has no mutable state).
type Table struct {
	entries []types.RouteEntry
}

// Entries returns the table's entries in match-priority order: longest
// literal path prefix first, ties broken by path pattern and then method
// in lexical order (the document's own declaration order is not kept).
func (t *Table) Entries() []types.RouteEntry {
	return t.entries
}

// Load reads an OpenAPI-shaped YAML document from path and builds a
// Table from its paths object.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routetable: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Table from raw YAML bytes, exported separately from
// Load so tests can work from in-memory content.
func Parse(data []byte) (*Table, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("routetable: parse yaml: %w", err)
	}

	pathsNode, ok := doc["paths"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("routetable: document has no top-level paths object")
	}

	var entries []types.RouteEntry
	// Sort path keys for a deterministic declared order across runs;
	// map[string]any has no ordering of its own once unmarshalled.
	pathKeys := make([]string, 0, len(pathsNode))
	for p := range pathsNode {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, pathPattern := range pathKeys {
		methodsNode, ok := pathsNode[pathPattern].(map[string]any)
		if !ok {
			continue
		}

		methodKeys := make([]string, 0, len(methodsNode))
		for m := range methodsNode {
			methodKeys = append(methodKeys, m)
		}
		sort.Strings(methodKeys)

		for _, method := range methodKeys {
			opNode, ok := methodsNode[method].(map[string]any)
			if !ok {
				continue
			}

			operationID, _ := opNode["operationId"].(string)
			if operationID == "" {
				continue
			}

			entries = append(entries, types.RouteEntry{
				Method:      strings.ToUpper(method),
				PathPattern: pathPattern,
				Handler:     stripHandlerPrefix(operationID),
				Resources:   extractResources(opNode),
				Deadline:    extractDeadline(opNode),
			})
		}
	}

	sortByMatchPriority(entries)
	return &Table{entries: entries}, nil
}

// stripHandlerPrefix drops a conventional "handler:" or "handlers." style
// prefix some interface descriptions use to namespace operationIds.
func stripHandlerPrefix(operationID string) string {
	if i := strings.LastIndexAny(operationID, ":."); i >= 0 {
		return operationID[i+1:]
	}
	return operationID
}

func extractResources(opNode map[string]any) types.ResourceVector {
	raw, ok := opNode["x-neutrino-resources"].(map[string]any)
	if !ok {
		return types.DefaultResourceVector()
	}

	v := types.DefaultResourceVector()
	if cpus, ok := asFloat(raw["cpus"]); ok {
		v.CPUs = cpus
	}
	if gpus, ok := asFloat(raw["gpus"]); ok {
		v.GPUs = gpus
	}
	if mem, ok := asFloat(raw["memory_gb"]); ok {
		v.MemoryGB = mem
	}
	return v
}

// extractDeadline reads the optional x-neutrino-deadline-seconds
// extension, returning zero (no override) when absent or malformed.
func extractDeadline(opNode map[string]any) time.Duration {
	seconds, ok := asFloat(opNode["x-neutrino-deadline-seconds"])
	if !ok || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// literalPrefixLen counts the leading path segments that contain no
// named parameter.
func literalPrefixLen(pattern string) int {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	n := 0
	for _, seg := range segments {
		if strings.HasPrefix(seg, "{") {
			break
		}
		n++
	}
	return n
}

// sortByMatchPriority orders entries by longest literal prefix first,
// stably preserving declared order (here, sorted path/method) among
// ties — this is the order gorilla/mux and the gateway's matcher both
// rely on.
func sortByMatchPriority(entries []types.RouteEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return literalPrefixLen(entries[i].PathPattern) > literalPrefixLen(entries[j].PathPattern)
	})
}
