package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nithinkrishnamurthi/neutrino/pkg/routetable"
	"github.com/nithinkrishnamurthi/neutrino/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDiscovererReturnsConfiguredEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backends.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- http://node-a:8080\n- http://node-b:8080\n"), 0o644))

	d, err := NewStaticDiscoverer(path)
	require.NoError(t, err)

	endpoints, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://node-a:8080", "http://node-b:8080"}, endpoints)
}

func TestPlatformAPIDiscovererIsUnimplemented(t *testing.T) {
	d := &PlatformAPIDiscoverer{LabelSelector: "app=demo"}
	_, err := d.Discover(context.Background())
	assert.Error(t, err)
}

func TestBackendHealthTransitionsAfterConsecutiveFailures(t *testing.T) {
	b := newBackend("http://node-a:8080")
	assert.True(t, b.isHealthy())

	b.recordFailure()
	b.recordFailure()
	assert.True(t, b.isHealthy(), "should stay healthy below the threshold")

	b.recordFailure()
	assert.False(t, b.isHealthy())

	b.recordSuccess(types.CapacitySnapshot{})
	assert.True(t, b.isHealthy(), "a success resets the failure streak")
}

func TestBackendUtilizationScoreOnlyCountsNonzeroRequirementDimensions(t *testing.T) {
	b := newBackend("http://node-a:8080")
	b.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 2, GPUs: 0, MemoryGB: 4},
		Total:     types.ResourceVector{CPUs: 4, GPUs: 0, MemoryGB: 8},
	})

	score := b.utilizationScore(types.ResourceVector{CPUs: 1, MemoryGB: 1})
	assert.InDelta(t, 1.0, score, 0.0001) // 0.5 (cpu) + 0.5 (mem)

	gpuOnlyScore := b.utilizationScore(types.ResourceVector{GPUs: 1})
	assert.Equal(t, 0.0, gpuOnlyScore, "total gpus is zero so the dimension is skipped")
}

func TestSelectBackendPicksLowestUtilizationAmongHealthyCandidates(t *testing.T) {
	g := New(DefaultConfig(), mustEmptyTable(t), &StaticDiscoverer{})

	busy := newBackend("http://busy:8080")
	busy.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 1, MemoryGB: 1},
		Total:     types.ResourceVector{CPUs: 4, MemoryGB: 4},
	})
	idle := newBackend("http://idle:8080")
	idle.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 3, MemoryGB: 3},
		Total:     types.ResourceVector{CPUs: 4, MemoryGB: 4},
	})
	g.backends = map[string]*backend{"busy": busy, "idle": idle}

	chosen, err := g.selectBackend(types.ResourceVector{CPUs: 1, MemoryGB: 1})
	require.NoError(t, err)
	assert.Equal(t, "http://idle:8080", chosen.endpoint)
}

func TestSelectBackendExcludesUnhealthyAndNonDominating(t *testing.T) {
	g := New(DefaultConfig(), mustEmptyTable(t), &StaticDiscoverer{})

	unhealthy := newBackend("http://dead:8080")
	unhealthy.recordFailure()
	unhealthy.recordFailure()
	unhealthy.recordFailure()

	starved := newBackend("http://starved:8080")
	starved.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 0, MemoryGB: 0},
		Total:     types.ResourceVector{CPUs: 4, MemoryGB: 4},
	})

	g.backends = map[string]*backend{"dead": unhealthy, "starved": starved}

	_, err := g.selectBackend(types.ResourceVector{CPUs: 1, MemoryGB: 1})
	assert.Error(t, err)
}

func TestGatewayProxiesToSelectedBackend(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":5}`))
	}))
	defer upstream.Close()

	table, err := routetable.Parse([]byte(`
paths:
  /add:
    post:
      operationId: add
`))
	require.NoError(t, err)

	g := New(DefaultConfig(), table, &StaticDiscoverer{})
	b := newBackend(upstream.URL)
	b.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 4, MemoryGB: 4},
		Total:     types.ResourceVector{CPUs: 4, MemoryGB: 4},
	})
	g.backends = map[string]*backend{"up": b}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/add", nil)
	g.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 5.0, body["result"])
}

func TestGatewayReturns503WhenNoBackendAvailable(t *testing.T) {
	table, err := routetable.Parse([]byte(`
paths:
  /add:
    post:
      operationId: add
`))
	require.NoError(t, err)

	g := New(DefaultConfig(), table, &StaticDiscoverer{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/add", nil)
	g.ServeHTTP(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRefreshBackendsAddsAndRemovesEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backends.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- http://a:8080\n"), 0o644))
	d, err := NewStaticDiscoverer(path)
	require.NoError(t, err)

	g := New(DefaultConfig(), mustEmptyTable(t), d)
	require.NoError(t, g.refreshBackends(context.Background()))
	assert.Len(t, g.backends, 1)

	d.endpoints = []string{"http://b:8080"}
	require.NoError(t, g.refreshBackends(context.Background()))
	require.Len(t, g.backends, 1)
	_, ok := g.backends["http://b:8080"]
	assert.True(t, ok)
}

func TestGatewayRetriesNextCandidateOnConnectionFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":9}`))
	}))
	defer upstream.Close()

	table, err := routetable.Parse([]byte(`
paths:
  /add:
    post:
      operationId: add
`))
	require.NoError(t, err)

	g := New(DefaultConfig(), table, &StaticDiscoverer{})

	dead := newBackend("http://127.0.0.1:1") // nothing listens here
	dead.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 4, MemoryGB: 4},
		Total:     types.ResourceVector{CPUs: 4, MemoryGB: 4},
	})
	alive := newBackend(upstream.URL)
	alive.recordSuccess(types.CapacitySnapshot{
		Available: types.ResourceVector{CPUs: 1, MemoryGB: 1},
		Total:     types.ResourceVector{CPUs: 4, MemoryGB: 4},
	})
	g.backends = map[string]*backend{"dead": dead, "alive": alive}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/add", nil)
	g.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 9.0, body["result"])
	assert.Equal(t, 1, dead.consecutiveFailures, "the unreachable candidate should record a failure before falling back")
}

func mustEmptyTable(t *testing.T) *routetable.Table {
	t.Helper()
	table, err := routetable.Parse([]byte("paths: {}\n"))
	require.NoError(t, err)
	return table
}
