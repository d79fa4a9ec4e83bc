package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/testutil"
)

func manifestsDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.RepoRoot(t), "modules")
}

func newTestConfig(t *testing.T, opName, mode string) *Config {
	t.Helper()
	cfg, err := NewConfig(Config{
		ManifestPath: manifestsDir(t),
		OpName:       opName,
		Mode:         mode,
		Lanes:        2,
		LogFormat:    "text",
		LogLevel:     "error",
	})
	require.NoError(t, err)
	return cfg
}

func TestNewConfig_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewConfig(Config{Mode: "trace", Lanes: 1})
	require.Error(t, err, "empty manifest path must be rejected")

	_, err = NewConfig(Config{ManifestPath: "modules", Mode: "warp", Lanes: 1})
	require.Error(t, err, "unknown mode must be rejected")

	_, err = NewConfig(Config{ManifestPath: "modules", Mode: "trace", Lanes: 0})
	require.Error(t, err, "lanes below 1 must be rejected")
}

func TestNewApp_LoadsAndValidatesCoreModules(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	a := NewApp(&out, newTestConfig(t, "", "trace"))

	names := a.Registry().OperationNames()
	require.Contains(t, names, "counter.increment")
	require.Contains(t, names, "randomwalk.step")
	require.Contains(t, names, "bandit.anneal")
	require.Contains(t, names, "bandit.choose")
}

func TestNewApp_PanicsOnBrokenManifests(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.hcl"), []byte(`operation "x" {`), 0600))

	cfg, err := NewConfig(Config{ManifestPath: dir, Mode: "trace", Lanes: 1, LogLevel: "error", LogFormat: "text"})
	require.NoError(t, err)

	var out bytes.Buffer
	require.Panics(t, func() { NewApp(&out, cfg) })
}

func TestRun_ListsOperationsWithoutOpName(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := newTestConfig(t, "", "trace")
	a := NewApp(&out, cfg)

	require.NoError(t, a.Run(context.Background(), cfg))
	require.Contains(t, out.String(), "counter.increment")
	require.Contains(t, out.String(), "randomwalk.step")
}

func TestRun_TraceCompileAndRun(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := newTestConfig(t, "counter.increment", "trace")
	a := NewApp(&out, cfg)

	require.NoError(t, a.Run(context.Background(), cfg))
	require.Equal(t, 1, a.Compiler().Cache().Len())

	// The manifest default of 1 lands in the counter.
	require.Contains(t, out.String(), "value = f64[]@cpu {1}")
	require.Contains(t, out.String(), "state value = f64[]@cpu {1}")
}

func TestRun_VectorizedCompileAndRun(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := newTestConfig(t, "randomwalk.step", "vectorized")
	a := NewApp(&out, cfg)

	require.NoError(t, a.Run(context.Background(), cfg))
	require.Contains(t, out.String(), "position = f64[lanes:2][3]@cpu")
}

func TestRun_UnknownOperation(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := newTestConfig(t, "ghost.op", "trace")
	a := NewApp(&out, cfg)

	require.Error(t, a.Run(context.Background(), cfg))
}

func TestRun_WhileBackedOperationEndToEnd(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cfg := newTestConfig(t, "bandit.anneal", "trace")
	a := NewApp(&out, cfg)

	require.NoError(t, a.Run(context.Background(), cfg))
	// Annealing toward the manifest default target of 0.1 ends at 0.0625.
	require.Contains(t, out.String(), "temperature = f64[]@cpu {0.0625}")
}
