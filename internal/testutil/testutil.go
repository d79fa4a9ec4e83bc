// Package testutil provides shared helpers for the test suites: context
// construction with captured or silenced loggers, repository-root discovery
// for manifest fixtures, and a minimal stateful test module.
package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jasciiz/evox/internal/ctxlog"
)

// QuietContext returns a context whose logger discards all output.
func QuietContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

// CapturingContext returns a context whose logger writes text records into
// the returned buffer, for tests asserting on log output.
func CapturingContext() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger), &buf
}

// RepoRoot returns the absolute path of the repository root, located from
// this source file's position in the tree.
func RepoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}
