/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bennypowers.dev/vulcanize/internal/mapfs"
	"bennypowers.dev/vulcanize/node"
	"bennypowers.dev/vulcanize/testutil"
)

// fakeNode writes a counter file on each build, or fails with err.
type fakeNode struct {
	fs       *mapfs.MapFileSystem
	err      error
	builds   atomic.Int32
	cleanups atomic.Int32
}

func (f *fakeNode) Build(_ context.Context, outDir string) error {
	f.builds.Add(1)
	if f.err != nil {
		// Partial output is the builder's to remove
		_ = f.fs.WriteFile(filepath.Join(outDir, "partial.txt"), []byte("partial"), 0644)
		return f.err
	}
	return f.fs.WriteFile(filepath.Join(outDir, "out.txt"), []byte("ok"), 0644)
}

func (f *fakeNode) Cleanup() error {
	f.cleanups.Add(1)
	return nil
}

func newBundleBuilder(t *testing.T, opts node.Options) (*Builder, *mapfs.MapFileSystem) {
	t.Helper()
	mfs := testutil.NewFixtureFS(t, "fixtures", "/src")
	n, err := node.New(mfs, node.Path("/src"), opts)
	require.NoError(t, err)
	b := New(mfs, n)
	t.Cleanup(func() { assert.NoError(t, b.Cleanup()) })
	return b, mfs
}

func TestBuildComponents(t *testing.T) {
	b, mfs := newBundleBuilder(t, node.Options{Input: "basic-index.html"})

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.True(t, mfs.Exists(filepath.Join(result.Directory, "basic-index.html")))
	assert.NotEmpty(t, result.BuildID)
}

func TestBuildCyclicComponents(t *testing.T) {
	b, mfs := newBundleBuilder(t, node.Options{Input: "cyclic-dependency-index.html"})

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.True(t, mfs.Exists(filepath.Join(result.Directory, "cyclic-dependency-index.html")))
}

func TestBuildRenamed(t *testing.T) {
	b, mfs := newBundleBuilder(t, node.Options{
		Input:  "basic-index.html",
		Output: "vulcanized/vulcanized.html",
	})

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.True(t, mfs.Exists(filepath.Join(result.Directory, "vulcanized", "vulcanized.html")))
}

func TestBuildCrisper(t *testing.T) {
	b, mfs := newBundleBuilder(t, node.Options{
		Input:      "basic-index.html",
		ScriptName: "basic-index.js",
	})

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.True(t, mfs.Exists(filepath.Join(result.Directory, "basic-index.html")))
	assert.True(t, mfs.Exists(filepath.Join(result.Directory, "basic-index.js")))
}

func TestBuildRepeatedly(t *testing.T) {
	b, mfs := newBundleBuilder(t, node.Options{Input: "basic-index.html"})

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	firstContent, err := mfs.ReadFile(filepath.Join(first.Directory, "basic-index.html"))
	require.NoError(t, err)

	second, err := b.Build(context.Background())
	require.NoError(t, err)
	secondContent, err := mfs.ReadFile(filepath.Join(second.Directory, "basic-index.html"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Directory, second.Directory, "each build gets a fresh directory")
	assert.NotEqual(t, first.BuildID, second.BuildID)
	assert.False(t, mfs.Exists(first.Directory), "previous output is removed")
	assert.Equal(t, string(firstContent), string(secondContent))
}

func TestBuildFromTree(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/src")
	upstream, err := node.New(mfs, node.Path("/src"), node.Options{Input: "basic-index.html"})
	require.NoError(t, err)
	n, err := node.New(mfs, node.FromTree(upstream), node.Options{Input: "basic-index.html"})
	require.NoError(t, err)

	b := New(mfs, n)
	result, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.True(t, mfs.Exists(filepath.Join(result.Directory, "basic-index.html")))

	require.NoError(t, b.Cleanup())
	entries, _ := mfs.ReadDir("/tmp")
	assert.Empty(t, entries, "cleanup removes every temporary directory")
}

func TestBuildFailureRemovesOutput(t *testing.T) {
	mfs := mapfs.New()
	buildErr := errors.New("boom")
	fake := &fakeNode{fs: mfs, err: buildErr}
	b := New(mfs, fake)

	result, err := b.Build(context.Background())
	require.ErrorIs(t, err, buildErr)
	assert.Nil(t, result)

	entries, _ := mfs.ReadDir("/tmp")
	assert.Empty(t, entries)
}

func TestBuildEntryNotFound(t *testing.T) {
	b, _ := newBundleBuilder(t, node.Options{Input: "missing.html"})

	_, err := b.Build(context.Background())
	require.ErrorIs(t, err, node.ErrEntryNotFound)
}

func TestCleanup(t *testing.T) {
	mfs := mapfs.New()
	fake := &fakeNode{fs: mfs}
	b := New(mfs, fake)

	result, err := b.Build(context.Background())
	require.NoError(t, err)
	require.True(t, mfs.Exists(result.Directory))

	require.NoError(t, b.Cleanup())
	assert.False(t, mfs.Exists(result.Directory))
	assert.Equal(t, int32(1), fake.cleanups.Load())

	// Safe to repeat
	require.NoError(t, b.Cleanup())
}

func TestCleanupWithoutBuild(t *testing.T) {
	mfs := mapfs.New()
	fake := &fakeNode{fs: mfs}

	require.NoError(t, New(mfs, fake).Cleanup())
	assert.Equal(t, int32(0), fake.builds.Load())
}

func TestMetrics(t *testing.T) {
	mfs := mapfs.New()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ok := New(mfs, &fakeNode{fs: mfs}).WithMetrics(metrics)
	failing := New(mfs, &fakeNode{fs: mfs, err: errors.New("boom")}).WithMetrics(metrics)

	for range 2 {
		_, err := ok.Build(context.Background())
		require.NoError(t, err)
	}
	_, err := failing.Build(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2.0, promtestutil.ToFloat64(metrics.builds.WithLabelValues("success")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.builds.WithLabelValues("failure")))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(metrics.inFlight))
	assert.Equal(t, 1, promtestutil.CollectAndCount(metrics.duration))

	expected := `
# HELP vulcanize_builds_total Total number of node builds by outcome.
# TYPE vulcanize_builds_total counter
vulcanize_builds_total{outcome="failure"} 1
vulcanize_builds_total{outcome="success"} 2
`
	require.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "vulcanize_builds_total"))
}

func TestBuildAll(t *testing.T) {
	mfs := mapfs.New()
	buildErr := errors.New("boom")
	nodes := []*fakeNode{
		{fs: mfs},
		{fs: mfs, err: buildErr},
		{fs: mfs},
	}
	builders := make([]*Builder, len(nodes))
	for i, n := range nodes {
		builders[i] = New(mfs, n)
	}

	results := BuildAll(context.Background(), builders, 2)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, buildErr)
	assert.NoError(t, results[2].Err)
	assert.NotEqual(t, results[0].Result.Directory, results[2].Result.Directory)
	for _, n := range nodes {
		assert.Equal(t, int32(1), n.builds.Load(), "every node builds despite a failure")
	}
}

func TestCopyTree(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/from/a.html", "a", 0644)
	mfs.AddFile("/from/nested/deep/b.js", "b", 0644)
	mfs.AddFile("/to/a.html", "stale", 0644)

	require.NoError(t, CopyTree(mfs, "/from", "/to"))

	a, err := mfs.ReadFile("/to/a.html")
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))

	b, err := mfs.ReadFile("/to/nested/deep/b.js")
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestCopyTreeMissingSource(t *testing.T) {
	err := CopyTree(mapfs.New(), "/nope", "/to")
	require.Error(t, err)
}
