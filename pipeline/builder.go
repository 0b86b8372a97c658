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

// Package pipeline drives build nodes through repeated builds.
//
// A Builder owns the output directories: every build gets a fresh one,
// the previous build's directory is removed when the next build starts,
// and Cleanup removes the last one and releases the node.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bennypowers.dev/vulcanize/fs"
)

// Node is a build node in its build form.
type Node interface {
	// Build writes the node's output into outDir, which it owns.
	Build(ctx context.Context, outDir string) error
	// Cleanup releases everything the node holds.
	Cleanup() error
}

// Result describes a successful build.
type Result struct {
	// Directory holds the build output until the next build or Cleanup.
	Directory string
	// BuildID identifies the build in logs.
	BuildID string
	// Duration is the wall time of the build.
	Duration time.Duration
}

// Builder builds a node repeatedly. Builds on one Builder are serialized.
type Builder struct {
	fs      fs.FileSystem
	node    Node
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	outDir string
}

// New creates a builder for n, creating output directories on fsys.
func New(fsys fs.FileSystem, n Node) *Builder {
	return &Builder{
		fs:      fsys,
		node:    n,
		logger:  slog.Default(),
		metrics: NewMetrics(nil),
	}
}

// WithLogger sets the logger and returns the builder.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics makes the builder record into m and returns the builder.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// Build runs one build into a fresh output directory.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buildID := uuid.NewString()
	logger := b.logger.With("build_id", buildID)
	start := time.Now()

	b.metrics.inFlight.Inc()
	defer b.metrics.inFlight.Dec()

	if b.outDir != "" {
		if err := b.fs.RemoveAll(b.outDir); err != nil {
			return nil, fmt.Errorf("removing previous output: %w", err)
		}
		b.outDir = ""
	}

	outDir, err := b.fs.MkdirTemp("", "vulcanize-build-*")
	if err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	logger.Debug("build started", "output", outDir)
	if err := b.node.Build(ctx, outDir); err != nil {
		b.metrics.observe("failure", time.Since(start))
		logger.Debug("build failed", "error", err)
		if rmErr := b.fs.RemoveAll(outDir); rmErr != nil {
			return nil, errors.Join(err, fmt.Errorf("removing failed output: %w", rmErr))
		}
		return nil, err
	}

	duration := time.Since(start)
	b.metrics.observe("success", duration)
	b.outDir = outDir
	logger.Debug("build finished", "output", outDir, "duration", duration)

	return &Result{Directory: outDir, BuildID: buildID, Duration: duration}, nil
}

// Cleanup removes the last output directory and cleans up the node.
func (b *Builder) Cleanup() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.outDir != "" {
		if err := b.fs.RemoveAll(b.outDir); err != nil {
			errs = append(errs, fmt.Errorf("removing output: %w", err))
		}
		b.outDir = ""
	}
	if err := b.node.Cleanup(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
