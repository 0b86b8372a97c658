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

// Package node adapts HTML import bundling into an incremental build
// pipeline node.
//
// A Node is constructed once per pipeline wiring and built many times.
// Every build reads its source afresh, bundles the entry document in
// memory, optionally splits inline scripts into a JS file, and only then
// materializes the artifacts, so a failed build leaves nothing behind.
// Besides its immutable options, a node keeps no state between builds.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"

	"bennypowers.dev/vulcanize/bundler"
	"bennypowers.dev/vulcanize/crisper"
	"bennypowers.dev/vulcanize/fs"
)

// Bundler inlines the HTML imports of entry, a slash-separated path
// relative to dir, and returns the bundled document.
type Bundler interface {
	Bundle(ctx context.Context, dir, entry string) ([]byte, error)
}

// SplitFunc extracts inline scripts from a bundled document.
type SplitFunc func(content []byte, opts crisper.Options) (*crisper.Result, error)

// Artifact is one output file of a build.
type Artifact struct {
	Path    string // Slash-separated, relative to the output directory
	Content []byte
}

// Node bundles an entry document on every build.
type Node struct {
	fs      fs.FileSystem
	source  Source
	dir     string // static source directory
	entry   string
	script  string // split script name relative to the HTML output, or ""
	opts    Options
	bundler Bundler
	split   SplitFunc
	logger  *slog.Logger
	handle  *handle
}

// handle tracks resources the node holds between Read and Cleanup.
type handle struct {
	mu       sync.Mutex
	readDir  string
	released bool
}

// New validates opts and creates a node reading from src. Contradictory
// or unusable options fail with a *ConfigurationError.
func New(fsys fs.FileSystem, src Source, opts Options) (*Node, error) {
	opts = opts.clone()

	input, err := normalizeRel("input", opts.Input)
	if err != nil {
		return nil, err
	}

	n := &Node{
		fs:     fsys,
		source: src,
		split:  crisper.Split,
		logger: slog.Default(),
		handle: &handle{},
	}

	switch src.kind {
	case upstreamTree:
		if src.tree == nil {
			return nil, &ConfigurationError{Field: "source", Reason: "upstream tree is nil"}
		}
	default:
		dir := src.path
		if dir == "" {
			dir = "."
		}
		if info, err := fsys.Stat(dir); err == nil && !info.IsDir() {
			// Shorthand: the source path names the entry file itself
			base := filepath.Base(dir)
			if input != "" && input != base {
				return nil, &ConfigurationError{
					Field:  "input",
					Value:  opts.Input,
					Reason: fmt.Sprintf("source %s already names entry %s", dir, base),
				}
			}
			input = base
			dir = filepath.Dir(dir)
		}
		n.dir = dir
	}

	if input == "" {
		input = DefaultInput
	}
	output, err := normalizeRel("output", opts.Output)
	if err != nil {
		return nil, err
	}
	if output == "" {
		output = input
	}

	if opts.SplitEnabled() {
		script, err := normalizeRel("script name", opts.ScriptName)
		if err != nil {
			return nil, err
		}
		if script == "" {
			script = derivedScriptName(input)
		}
		if path.Join(path.Dir(output), script) == output {
			return nil, &ConfigurationError{Field: "script name", Value: script, Reason: "collides with the HTML output"}
		}
		n.script = script
	}

	if err := bundler.ValidateExcludes(opts.Excludes); err != nil {
		return nil, &ConfigurationError{Field: "excludes", Reason: err.Error()}
	}

	opts.Input = input
	opts.Output = output
	opts.ScriptName = n.script
	n.entry = input
	n.opts = opts
	n.bundler = n.defaultBundler()
	return n, nil
}

func (n *Node) defaultBundler() Bundler {
	return bundler.New(n.fs).
		WithLogger(n.logger).
		WithOptions(bundler.Options{
			InlineScripts: n.opts.InlineScripts,
			InlineCSS:     n.opts.InlineCSS,
			StripComments: n.opts.StripComments,
			Excludes:      n.opts.Excludes,
		})
}

// copy returns a node with the same configuration and a fresh handle.
func (n *Node) copy() *Node {
	c := *n
	c.handle = &handle{}
	return &c
}

// WithBundler returns a copy of the node that bundles with b.
func (n *Node) WithBundler(b Bundler) *Node {
	c := n.copy()
	c.bundler = b
	return c
}

// WithSplitter returns a copy of the node that splits scripts with fn.
func (n *Node) WithSplitter(fn SplitFunc) *Node {
	c := n.copy()
	c.split = fn
	return c
}

// WithLogger returns a copy of the node logging to logger.
func (n *Node) WithLogger(logger *slog.Logger) *Node {
	c := n.copy()
	c.logger = logger
	if v, ok := n.bundler.(*bundler.Vulcanizer); ok {
		c.bundler = v.WithLogger(logger)
	}
	return c
}

// Options returns a copy of the node's normalized options.
func (n *Node) Options() Options {
	return n.opts.clone()
}

// Artifacts lists the relative paths a build produces, HTML first.
func (n *Node) Artifacts() []string {
	artifacts := []string{n.opts.Output}
	if n.script != "" {
		artifacts = append(artifacts, n.scriptPath())
	}
	return artifacts
}

func (n *Node) scriptPath() string {
	return path.Join(path.Dir(n.opts.Output), n.script)
}

// Build bundles the entry and materializes the artifacts into outDir,
// or hands them to the output handler. outDir is owned by this build.
func (n *Node) Build(ctx context.Context, outDir string) error {
	start := time.Now()

	sourceDir, err := n.sourceDir(ctx)
	if err != nil {
		return err
	}

	artifacts, err := n.bundle(ctx, sourceDir)
	if err != nil {
		return err
	}

	// Nothing irreversible has happened yet
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.emit(ctx, outDir, artifacts); err != nil {
		return err
	}

	n.logger.Debug("build complete",
		"entry", n.entry,
		"source", sourceDir,
		"artifacts", len(artifacts),
		"duration", time.Since(start),
	)
	return nil
}

// sourceDir resolves the directory to read the entry from.
func (n *Node) sourceDir(ctx context.Context) (string, error) {
	if !n.source.IsTree() {
		return n.dir, nil
	}
	dir, err := n.source.tree.Read(ctx)
	n.handle.mu.Lock()
	n.handle.released = false
	n.handle.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("reading upstream tree: %w", err)
	}
	return dir, nil
}

// bundle produces all artifacts in memory.
func (n *Node) bundle(ctx context.Context, sourceDir string) ([]Artifact, error) {
	entryPath := filepath.Join(sourceDir, filepath.FromSlash(n.entry))
	info, err := n.fs.Stat(entryPath)
	if err == nil && info.IsDir() {
		err = errors.New("is a directory")
	}
	if err != nil {
		return nil, &EntryNotFoundError{Entry: n.entry, SourceDir: sourceDir, Err: err}
	}

	content, err := n.bundler.Bundle(ctx, sourceDir, n.entry)
	if err != nil {
		return nil, &BundlerError{Entry: n.entry, Err: err}
	}

	if n.script == "" {
		return []Artifact{{Path: n.opts.Output, Content: content}}, nil
	}

	result, err := n.split(content, crisper.Options{
		ScriptSrc: n.script,
		InBody:    n.opts.ScriptInBody,
	})
	if err != nil {
		return nil, &BundlerError{Entry: n.entry, Err: fmt.Errorf("splitting scripts: %w", err)}
	}
	return []Artifact{
		{Path: n.opts.Output, Content: result.HTML},
		{Path: n.scriptPath(), Content: result.JS},
	}, nil
}

// emit routes artifacts to the output handler or writes them to outDir.
// A failed write removes the artifacts this build already wrote.
func (n *Node) emit(ctx context.Context, outDir string, artifacts []Artifact) error {
	if handler := n.opts.OutputHandler; handler != nil {
		absDir, err := filepath.Abs(outDir)
		if err != nil {
			return &OutputWriteError{Path: outDir, Err: err}
		}
		for _, artifact := range artifacts {
			target := filepath.Join(absDir, filepath.FromSlash(artifact.Path))
			if err := handler(ctx, target, artifact.Content); err != nil {
				return &OutputWriteError{Path: target, Err: err}
			}
			n.logger.Debug("artifact handled", "path", target, "size_bytes", len(artifact.Content))
		}
		return nil
	}

	var written []string
	for _, artifact := range artifacts {
		target := filepath.Join(outDir, filepath.FromSlash(artifact.Path))
		err := n.fs.MkdirAll(filepath.Dir(target), 0755)
		if err == nil {
			err = n.fs.WriteFile(target, artifact.Content, 0644)
		}
		if err != nil {
			return &OutputWriteError{Path: target, Err: errors.Join(err, n.rollback(written))}
		}
		written = append(written, target)
		n.logger.Debug("artifact written", "path", target, "size_bytes", len(artifact.Content))
	}
	return nil
}

func (n *Node) rollback(written []string) error {
	var errs []error
	for _, p := range written {
		if err := n.fs.Remove(p); err != nil {
			errs = append(errs, fmt.Errorf("removing partial output: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Read builds into a fresh temporary directory and returns it, so the
// node can serve as the upstream Tree of another node. The directory of
// the previous Read is removed first.
func (n *Node) Read(ctx context.Context) (string, error) {
	n.handle.mu.Lock()
	previous := n.handle.readDir
	n.handle.readDir = ""
	n.handle.released = false
	n.handle.mu.Unlock()

	if previous != "" {
		if err := n.fs.RemoveAll(previous); err != nil {
			return "", fmt.Errorf("removing previous output: %w", err)
		}
	}

	dir, err := n.fs.MkdirTemp("", "vulcanize-read-*")
	if err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := n.Build(ctx, dir); err != nil {
		return "", errors.Join(err, n.fs.RemoveAll(dir))
	}

	n.handle.mu.Lock()
	n.handle.readDir = dir
	n.handle.mu.Unlock()
	return dir, nil
}

// Cleanup removes the node's temporary output and releases the upstream
// tree. It is safe to call more than once and before any build.
func (n *Node) Cleanup() error {
	n.handle.mu.Lock()
	dir := n.handle.readDir
	n.handle.readDir = ""
	release := n.source.IsTree() && !n.handle.released
	n.handle.released = true
	n.handle.mu.Unlock()

	var errs []error
	if dir != "" {
		if err := n.fs.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("removing output: %w", err))
		}
	}
	if release {
		if err := n.source.tree.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("cleaning up upstream tree: %w", err))
		}
	}
	return errors.Join(errs...)
}
