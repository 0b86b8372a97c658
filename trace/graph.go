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

// Package trace walks the HTML import graph of a web component entry
// point: which components it pulls in, in what order, which of those
// imports form cycles, and which ES modules the components load.
package trace

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"bennypowers.dev/vulcanize/fs"
)

// Graph represents the traced HTML import graph of an entry document.
type Graph struct {
	// Entrypoint is the path of the traced HTML document.
	Entrypoint string
	// Components maps component paths to their parsed information.
	Components map[string]*Component
	// Order lists component paths dependencies-first, ending with the
	// entrypoint. This is the order in which a bundler inlines them.
	Order []string
	// Cycles lists the import edges that close a cycle.
	Cycles []Edge
	// Modules maps ES module paths to their parsed imports.
	Modules map[string]*Module
	// Errors collects non-fatal errors encountered during tracing
	Errors []error
	// bareSpecifiers collects all bare import specifiers from module scripts
	bareSpecifiers map[string]bool
}

// Component is one HTML document in the import graph.
type Component struct {
	Path        string      // Path to the HTML file
	Imports     []string    // Resolved paths of local HTML imports, in document order
	External    []string    // Import hrefs that are not local files
	Stylesheets []string    // Stylesheet hrefs
	Scripts     []ScriptTag // Script tags in document order
}

// Module represents a parsed ES module.
type Module struct {
	Path    string         // Path to the module file
	Imports []ModuleImport // All imports found in the module
}

// Edge is a directed import edge between two components.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Tracer traces HTML import graphs.
type Tracer struct {
	fs      fs.FileSystem
	rootDir string
	// componentCache caches parsed components by path (thread-safe).
	// Pointer is used so caches can be shared across builder method calls.
	componentCache *sync.Map // map[string]*Component
	// moduleCache caches parsed modules by path (thread-safe).
	moduleCache *sync.Map // map[string]*Module
	// followModules controls whether relative ES module imports are traced.
	followModules bool
}

// NewTracer creates a new tracer rooted at rootDir. Root-absolute URLs
// ("/foo.js") resolve against rootDir.
func NewTracer(fs fs.FileSystem, rootDir string) *Tracer {
	return &Tracer{
		fs:             fs,
		rootDir:        rootDir,
		componentCache: &sync.Map{},
		moduleCache:    &sync.Map{},
		followModules:  true,
	}
}

// WithoutModules returns a tracer that records module script specifiers
// but does not read the module files they point to.
func (t *Tracer) WithoutModules() *Tracer {
	return &Tracer{
		fs:             t.fs,
		rootDir:        t.rootDir,
		componentCache: t.componentCache,
		moduleCache:    t.moduleCache,
		followModules:  false,
	}
}

// visit states for cycle detection.
const (
	unvisited = iota
	visiting
	visited
)

// TraceHTML traces the import graph starting at an HTML file.
// A missing entrypoint is an error; missing imports are recorded in
// Graph.Errors.
func (t *Tracer) TraceHTML(htmlPath string) (*Graph, error) {
	entry, err := t.loadComponent(htmlPath)
	if err != nil {
		return nil, err
	}

	graph := &Graph{
		Entrypoint:     htmlPath,
		Components:     make(map[string]*Component),
		Modules:        make(map[string]*Module),
		bareSpecifiers: make(map[string]bool),
	}

	state := make(map[string]int)
	var walk func(c *Component)
	walk = func(c *Component) {
		state[c.Path] = visiting
		graph.Components[c.Path] = c
		t.traceScripts(graph, c)
		for _, dep := range c.Imports {
			switch state[dep] {
			case visiting:
				graph.Cycles = append(graph.Cycles, Edge{From: c.Path, To: dep})
				continue
			case visited:
				continue
			}
			child, err := t.loadComponent(dep)
			if err != nil {
				graph.Errors = append(graph.Errors, fmt.Errorf("tracing %s: %w", dep, err))
				state[dep] = visited
				continue
			}
			walk(child)
		}
		state[c.Path] = visited
		graph.Order = append(graph.Order, c.Path)
	}
	walk(entry)

	return graph, nil
}

// loadComponent reads and parses an HTML component, using the cache.
func (t *Tracer) loadComponent(htmlPath string) (*Component, error) {
	if cached, ok := t.componentCache.Load(htmlPath); ok {
		return cached.(*Component), nil
	}

	content, err := t.fs.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}

	links, err := ExtractLinks(content)
	if err != nil {
		return nil, err
	}
	scripts, err := ExtractScripts(content)
	if err != nil {
		return nil, err
	}

	c := &Component{Path: htmlPath, Scripts: scripts}
	htmlDir := filepath.Dir(htmlPath)
	for _, link := range links {
		switch link.Rel {
		case "import":
			if IsLocalURL(link.Href) {
				c.Imports = append(c.Imports, t.resolvePath(htmlDir, link.Href))
			} else if link.Href != "" {
				c.External = append(c.External, link.Href)
			}
		case "stylesheet":
			c.Stylesheets = append(c.Stylesheets, link.Href)
		}
	}

	t.componentCache.Store(htmlPath, c)
	return c, nil
}

// traceScripts records module specifiers used by a component's scripts.
func (t *Tracer) traceScripts(graph *Graph, c *Component) {
	htmlDir := filepath.Dir(c.Path)
	for _, script := range c.Scripts {
		if script.Type != "module" {
			continue
		}
		if script.Src != "" {
			if !IsLocalURL(script.Src) && !isRootRelative(script.Src) {
				continue
			}
			modulePath := t.resolvePath(htmlDir, script.Src)
			if err := t.traceModule(graph, modulePath); err != nil {
				graph.Errors = append(graph.Errors, fmt.Errorf("tracing %s: %w", modulePath, err))
			}
			continue
		}
		for _, imp := range script.Imports {
			t.followImport(graph, htmlDir, imp)
		}
	}
}

// TraceModule traces the module graph starting from a single module file.
func (t *Tracer) TraceModule(modulePath string) (*Graph, error) {
	graph := &Graph{
		Components:     make(map[string]*Component),
		Modules:        make(map[string]*Module),
		bareSpecifiers: make(map[string]bool),
	}
	if err := t.traceModule(graph, modulePath); err != nil {
		return nil, err
	}
	return graph, nil
}

// traceModule recursively traces a module and its relative dependencies.
func (t *Tracer) traceModule(graph *Graph, modulePath string) error {
	if _, exists := graph.Modules[modulePath]; exists {
		return nil
	}

	var mod *Module
	if cached, ok := t.moduleCache.Load(modulePath); ok {
		mod = cached.(*Module)
	} else {
		if !t.followModules {
			mod = &Module{Path: modulePath}
		} else {
			content, err := t.fs.ReadFile(modulePath)
			if err != nil {
				return err
			}
			imports, err := ExtractImports(content)
			if err != nil {
				return err
			}
			mod = &Module{Path: modulePath, Imports: imports}
			t.moduleCache.Store(modulePath, mod)
		}
	}

	graph.Modules[modulePath] = mod

	moduleDir := filepath.Dir(modulePath)
	for _, imp := range mod.Imports {
		t.followImport(graph, moduleDir, imp.Specifier)
	}
	return nil
}

// followImport records a bare specifier or traces a relative module.
func (t *Tracer) followImport(graph *Graph, baseDir, specifier string) {
	if isBareSpecifier(specifier) {
		graph.bareSpecifiers[specifier] = true
		return
	}
	if !IsLocalURL(specifier) && !isRootRelative(specifier) {
		return
	}
	depPath := t.resolvePath(baseDir, specifier)
	if err := t.traceModule(graph, depPath); err != nil {
		graph.Errors = append(graph.Errors, fmt.Errorf("tracing %s: %w", depPath, err))
	}
}

func isRootRelative(specifier string) bool {
	return len(specifier) > 1 && specifier[0] == '/' && specifier[1] != '/'
}

// BareSpecifiers returns a sorted slice of all bare specifiers found.
func (g *Graph) BareSpecifiers() []string {
	specifiers := make([]string, 0, len(g.bareSpecifiers))
	for spec := range g.bareSpecifiers {
		specifiers = append(specifiers, spec)
	}
	sort.Strings(specifiers)
	return specifiers
}

// ModulePaths returns the sorted paths of all traced ES modules.
func (g *Graph) ModulePaths() []string {
	paths := make([]string, 0, len(g.Modules))
	for p := range g.Modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
