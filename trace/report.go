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

package trace

import (
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"bennypowers.dev/vulcanize/fs"
)

// Options configures report generation.
type Options struct {
	// Parallel is the number of parallel workers for batch mode.
	// Defaults to runtime.NumCPU() if <= 0.
	Parallel int
	// SkipModules records module script specifiers without reading
	// the module files.
	SkipModules bool
}

// Report is the portable form of a traced graph: paths are relative to
// the root directory and all lists are sorted or in inline order.
type Report struct {
	Entrypoint     string   `json:"entrypoint" yaml:"entrypoint"`
	Components     []string `json:"components" yaml:"components"`
	Cycles         []Edge   `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	External       []string `json:"external,omitempty" yaml:"external,omitempty"`
	Stylesheets    []string `json:"stylesheets,omitempty" yaml:"stylesheets,omitempty"`
	Modules        []string `json:"modules,omitempty" yaml:"modules,omitempty"`
	BareSpecifiers []string `json:"bare_specifiers,omitempty" yaml:"bare_specifiers,omitempty"`
	Errors         []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// BatchResult holds the result of tracing a single file in batch mode.
type BatchResult struct {
	File   string  `json:"file" yaml:"file"`
	Report *Report `json:"report,omitempty" yaml:"report,omitempty"`
	Error  string  `json:"error,omitempty" yaml:"error,omitempty"`
}

func newTracer(osfs fs.FileSystem, absRoot string, opts Options) *Tracer {
	tracer := NewTracer(osfs, absRoot)
	if opts.SkipModules {
		tracer = tracer.WithoutModules()
	}
	return tracer
}

// TraceSingle traces a single HTML file and builds its report.
func TraceSingle(osfs fs.FileSystem, htmlFile, absRoot string, opts Options) (*Report, error) {
	graph, err := newTracer(osfs, absRoot, opts).TraceHTML(htmlFile)
	if err != nil {
		return nil, err
	}
	return graph.Report(absRoot), nil
}

// TraceBatch traces multiple HTML files in parallel.
// Returns a channel of BatchResults that will be closed when all files are processed.
func TraceBatch(osfs fs.FileSystem, files []string, absRoot string, opts Options) <-chan BatchResult {
	results := make(chan BatchResult, len(files))

	go func() {
		defer close(results)

		parallel := opts.Parallel
		if parallel <= 0 {
			parallel = runtime.NumCPU()
		}

		// Shared tracer so components imported by many entrypoints parse once
		tracer := newTracer(osfs, absRoot, opts)

		jobs := make(chan string, len(files))

		var wg sync.WaitGroup
		for range parallel {
			wg.Go(func() {
				for htmlFile := range jobs {
					result := BatchResult{File: htmlFile}
					graph, err := tracer.TraceHTML(htmlFile)
					if err != nil {
						result.Error = err.Error()
					} else {
						result.Report = graph.Report(absRoot)
					}
					results <- result
				}
			})
		}

		for _, file := range files {
			jobs <- file
		}
		close(jobs)

		wg.Wait()
	}()

	return results
}

// Report converts the graph into a Report with paths relative to rootDir.
func (g *Graph) Report(rootDir string) *Report {
	// Convert absolute paths to relative for portable output
	relativize := func(absPath string) string {
		if rel, err := filepath.Rel(rootDir, absPath); err == nil {
			return filepath.ToSlash(rel)
		}
		return absPath
	}

	report := &Report{
		Entrypoint:     relativize(g.Entrypoint),
		BareSpecifiers: g.BareSpecifiers(),
	}
	external := make(map[string]bool)
	stylesheets := make(map[string]bool)
	for _, p := range g.Order {
		report.Components = append(report.Components, relativize(p))
		for _, href := range g.Components[p].External {
			external[href] = true
		}
		for _, href := range g.Components[p].Stylesheets {
			stylesheets[href] = true
		}
	}
	report.External = sortedKeys(external)
	report.Stylesheets = sortedKeys(stylesheets)
	for _, edge := range g.Cycles {
		report.Cycles = append(report.Cycles, Edge{From: relativize(edge.From), To: relativize(edge.To)})
	}
	for _, p := range g.ModulePaths() {
		report.Modules = append(report.Modules, relativize(p))
	}
	for _, err := range g.Errors {
		report.Errors = append(report.Errors, err.Error())
	}
	return report
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
