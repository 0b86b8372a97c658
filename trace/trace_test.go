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
	"errors"
	"io/fs"
	"slices"
	"testing"

	"bennypowers.dev/vulcanize/testutil"
)

func TestExtractScripts(t *testing.T) {
	content := testutil.LoadFixtureFile(t, "fixtures/basic-index.html")

	scripts, err := ExtractScripts(content)
	if err != nil {
		t.Fatalf("ExtractScripts failed: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("Expected 2 scripts, got %d", len(scripts))
	}

	inline := scripts[0]
	if !inline.Inline || inline.Src != "" || !inline.Classic() {
		t.Errorf("Expected classic inline script, got %+v", inline)
	}
	if got := string(content[inline.Start:inline.End]); got[:len("<script>")] != "<script>" || got[len(got)-len("</script>"):] != "</script>" {
		t.Errorf("Expected byte range to cover the whole element, got %q", got)
	}

	module := scripts[1]
	if module.Type != "module" || module.Src != "js/app.js" || module.Inline {
		t.Errorf("Expected external module script, got %+v", module)
	}
	if module.Classic() {
		t.Error("Expected module script not to be classic")
	}
}

func TestScriptTagClassic(t *testing.T) {
	tests := []struct {
		typ  string
		want bool
	}{
		{"", true},
		{"text/javascript", true},
		{"application/javascript", true},
		{"module", false},
		{"text/template", false},
		{"application/json", false},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			if got := (ScriptTag{Type: tt.typ}).Classic(); got != tt.want {
				t.Errorf("Classic() for type %q = %v, want %v", tt.typ, got, tt.want)
			}
		})
	}
}

func TestExtractInlineModuleImports(t *testing.T) {
	content := []byte(`<script type="module">
  import { html } from 'lit';
  import './local.js';
</script>
<script>
  import('./dynamic.js');
</script>`)

	scripts, err := ExtractScripts(content)
	if err != nil {
		t.Fatalf("ExtractScripts failed: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("Expected 2 scripts, got %d", len(scripts))
	}
	if !slices.Equal(scripts[0].Imports, []string{"lit", "./local.js"}) {
		t.Errorf("Unexpected module imports: %v", scripts[0].Imports)
	}
	// Classic scripts only contribute dynamic imports
	if !slices.Equal(scripts[1].Imports, []string{"./dynamic.js"}) {
		t.Errorf("Unexpected classic imports: %v", scripts[1].Imports)
	}
}

func TestExtractScriptsTemplateAndEmptySrc(t *testing.T) {
	content := []byte(`<dom-module id="x"><template><script>inert()</script></template></dom-module>
<script src="">ignored()</script>
<script>live()</script>`)

	scripts, err := ExtractScripts(content)
	if err != nil {
		t.Fatalf("ExtractScripts failed: %v", err)
	}
	if len(scripts) != 3 {
		t.Fatalf("Expected 3 scripts, got %d", len(scripts))
	}
	if !scripts[0].InTemplate {
		t.Error("Expected template script to be marked InTemplate")
	}
	if !scripts[1].HasSrc || scripts[1].Inline {
		t.Errorf("Expected empty src to count as a src: %+v", scripts[1])
	}
	if scripts[2].InTemplate || scripts[2].HasSrc || !scripts[2].Inline {
		t.Errorf("Unexpected live script: %+v", scripts[2])
	}
}

func TestExtractLinks(t *testing.T) {
	content := []byte(`<head>
  <link rel="import" href="a.html">
  <link rel="Stylesheet" href=" theme.css ">
  <link rel="icon" href="favicon.ico"/>
</head>`)

	links, err := ExtractLinks(content)
	if err != nil {
		t.Fatalf("ExtractLinks failed: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("Expected 3 links, got %d", len(links))
	}
	if links[0].Rel != "import" || links[0].Href != "a.html" {
		t.Errorf("Unexpected first link: %+v", links[0])
	}
	if links[1].Rel != "stylesheet" || links[1].Href != "theme.css" {
		t.Errorf("Expected normalized rel and href, got %+v", links[1])
	}
	if got := string(content[links[0].Start:links[0].End]); got != `<link rel="import" href="a.html">` {
		t.Errorf("Unexpected link range: %q", got)
	}
}

func TestFindClosingTag(t *testing.T) {
	content := []byte("<html><head><title>x</title></head><body><p>hi</p></body></html>")

	head := FindClosingTag(content, "head")
	if head < 0 || string(content[head:head+7]) != "</head>" {
		t.Errorf("Expected offset of </head>, got %d", head)
	}
	body := FindClosingTag(content, "body")
	if body < 0 || string(content[body:body+7]) != "</body>" {
		t.Errorf("Expected offset of </body>, got %d", body)
	}
	if got := FindClosingTag([]byte("<div>no head</div>"), "head"); got != -1 {
		t.Errorf("Expected -1 without a head element, got %d", got)
	}
}

func TestExtractImports(t *testing.T) {
	content := testutil.LoadFixtureFile(t, "fixtures/js/app.js")

	imports, err := ExtractImports(content)
	if err != nil {
		t.Fatalf("ExtractImports failed: %v", err)
	}

	var specifiers []string
	var dynamic []string
	for _, imp := range imports {
		specifiers = append(specifiers, imp.Specifier)
		if imp.IsDynamic {
			dynamic = append(dynamic, imp.Specifier)
		}
	}
	for _, want := range []string{"lit", "./util.js", "lit/html.js", "./lazy.js"} {
		if !slices.Contains(specifiers, want) {
			t.Errorf("Expected %q in imports, got %v", want, specifiers)
		}
	}
	if !slices.Equal(dynamic, []string{"./lazy.js"}) {
		t.Errorf("Expected only ./lazy.js to be dynamic, got %v", dynamic)
	}
	if imports[0].Line != 1 {
		t.Errorf("Expected first import on line 1, got %d", imports[0].Line)
	}
}

func TestIsLocalURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"components/x-foo.html", true},
		{"../shared/x-bar.html", true},
		{"x-foo.html?v=2", true},
		{"", false},
		{"#top", false},
		{"/absolute/path.html", false},
		{"https://cdn.example.com/x.html", false},
		{"//cdn.example.com/x.html", false},
		{"data:text/html,hi", false},
		{"{{base}}/x.html", false},
		{"[[base]]/x.html", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsLocalURL(tt.url); got != tt.want {
				t.Errorf("IsLocalURL(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestTraceHTML(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/test")
	tracer := NewTracer(mfs, "/test")

	graph, err := tracer.TraceHTML("/test/basic-index.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}

	wantOrder := []string{
		"/test/components/x-base.html",
		"/test/components/x-greeting.html",
		"/test/basic-index.html",
	}
	if !slices.Equal(graph.Order, wantOrder) {
		t.Errorf("Expected dependencies-first order %v, got %v", wantOrder, graph.Order)
	}
	if len(graph.Cycles) != 0 {
		t.Errorf("Expected no cycles, got %v", graph.Cycles)
	}
	if len(graph.Errors) != 0 {
		t.Errorf("Expected no errors, got %v", graph.Errors)
	}

	wantModules := []string{"/test/js/app.js", "/test/js/lazy.js", "/test/js/util.js"}
	if !slices.Equal(graph.ModulePaths(), wantModules) {
		t.Errorf("Expected modules %v, got %v", wantModules, graph.ModulePaths())
	}
	if !slices.Equal(graph.BareSpecifiers(), []string{"lit", "lit/html.js"}) {
		t.Errorf("Unexpected bare specifiers: %v", graph.BareSpecifiers())
	}
}

func TestTraceHTMLCycles(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/test")
	tracer := NewTracer(mfs, "/test")

	graph, err := tracer.TraceHTML("/test/cyclic-dependency-index.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}

	// Each component appears exactly once despite the cycle
	wantOrder := []string{
		"/test/components/cyclic-b.html",
		"/test/components/cyclic-a.html",
		"/test/cyclic-dependency-index.html",
	}
	if !slices.Equal(graph.Order, wantOrder) {
		t.Errorf("Expected order %v, got %v", wantOrder, graph.Order)
	}
	wantCycles := []Edge{{From: "/test/components/cyclic-b.html", To: "/test/components/cyclic-a.html"}}
	if !slices.Equal(graph.Cycles, wantCycles) {
		t.Errorf("Expected cycles %v, got %v", wantCycles, graph.Cycles)
	}
}

func TestTraceHTMLMissingImport(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "missing", "/test")
	tracer := NewTracer(mfs, "/test")

	graph, err := tracer.TraceHTML("/test/index.html")
	if err != nil {
		t.Fatalf("Expected missing import to be non-fatal, got %v", err)
	}
	if len(graph.Errors) != 1 {
		t.Fatalf("Expected 1 error, got %v", graph.Errors)
	}
	if !errors.Is(graph.Errors[0], fs.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", graph.Errors[0])
	}
	if !slices.Equal(graph.Order, []string{"/test/index.html"}) {
		t.Errorf("Expected only the entry in order, got %v", graph.Order)
	}
}

func TestTraceHTMLMissingEntry(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/test")
	if _, err := NewTracer(mfs, "/test").TraceHTML("/test/nope.html"); err == nil {
		t.Error("Expected error for missing entrypoint")
	}
}

func TestWithoutModules(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/test")
	tracer := NewTracer(mfs, "/test").WithoutModules()

	graph, err := tracer.TraceHTML("/test/basic-index.html")
	if err != nil {
		t.Fatalf("TraceHTML failed: %v", err)
	}
	if !slices.Equal(graph.ModulePaths(), []string{"/test/js/app.js"}) {
		t.Errorf("Expected only the module script itself, got %v", graph.ModulePaths())
	}
	if len(graph.BareSpecifiers()) != 0 {
		t.Errorf("Expected no bare specifiers without reading modules, got %v", graph.BareSpecifiers())
	}
}

func TestTraceModule(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/test")

	graph, err := NewTracer(mfs, "/test").TraceModule("/test/js/app.js")
	if err != nil {
		t.Fatalf("TraceModule failed: %v", err)
	}
	if len(graph.Modules) != 3 {
		t.Errorf("Expected 3 modules, got %v", graph.ModulePaths())
	}
}

func TestReport(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "inline", "/test")

	report, err := TraceSingle(mfs, "/test/index.html", "/test", Options{SkipModules: true})
	if err != nil {
		t.Fatalf("TraceSingle failed: %v", err)
	}
	if report.Entrypoint != "index.html" {
		t.Errorf("Expected relative entrypoint, got %q", report.Entrypoint)
	}
	if !slices.Equal(report.Components, []string{"vendor/big.html", "index.html"}) {
		t.Errorf("Unexpected components: %v", report.Components)
	}
	if len(report.External) != 1 {
		t.Errorf("Expected one external import, got %v", report.External)
	}
	if !slices.Contains(report.Stylesheets, "css/theme.css") {
		t.Errorf("Expected css/theme.css in stylesheets, got %v", report.Stylesheets)
	}
}

func TestTraceBatch(t *testing.T) {
	mfs := testutil.NewFixtureFS(t, "fixtures", "/test")
	files := []string{
		"/test/basic-index.html",
		"/test/cyclic-dependency-index.html",
		"/test/nope.html",
	}

	results := make(map[string]BatchResult)
	for result := range TraceBatch(mfs, files, "/test", Options{Parallel: 2}) {
		results[result.File] = result
	}

	if len(results) != len(files) {
		t.Fatalf("Expected %d results, got %d", len(files), len(results))
	}
	if r := results["/test/basic-index.html"]; r.Error != "" || len(r.Report.Components) != 3 {
		t.Errorf("Unexpected basic result: %+v", r)
	}
	if r := results["/test/cyclic-dependency-index.html"]; r.Error != "" || len(r.Report.Cycles) != 1 {
		t.Errorf("Unexpected cyclic result: %+v", r)
	}
	if r := results["/test/nope.html"]; r.Error == "" {
		t.Error("Expected error for missing file")
	}
}
