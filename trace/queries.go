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
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsHtml "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

//go:embed queries/*/*.scm
var queryFiles embed.FS

// grammar is a tree-sitter language with its pool of parsers.
type grammar struct {
	lang    *ts.Language
	parsers sync.Pool
}

func newGrammar(name string, lang *ts.Language) *grammar {
	g := &grammar{lang: lang}
	g.parsers.New = func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(lang); err != nil {
			panic("failed to set " + name + " language: " + err.Error())
		}
		return parser
	}
	return g
}

func (g *grammar) get() *ts.Parser {
	return g.parsers.Get().(*ts.Parser)
}

func (g *grammar) put(p *ts.Parser) {
	p.Reset()
	g.parsers.Put(p)
}

// grammars are keyed by the directory their queries live in.
var grammars = map[string]*grammar{
	"html":       newGrammar("HTML", ts.NewLanguage(tsHtml.Language())),
	"typescript": newGrammar("TypeScript", ts.NewLanguage(tsTypescript.LanguageTypescript())),
}

func getHTMLParser() *ts.Parser  { return grammars["html"].get() }
func putHTMLParser(p *ts.Parser) { grammars["html"].put(p) }
func getTSParser() *ts.Parser    { return grammars["typescript"].get() }
func putTSParser(p *ts.Parser)   { grammars["typescript"].put(p) }

// QueryManager holds compiled tree-sitter queries by language and name.
type QueryManager struct {
	mu      sync.Mutex
	closed  bool
	queries map[string]map[string]*ts.Query
}

// NewQueryManager compiles the named queries for each language, e.g.
// {"html": {"scriptTags"}}.
func NewQueryManager(names map[string][]string) (*QueryManager, error) {
	qm := &QueryManager{queries: make(map[string]map[string]*ts.Query)}
	for language, list := range names {
		for _, name := range list {
			if err := qm.loadQuery(language, name); err != nil {
				qm.Close()
				return nil, err
			}
		}
	}
	return qm, nil
}

func (qm *QueryManager) loadQuery(language, name string) error {
	g, ok := grammars[language]
	if !ok {
		return fmt.Errorf("unknown language: %s", language)
	}

	queryPath := path.Join("queries", language, name+".scm")
	data, err := queryFiles.ReadFile(queryPath)
	if err != nil {
		return fmt.Errorf("failed to read query %s: %w", queryPath, err)
	}

	query, qerr := ts.NewQuery(g.lang, string(data))
	if qerr != nil {
		return fmt.Errorf("failed to parse query %s: %w", queryPath, qerr)
	}

	if qm.queries[language] == nil {
		qm.queries[language] = make(map[string]*ts.Query)
	}
	qm.queries[language][name] = query
	return nil
}

// Close releases all query resources. Safe to call multiple times.
func (qm *QueryManager) Close() {
	qm.mu.Lock()
	if qm.closed {
		qm.mu.Unlock()
		return
	}
	qm.closed = true
	queries := qm.queries
	qm.queries = nil
	qm.mu.Unlock()

	for _, byName := range queries {
		for _, q := range byName {
			q.Close()
		}
	}
}

// Query returns a query by language and name.
func (qm *QueryManager) Query(language, name string) (*ts.Query, error) {
	q, ok := qm.queries[language][name]
	if !ok {
		return nil, fmt.Errorf("query not found: %s/%s", language, name)
	}
	return q, nil
}

var (
	globalQM     *QueryManager
	globalQMOnce sync.Once
	globalQMErr  error
)

// GetQueryManager returns the process-wide query manager.
func GetQueryManager() (*QueryManager, error) {
	globalQMOnce.Do(func() {
		globalQM, globalQMErr = NewQueryManager(map[string][]string{
			"html":       {"scriptTags", "elements"},
			"typescript": {"imports"},
		})
	})
	return globalQM, globalQMErr
}

// ScriptTag represents a <script> tag found in HTML.
type ScriptTag struct {
	Type    string   // The type attribute (e.g., "module")
	Src     string   // The src attribute (external script)
	HasSrc  bool     // True if the src attribute is present, even empty
	Inline  bool     // True if script has inline content
	Content string   // The inline script content, trimmed
	Imports []string // Import specifiers found in inline content
	Start   uint     // Byte offset of the opening "<script"
	End     uint     // Byte offset just past "</script>"
	// InTemplate is set for scripts inside <template> content, which is
	// inert until cloned into the document.
	InTemplate bool
}

// Classic reports whether the script runs as a classic (non-module)
// JavaScript script.
func (s ScriptTag) Classic() bool {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "", "text/javascript", "application/javascript", "application/ecmascript",
		"text/ecmascript", "javascript":
		return true
	}
	return false
}

// LinkTag represents a <link> element found in HTML.
type LinkTag struct {
	Rel   string // The rel attribute, lowercased
	Href  string // The href attribute
	Start uint   // Byte offset of the opening "<link"
	End   uint   // Byte offset just past the tag
}

// ModuleImport represents an import statement in a module.
type ModuleImport struct {
	Specifier string // The import specifier (e.g., "lit", "./foo.js")
	IsDynamic bool   // True if this is a dynamic import()
	Line      int    // 1-indexed line of the specifier
}
