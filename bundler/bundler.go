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

// Package bundler inlines HTML imports into a single document.
//
// Starting from an entry document, every local <link rel="import"> is
// replaced by the contents of the document it points to, recursively.
// Each document is inlined at most once, so import cycles terminate and
// shared dependencies are not duplicated. URLs inside inlined documents
// are rewritten so they still resolve from the entry document's directory.
package bundler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bennypowers.dev/vulcanize/fs"
	"bennypowers.dev/vulcanize/trace"
)

// Options configures what the bundler inlines besides HTML imports.
type Options struct {
	// InlineScripts replaces local <script src> with the script body.
	// Module scripts are left alone so their relative imports still resolve.
	InlineScripts bool
	// InlineCSS replaces local stylesheet links with <style> elements.
	InlineCSS bool
	// StripComments removes HTML comments, except those containing @license.
	StripComments bool
	// Excludes lists doublestar patterns, relative to the source root, of
	// imports to leave as links.
	Excludes []string
}

// Vulcanizer bundles HTML imports read from a FileSystem.
type Vulcanizer struct {
	fs     fs.FileSystem
	opts   Options
	logger *slog.Logger
}

// New creates a bundler that reads sources from fsys.
func New(fsys fs.FileSystem) *Vulcanizer {
	return &Vulcanizer{fs: fsys, logger: slog.Default()}
}

// WithOptions returns a copy of the bundler using opts.
func (v *Vulcanizer) WithOptions(opts Options) *Vulcanizer {
	opts.Excludes = slices.Clone(opts.Excludes)
	return &Vulcanizer{fs: v.fs, opts: opts, logger: v.logger}
}

// WithLogger returns a copy of the bundler logging to logger.
func (v *Vulcanizer) WithLogger(logger *slog.Logger) *Vulcanizer {
	return &Vulcanizer{fs: v.fs, opts: v.opts, logger: logger}
}

// ValidateExcludes reports the first malformed exclude pattern.
func ValidateExcludes(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return nil
}

// Bundle inlines the imports of entry, a slash-separated path relative to
// dir, and returns the rendered document.
func (v *Vulcanizer) Bundle(ctx context.Context, dir, entry string) ([]byte, error) {
	if err := ValidateExcludes(v.opts.Excludes); err != nil {
		return nil, err
	}

	entryPath := filepath.Join(dir, filepath.FromSlash(entry))
	content, err := v.fs.ReadFile(entryPath)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", entry, err)
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", entry, err)
	}

	b := &bundle{
		ctx:     ctx,
		v:       v,
		rootDir: dir,
		baseDir: filepath.Dir(entryPath),
		seen:    map[string]bool{entryPath: true},
	}

	if err := b.inlineImports(doc, entry); err != nil {
		return nil, err
	}
	if v.opts.InlineScripts {
		if err := b.inlineScripts(doc); err != nil {
			return nil, err
		}
	}
	if v.opts.InlineCSS {
		if err := b.inlineStylesheets(doc); err != nil {
			return nil, err
		}
	}
	if v.opts.StripComments {
		stripComments(doc)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", entry, err)
	}

	v.logger.Debug("bundled entry",
		"entry", entry,
		"components", len(b.seen),
		"size_bytes", buf.Len(),
	)

	return buf.Bytes(), nil
}

// bundle holds the state of a single Bundle call.
type bundle struct {
	ctx     context.Context
	v       *Vulcanizer
	rootDir string
	// baseDir is the entry document's directory; every URL in the output
	// tree is relative to it.
	baseDir string
	// seen holds the paths of documents already inlined, entry included.
	seen map[string]bool
	// hidden collects the contents of imports found in <head>.
	hidden *html.Node
}

// inlineImports replaces each HTML import under root, in document order.
// importer names the document root came from, for error messages.
func (b *bundle) inlineImports(root *html.Node, importer string) error {
	for _, link := range findElements(root, isImportLink) {
		if err := b.inlineImport(link, importer); err != nil {
			return err
		}
	}
	return nil
}

func (b *bundle) inlineImport(link *html.Node, importer string) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}

	href := getAttr(link, "href")
	if !trace.IsLocalURL(href) {
		return nil
	}

	importPath := filepath.Join(b.baseDir, filepath.FromSlash(stripQuery(href)))
	if b.excluded(importPath) {
		return nil
	}

	if b.seen[importPath] {
		link.Parent.RemoveChild(link)
		return nil
	}
	b.seen[importPath] = true

	content, err := b.v.fs.ReadFile(importPath)
	if err != nil {
		return fmt.Errorf("import %q in %s: %w", href, importer, err)
	}
	imported, err := b.parseImport(content, filepath.Dir(importPath))
	if err != nil {
		return fmt.Errorf("import %q in %s: %w", href, importer, err)
	}

	// Nested imports first, so dependencies precede their dependents
	if err := b.inlineImports(imported, b.rel(importPath)); err != nil {
		return err
	}

	if inHead(link) {
		moveChildren(imported, b.hiddenContainer(link), nil)
	} else {
		moveChildren(imported, link.Parent, link)
	}
	link.Parent.RemoveChild(link)
	return nil
}

// parseImport parses an imported document and returns a detached
// container holding its head and body content, with URLs rewritten
// relative to the entry document.
func (b *bundle) parseImport(content []byte, docDir string) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, section := range []atom.Atom{atom.Head, atom.Body} {
		if n := findFirst(doc, section); n != nil {
			moveChildren(n, container, nil)
		}
	}

	rebase := func(raw string) string {
		return rebaseURL(raw, docDir, b.baseDir)
	}
	for _, el := range findElements(container, func(*html.Node) bool { return true }) {
		for i, attr := range el.Attr {
			if urlAttrs[attr.Key] && attr.Namespace == "" {
				el.Attr[i].Val = rebase(attr.Val)
			}
		}
		if el.DataAtom == atom.Style {
			for c := el.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					c.Data = rewriteCSSURLs(c.Data, rebase)
				}
			}
		}
	}
	return container, nil
}

// hiddenContainer returns the hidden div at the start of <body> that
// holds imports relocated out of <head>, creating it on first use.
func (b *bundle) hiddenContainer(from *html.Node) *html.Node {
	if b.hidden != nil {
		return b.hidden
	}
	root := from
	for root.Parent != nil {
		root = root.Parent
	}
	body := findFirst(root, atom.Body)
	b.hidden = &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "hidden"},
			{Key: "by-vulcanize"},
		},
	}
	body.InsertBefore(b.hidden, body.FirstChild)
	return b.hidden
}

// excluded reports whether an import path matches an exclude pattern.
func (b *bundle) excluded(importPath string) bool {
	if len(b.v.opts.Excludes) == 0 {
		return false
	}
	rel := b.rel(importPath)
	for _, pattern := range b.v.opts.Excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// rel returns p relative to the source root, slash-separated.
func (b *bundle) rel(p string) string {
	if rel, err := filepath.Rel(b.rootDir, p); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(p)
}

// inlineScripts replaces local classic <script src> elements with their
// contents.
func (b *bundle) inlineScripts(doc *html.Node) error {
	scripts := findElements(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Script && hasAttr(n, "src") && getAttr(n, "type") != "module"
	})
	for _, script := range scripts {
		src := getAttr(script, "src")
		if !trace.IsLocalURL(src) {
			continue
		}
		content, err := b.readAsset(src)
		if err != nil {
			return fmt.Errorf("inlining script %q: %w", src, err)
		}
		removeAttr(script, "src")
		for script.FirstChild != nil {
			script.RemoveChild(script.FirstChild)
		}
		script.AppendChild(&html.Node{Type: html.TextNode, Data: escapeScript(string(content))})
	}
	return nil
}

// inlineStylesheets replaces local stylesheet links with <style> elements.
func (b *bundle) inlineStylesheets(doc *html.Node) error {
	links := findElements(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Link && relIs(n, "stylesheet")
	})
	for _, link := range links {
		href := getAttr(link, "href")
		if !trace.IsLocalURL(href) {
			continue
		}
		content, err := b.readAsset(href)
		if err != nil {
			return fmt.Errorf("inlining stylesheet %q: %w", href, err)
		}
		cssDir := filepath.Dir(filepath.Join(b.baseDir, filepath.FromSlash(stripQuery(href))))
		css := rewriteCSSURLs(string(content), func(raw string) string {
			return rebaseURL(raw, cssDir, b.baseDir)
		})

		style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
		if media := getAttr(link, "media"); media != "" {
			style.Attr = append(style.Attr, html.Attribute{Key: "media", Val: media})
		}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
		link.Parent.InsertBefore(style, link)
		link.Parent.RemoveChild(link)
	}
	return nil
}

func (b *bundle) readAsset(raw string) ([]byte, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, err
	}
	return b.v.fs.ReadFile(filepath.Join(b.baseDir, filepath.FromSlash(stripQuery(raw))))
}

// stripComments removes comment nodes that do not carry a license.
func stripComments(doc *html.Node) {
	comments := findNodes(doc, func(n *html.Node) bool {
		return n.Type == html.CommentNode && !strings.Contains(n.Data, "@license")
	})
	for _, c := range comments {
		c.Parent.RemoveChild(c)
	}
}

// escapeScript keeps a script body from closing its own element.
func escapeScript(js string) string {
	js = strings.ReplaceAll(js, "</script", `<\/script`)
	return strings.ReplaceAll(js, "</SCRIPT", `<\/SCRIPT`)
}
