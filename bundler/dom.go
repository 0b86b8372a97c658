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

package bundler

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"bennypowers.dev/vulcanize/trace"
)

// urlAttrs are the attributes whose values are rewritten when a document
// is inlined into another directory.
var urlAttrs = map[string]bool{
	"src":       true,
	"href":      true,
	"action":    true,
	"assetpath": true,
}

var cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")\s]+)(['"]?)\s*\)`)

// findNodes returns all nodes under root matching pred, in document order.
func findNodes(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if pred(n) {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// findElements is findNodes restricted to element nodes.
func findElements(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	return findNodes(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && pred(n)
	})
}

// findFirst returns the first element with the given atom, or nil.
func findFirst(root *html.Node, a atom.Atom) *html.Node {
	if root.Type == html.ElementNode && root.DataAtom == a {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findFirst(c, a); n != nil {
			return n
		}
	}
	return nil
}

// moveChildren moves all children of from into to, before the node
// before (or at the end when before is nil).
func moveChildren(from, to, before *html.Node) {
	for c := from.FirstChild; c != nil; {
		next := c.NextSibling
		from.RemoveChild(c)
		to.InsertBefore(c, before)
		c = next
	}
}

func isImportLink(n *html.Node) bool {
	return n.DataAtom == atom.Link && relIs(n, "import") && getAttr(n, "href") != ""
}

// relIs reports whether the rel attribute contains the given token.
func relIs(n *html.Node, token string) bool {
	for _, rel := range strings.Fields(strings.ToLower(getAttr(n, "rel"))) {
		if rel == token {
			return true
		}
	}
	return false
}

func inHead(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.DataAtom == atom.Head {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return true
		}
	}
	return false
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, attr := range n.Attr {
		if attr.Namespace != "" || attr.Key != key {
			attrs = append(attrs, attr)
		}
	}
	n.Attr = attrs
}

// rebaseURL rewrites a URL relative to fromDir so that it resolves to
// the same file from toDir. Non-local URLs are returned unchanged.
func rebaseURL(raw, fromDir, toDir string) string {
	if !trace.IsLocalURL(raw) {
		return raw
	}
	p := stripQuery(raw)
	suffix := raw[len(p):]
	rel, err := filepath.Rel(toDir, filepath.Join(fromDir, filepath.FromSlash(p)))
	if err != nil {
		return raw
	}
	rebased := filepath.ToSlash(rel)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(rebased, "/") {
		rebased += "/"
	}
	return rebased + suffix
}

// rewriteCSSURLs applies fn to every url(...) reference in css.
func rewriteCSSURLs(css string, fn func(string) string) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		parts := cssURLPattern.FindStringSubmatch(match)
		return "url(" + parts[1] + fn(parts[2]) + parts[3] + ")"
	})
}

// stripQuery drops any query string or fragment from a URL.
func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
