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
	"strings"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// ExtractScripts parses HTML content and returns all script tags in
// document order, with the byte range each occupies in content.
func ExtractScripts(content []byte) ([]ScriptTag, error) {
	qm, err := GetQueryManager()
	if err != nil {
		return nil, err
	}

	parser := getHTMLParser()
	defer putHTMLParser(parser)

	tree := parser.Parse(content, nil)
	defer tree.Close()

	query, err := qm.Query("html", "scriptTags")
	if err != nil {
		return nil, err
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	var scripts []ScriptTag
	matches := cursor.Matches(query, tree.RootNode(), content)
	captureNames := query.CaptureNames()

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		script := ScriptTag{}
		var body string
		for _, capture := range match.Captures {
			switch captureNames[capture.Index] {
			case "script":
				script.Start = capture.Node.StartByte()
				script.End = capture.Node.EndByte()
				script.InTemplate = insideTemplate(&capture.Node, content)
			case "start":
				_, attrs := tagAttributes(&capture.Node, content)
				script.Type = attrs["type"]
				script.Src, script.HasSrc = attrs["src"]
			case "content":
				body = capture.Node.Utf8Text(content)
			}
		}

		if rawContent := strings.TrimSpace(body); rawContent != "" && !script.HasSrc {
			script.Content = rawContent
			script.Inline = true
		}

		// Parse imports from inline content (best-effort; syntax errors are ignored)
		// Handle both type="module" (static + dynamic) and regular scripts (dynamic only)
		if script.Inline {
			imports, _ := ExtractImports([]byte(script.Content))
			for _, imp := range imports {
				if script.Type == "module" || imp.IsDynamic {
					script.Imports = append(script.Imports, imp.Specifier)
				}
			}
		}

		scripts = append(scripts, script)
	}

	return scripts, nil
}

// ExtractLinks parses HTML content and returns all <link> elements in
// document order.
func ExtractLinks(content []byte) ([]LinkTag, error) {
	qm, err := GetQueryManager()
	if err != nil {
		return nil, err
	}

	parser := getHTMLParser()
	defer putHTMLParser(parser)

	tree := parser.Parse(content, nil)
	defer tree.Close()

	query, err := qm.Query("html", "elements")
	if err != nil {
		return nil, err
	}

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	var links []LinkTag
	matches := cursor.Matches(query, tree.RootNode(), content)
	captureNames := query.CaptureNames()

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		var link LinkTag
		var isLink bool
		for _, capture := range match.Captures {
			if captureNames[capture.Index] != "start" {
				continue
			}
			name, attrs := tagAttributes(&capture.Node, content)
			if name != "link" {
				break
			}
			isLink = true
			link.Rel = strings.ToLower(strings.TrimSpace(attrs["rel"]))
			link.Href = strings.TrimSpace(attrs["href"])
			link.Start = capture.Node.StartByte()
			link.End = capture.Node.EndByte()
		}
		if isLink {
			links = append(links, link)
		}
	}

	return links, nil
}

// FindClosingTag returns the byte offset of the end tag of the first
// element named tagName (e.g. "head"), or -1 if there is none.
func FindClosingTag(content []byte, tagName string) int {
	parser := getHTMLParser()
	defer putHTMLParser(parser)

	tree := parser.Parse(content, nil)
	defer tree.Close()

	return findClosingTag(tree.RootNode(), content, tagName)
}

func findClosingTag(node *ts.Node, content []byte, tagName string) int {
	if node.Kind() == "element" {
		var name string
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch child.Kind() {
			case "start_tag":
				name, _ = tagAttributes(child, content)
			case "end_tag":
				if name == tagName {
					return int(child.StartByte())
				}
			}
		}
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if offset := findClosingTag(node.NamedChild(i), content, tagName); offset >= 0 {
			return offset
		}
	}
	return -1
}

// insideTemplate reports whether node has a <template> element ancestor.
func insideTemplate(node *ts.Node, content []byte) bool {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Kind() != "element" || parent.NamedChildCount() == 0 {
			continue
		}
		start := parent.NamedChild(0)
		if start.Kind() != "start_tag" {
			continue
		}
		if name, _ := tagAttributes(start, content); name == "template" {
			return true
		}
	}
	return false
}

// tagAttributes reads the lowercased tag name and attributes of a
// start_tag or self_closing_tag node. Attributes without a value map to "".
func tagAttributes(tag *ts.Node, content []byte) (string, map[string]string) {
	var name string
	attrs := make(map[string]string)
	for i := uint(0); i < tag.NamedChildCount(); i++ {
		child := tag.NamedChild(i)
		switch child.Kind() {
		case "tag_name":
			name = strings.ToLower(child.Utf8Text(content))
		case "attribute":
			var key, value string
			for j := uint(0); j < child.NamedChildCount(); j++ {
				part := child.NamedChild(j)
				switch part.Kind() {
				case "attribute_name":
					key = strings.ToLower(part.Utf8Text(content))
				case "attribute_value":
					value = part.Utf8Text(content)
				case "quoted_attribute_value":
					if part.NamedChildCount() > 0 {
						value = part.NamedChild(0).Utf8Text(content)
					}
				}
			}
			if _, seen := attrs[key]; key != "" && !seen {
				attrs[key] = value
			}
		}
	}
	return name, attrs
}
