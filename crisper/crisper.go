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

// Package crisper splits inline JavaScript out of a bundled HTML document
// into a separate script file, as required by content security policies
// that forbid inline script.
package crisper

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"bennypowers.dev/vulcanize/trace"
)

// Options configures a split.
type Options struct {
	// ScriptSrc is the URL of the extracted script, relative to the HTML.
	ScriptSrc string
	// InBody places the script reference at the end of <body> instead of
	// a deferred reference at the end of <head>.
	InBody bool
}

// Result holds the split artifacts.
type Result struct {
	// HTML is the document without its inline classic scripts.
	HTML []byte
	// JS is the extracted script, in document order.
	JS []byte
	// Extracted counts the inline scripts moved into JS.
	Extracted int
}

// Split extracts inline classic scripts from content. Module and JSON
// scripts, scripts with a src attribute and scripts inside <template>
// content are kept in place.
func Split(content []byte, opts Options) (*Result, error) {
	if opts.ScriptSrc == "" {
		return nil, fmt.Errorf("script src is required")
	}

	scripts, err := trace.ExtractScripts(content)
	if err != nil {
		return nil, fmt.Errorf("finding scripts: %w", err)
	}

	var js strings.Builder
	var out []byte
	result := &Result{}
	last := uint(0)
	for _, script := range scripts {
		if script.HasSrc || script.InTemplate || !script.Classic() {
			continue
		}
		// Remove the element even when its body is empty
		out = append(out, content[last:script.Start]...)
		last = script.End
		if !script.Inline {
			continue
		}
		js.WriteString(terminate(script.Content))
		js.WriteString("\n")
		result.Extracted++
	}
	out = append(out, content[last:]...)

	result.HTML = insertReference(out, opts)
	result.JS = []byte(js.String())
	return result, nil
}

// terminate ensures a script body ends with a statement terminator, so
// concatenated bodies cannot merge into one expression. A last line that
// may end in a line comment gets the terminator on a line of its own.
func terminate(body string) string {
	lastLine := body[strings.LastIndex(body, "\n")+1:]
	if strings.Contains(lastLine, "//") {
		return body + "\n;"
	}
	if strings.HasSuffix(body, ";") {
		return body
	}
	return body + ";"
}

// insertReference adds the external script tag to the document.
func insertReference(content []byte, opts Options) []byte {
	src := html.EscapeString(opts.ScriptSrc)
	tag := fmt.Sprintf(`<script src="%s" defer></script>`, src)
	closing := "head"
	if opts.InBody {
		tag = fmt.Sprintf(`<script src="%s"></script>`, src)
		closing = "body"
	}

	offset := trace.FindClosingTag(content, closing)
	if offset < 0 {
		var buf bytes.Buffer
		buf.Write(content)
		buf.WriteString(tag)
		return buf.Bytes()
	}

	var newContent []byte
	newContent = append(newContent, content[:offset]...)
	newContent = append(newContent, tag...)
	newContent = append(newContent, content[offset:]...)
	return newContent
}
