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

package node

import (
	"context"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultInput is the entry file name used when none is configured.
const DefaultInput = "index.html"

// OutputHandler receives an artifact instead of it being written to disk.
// path is the absolute path the artifact would have been written to.
type OutputHandler func(ctx context.Context, path string, content []byte) error

// Options configures a bundle node. New takes a private copy; later
// changes to the caller's value, including its slices, have no effect.
type Options struct {
	// Input is the entry HTML file, relative to the source root.
	// Defaults to DefaultInput.
	Input string
	// Output is the bundled HTML path, relative to the output directory.
	// Defaults to Input.
	Output string
	// Crisper splits inline scripts into a sibling file named after the
	// entry, with a .js extension.
	Crisper bool
	// ScriptName overrides the split script's file name, relative to the
	// HTML output's directory. Setting it enables splitting.
	ScriptName string
	// CSP enables content-security-policy mode, which implies splitting.
	CSP bool
	// ScriptInBody references the split script at the end of <body>
	// rather than deferred from <head>.
	ScriptInBody bool
	// OutputHandler, when set, receives every artifact and nothing is
	// written to disk.
	OutputHandler OutputHandler

	// InlineScripts inlines local classic <script src> files.
	InlineScripts bool
	// InlineCSS inlines local stylesheets as <style> elements.
	InlineCSS bool
	// StripComments removes HTML comments other than license comments.
	StripComments bool
	// Excludes lists doublestar patterns of imports, relative to the
	// source root, that are left as links.
	Excludes []string
}

// SplitEnabled reports whether inline scripts are split into a JS file.
func (o Options) SplitEnabled() bool {
	return o.Crisper || o.CSP || o.ScriptName != ""
}

func (o Options) clone() Options {
	o.Excludes = slices.Clone(o.Excludes)
	return o
}

// derivedScriptName names the split script after the entry file.
func derivedScriptName(entry string) string {
	base := path.Base(entry)
	return strings.TrimSuffix(base, path.Ext(base)) + ".js"
}

// normalizeRel cleans a slash-separated relative path, rejecting absolute
// paths and paths that escape their root. Empty input stays empty.
func normalizeRel(field, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) {
		return "", &ConfigurationError{Field: field, Value: p, Reason: "must be a relative path"}
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", &ConfigurationError{Field: field, Value: p, Reason: "does not name a file"}
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &ConfigurationError{Field: field, Value: p, Reason: "escapes its root directory"}
	}
	return cleaned, nil
}
