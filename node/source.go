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

import "context"

// Tree is an upstream build node in its read form: Read returns a
// directory holding the tree's current output, Cleanup releases it.
type Tree interface {
	Read(ctx context.Context) (string, error)
	Cleanup() error
}

type sourceKind int

const (
	staticPath sourceKind = iota
	upstreamTree
)

// Source is where a node reads its input from: a static path or an
// upstream tree. The zero value is the current directory.
type Source struct {
	kind sourceKind
	path string
	tree Tree
}

// Path returns a static path source. A path naming a file is taken as
// the source directory plus entry file.
func Path(p string) Source {
	return Source{kind: staticPath, path: p}
}

// FromTree returns a source that reads the upstream tree on every build.
func FromTree(t Tree) Source {
	return Source{kind: upstreamTree, tree: t}
}

// IsTree reports whether the source is an upstream tree.
func (s Source) IsTree() bool {
	return s.kind == upstreamTree
}

func (s Source) String() string {
	if s.kind == upstreamTree {
		return "upstream tree"
	}
	if s.path == "" {
		return "."
	}
	return s.path
}
