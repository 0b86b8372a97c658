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

package mapfs

import (
	"errors"
	"io/fs"
	"testing"
)

func TestMkdirTemp(t *testing.T) {
	mfs := New()

	first, err := mfs.MkdirTemp("", "build-*-out")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	second, err := mfs.MkdirTemp("", "build-*-out")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}

	if first != "/tmp/build-1-out" || second != "/tmp/build-2-out" {
		t.Errorf("Unexpected names %q, %q", first, second)
	}
	if !mfs.Exists(first) || !mfs.Exists(second) {
		t.Error("Expected both directories to exist")
	}
	info, err := mfs.Stat(first)
	if err != nil || !info.IsDir() {
		t.Errorf("Expected %s to be a directory, got %v", first, err)
	}
}

func TestMkdirTempSkipsExisting(t *testing.T) {
	mfs := New()
	mfs.AddFile("/work/out1/file.txt", "x", 0644)

	dir, err := mfs.MkdirTemp("/work", "out")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	if dir != "/work/out2" {
		t.Errorf("Expected /work/out2, got %s", dir)
	}
}

func TestRemoveAll(t *testing.T) {
	mfs := New()
	mfs.AddFile("/out/a.html", "a", 0644)
	mfs.AddFile("/out/nested/b.js", "b", 0644)
	mfs.AddFile("/outside/c.txt", "c", 0644)

	if err := mfs.RemoveAll("/out"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if mfs.Exists("/out") || mfs.Exists("/out/nested/b.js") {
		t.Error("Expected /out to be removed")
	}
	if !mfs.Exists("/outside/c.txt") {
		t.Error("Expected sibling with a shared prefix to survive")
	}
	if err := mfs.RemoveAll("/missing"); err != nil {
		t.Errorf("Expected no error for missing path, got %v", err)
	}
}

func TestReadDirHidesMarkers(t *testing.T) {
	mfs := New()
	if err := mfs.MkdirAll("/out/sub", 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	mfs.AddFile("/out/a.html", "a", 0644)

	entries, err := mfs.ReadDir("/out")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "a.html" || names[1] != "sub" {
		t.Errorf("Expected [a.html sub], got %v", names)
	}
}

func TestRemoveMissing(t *testing.T) {
	err := New().Remove("/nope")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected fs.ErrNotExist, got %v", err)
	}
}
