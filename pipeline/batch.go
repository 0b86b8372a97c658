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

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"bennypowers.dev/vulcanize/fs"
)

// BatchResult pairs a builder's result with its error.
type BatchResult struct {
	Result *Result
	Err    error
}

// BuildAll builds every builder with at most jobs builds in flight
// (runtime.NumCPU() if jobs <= 0). One failing build does not stop the
// others; results are in builder order.
func BuildAll(ctx context.Context, builders []*Builder, jobs int) []BatchResult {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	results := make([]BatchResult, len(builders))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, b := range builders {
		g.Go(func() error {
			result, err := b.Build(ctx)
			results[i] = BatchResult{Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// CopyTree copies the files under from into to, creating directories as
// needed. Existing files are overwritten.
func CopyTree(fsys fs.FileSystem, from, to string) error {
	entries, err := fsys.ReadDir(from)
	if err != nil {
		return fmt.Errorf("reading %s: %w", from, err)
	}
	if err := fsys.MkdirAll(to, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", to, err)
	}
	for _, entry := range entries {
		src := filepath.Join(from, entry.Name())
		dst := filepath.Join(to, entry.Name())
		if entry.IsDir() {
			if err := CopyTree(fsys, src, dst); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		content, err := fsys.ReadFile(src)
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		if err := fsys.WriteFile(dst, content, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	return nil
}
