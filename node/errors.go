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
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the error taxonomy.
var (
	// ErrConfiguration matches *ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEntryNotFound matches *EntryNotFoundError.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrBundler matches *BundlerError.
	ErrBundler = errors.New("bundling failed")
	// ErrOutputWrite matches *OutputWriteError.
	ErrOutputWrite = errors.New("output write failed")
)

// ConfigurationError reports bad or contradictory options. It is returned
// by New, never by a build.
type ConfigurationError struct {
	Field  string // The offending option (e.g. "input")
	Value  string // The rejected value
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// EntryNotFoundError reports a missing entry file at build start.
type EntryNotFoundError struct {
	Entry     string // Entry path relative to the source directory
	SourceDir string
	Err       error
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry %s not found in %s: %v", e.Entry, e.SourceDir, e.Err)
}

func (e *EntryNotFoundError) Unwrap() error { return e.Err }

func (e *EntryNotFoundError) Is(target error) bool { return target == ErrEntryNotFound }

// BundlerError wraps a failure of the bundling or splitting transform.
type BundlerError struct {
	Entry string
	Err   error
}

func (e *BundlerError) Error() string {
	return fmt.Sprintf("bundling %s: %v", e.Entry, e.Err)
}

func (e *BundlerError) Unwrap() error { return e.Err }

func (e *BundlerError) Is(target error) bool { return target == ErrBundler }

// OutputWriteError reports a failure to materialize an artifact, either
// on disk or in the output handler.
type OutputWriteError struct {
	Path string // Absolute path of the artifact
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

func (e *OutputWriteError) Is(target error) bool { return target == ErrOutputWrite }
