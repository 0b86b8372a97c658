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

// Package output provides shared output utilities for vulcanize CLI commands.
package output

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bennypowers.dev/vulcanize/fs"
)

// Encode serializes v in the given format (json or yaml).
func Encode(v any, format string) ([]byte, error) {
	switch format {
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
		return append(out, '\n'), nil
	case "yaml":
		out, err := yaml.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// Write writes data to path, or to stdout when path is empty.
func Write(osfs fs.FileSystem, path string, data []byte) error {
	if path != "" {
		return osfs.WriteFile(path, data, 0644)
	}
	_, err := os.Stdout.Write(data)
	return err
}

// Report encodes v and writes it to path or stdout.
func Report(osfs fs.FileSystem, v any, format, path string) error {
	data, err := Encode(v, format)
	if err != nil {
		return err
	}
	return Write(osfs, path, data)
}
