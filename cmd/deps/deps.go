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

// Package deps provides the deps command for vulcanize.
package deps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/vulcanize/fs"
	"bennypowers.dev/vulcanize/internal/output"
	"bennypowers.dev/vulcanize/trace"
)

// Cmd is the deps cobra command that traces the HTML import graph of
// entry documents: components in inline order, cycles, and ES modules.
var Cmd = &cobra.Command{
	Use:   "deps [entry.html...]",
	Short: "Show the HTML import graph of entry documents",
	Long: `Trace HTML imports from entry documents and report the components
they pull in, in the order vulcanize inlines them, along with import cycles,
external imports, stylesheets and ES modules loaded by module scripts.

For multiple files (via arguments or --glob), json output is NDJSON with one
report per line.`,
	Example: `  # Show the component graph of one entry
  vulcanize deps index.html

  # JSON or YAML report
  vulcanize deps index.html --format json
  vulcanize deps index.html --format yaml -o deps.yaml

  # Every entry matching a glob, 8 workers
  vulcanize deps --glob "app/**/*-index.html" -j 8`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
	Cmd.Flags().String("glob", "", "Glob pattern to match entry files (e.g., \"**/*-index.html\")")
	Cmd.Flags().IntP("jobs", "j", 0, "Number of parallel workers (default: number of CPUs)")
	Cmd.Flags().StringP("out", "o", "", "Write the report to a file (default: stdout)")
	Cmd.Flags().Bool("skip-modules", false, "Do not read ES module files loaded by module scripts")
}

func run(cmd *cobra.Command, args []string) error {
	osfs := fs.NewOSFileSystem()

	absRoot, err := filepath.Abs(viper.GetString("source"))
	if err != nil {
		return fmt.Errorf("invalid source directory: %w", err)
	}

	// Collect files from args and glob pattern, deduplicating by absolute path
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) error {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("invalid file path %q: %w", p, err)
		}
		if _, exists := seen[absPath]; !exists {
			seen[absPath] = struct{}{}
			files = append(files, absPath)
		}
		return nil
	}

	for _, arg := range args {
		if err := add(arg); err != nil {
			return err
		}
	}

	globPattern, _ := cmd.Flags().GetString("glob")
	if globPattern != "" {
		matches, err := doublestar.FilepathGlob(globPattern)
		if err != nil {
			return fmt.Errorf("invalid glob pattern: %w", err)
		}
		for _, match := range matches {
			if err := add(match); err != nil {
				return err
			}
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("no files to trace: provide file arguments or use --glob")
	}

	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json", "yaml":
		// valid
	default:
		return fmt.Errorf("invalid format %q: must be one of text, json, yaml", format)
	}

	parallel, _ := cmd.Flags().GetInt("jobs")
	skipModules, _ := cmd.Flags().GetBool("skip-modules")
	outPath, _ := cmd.Flags().GetString("out")
	opts := trace.Options{Parallel: parallel, SkipModules: skipModules}

	if len(files) == 1 {
		report, err := trace.TraceSingle(osfs, files[0], absRoot, opts)
		if err != nil {
			return fmt.Errorf("failed to trace: %w", err)
		}
		printWarnings(report)
		if format == "text" {
			return output.Write(osfs, outPath, []byte(FormatText(report)))
		}
		return output.Report(osfs, report, format, outPath)
	}

	return runBatch(osfs, files, absRoot, format, outPath, opts)
}

func runBatch(osfs fs.FileSystem, files []string, absRoot, format, outPath string, opts trace.Options) error {
	var collected []trace.BatchResult
	var errorCount int
	for result := range trace.TraceBatch(osfs, files, absRoot, opts) {
		if result.Error != "" {
			errorCount++
			fmt.Fprintf(os.Stderr, "Error: %s: %s\n", result.File, result.Error)
		} else {
			printWarnings(result.Report)
		}
		collected = append(collected, result)
	}

	var buf strings.Builder
	switch format {
	case "json":
		// NDJSON, one result per line
		encoder := json.NewEncoder(&buf)
		for _, result := range collected {
			if err := encoder.Encode(result); err != nil {
				return fmt.Errorf("encoding result for %s: %w", result.File, err)
			}
		}
	case "yaml":
		data, err := output.Encode(collected, "yaml")
		if err != nil {
			return err
		}
		buf.Write(data)
	default:
		for _, result := range collected {
			if result.Report != nil {
				buf.WriteString(FormatText(result.Report))
				buf.WriteString("\n")
			}
		}
	}
	if err := output.Write(osfs, outPath, []byte(buf.String())); err != nil {
		return err
	}

	if errorCount == len(files) {
		return fmt.Errorf("all %d files failed to trace", errorCount)
	}
	return nil
}

// printWarnings reports non-fatal trace errors on stderr.
func printWarnings(report *trace.Report) {
	for _, msg := range report.Errors {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", report.Entrypoint, msg)
	}
}

// FormatText renders a report for humans.
func FormatText(report *trace.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", report.Entrypoint)
	fmt.Fprintf(&b, "  components (%d):\n", len(report.Components))
	for _, c := range report.Components {
		fmt.Fprintf(&b, "    %s\n", c)
	}
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "  %s (%d):\n", title, len(items))
		for _, item := range items {
			fmt.Fprintf(&b, "    %s\n", item)
		}
	}
	var cycles []string
	for _, edge := range report.Cycles {
		cycles = append(cycles, edge.From+" -> "+edge.To)
	}
	section("cycles", cycles)
	section("external imports", report.External)
	section("stylesheets", report.Stylesheets)
	section("modules", report.Modules)
	section("bare specifiers", report.BareSpecifiers)
	return b.String()
}
