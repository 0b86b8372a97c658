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

// Package build provides the build command for vulcanize.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/vulcanize/fs"
	"bennypowers.dev/vulcanize/node"
	"bennypowers.dev/vulcanize/pipeline"
)

// Cmd is the build cobra command.
var Cmd = &cobra.Command{
	Use:   "build [entry.html...]",
	Short: "Vulcanize HTML entry documents",
	Long: `Bundle HTML-import based components into single documents.

Each entry is read from the source directory, its HTML imports are inlined
recursively, and the result is written under --out-dir at the same relative
path. With --crisper (or --csp), inline scripts are split into a sibling
JavaScript file so the document passes a strict content security policy.

Entries are given as arguments relative to the source directory, or matched
with --glob. Without either, --input (default index.html) is built.`,
	Example: `  # Bundle index.html from the current directory into dist/
  vulcanize build

  # Bundle and split scripts for CSP
  vulcanize build -s app --csp

  # Every page, 4 at a time, inlining CSS and scripts
  vulcanize build --glob "pages/*.html" -j 4 --inline-css --inline-scripts

  # Show what would be written
  vulcanize build index.html --dry-run`,
	RunE: run,
}

func init() {
	flags := Cmd.Flags()
	flags.String("input", node.DefaultInput, "Entry HTML file, relative to the source directory")
	flags.String("output", "", "Bundled HTML path, relative to --out-dir (default: the entry path)")
	flags.Bool("crisper", false, "Split inline scripts into a separate JavaScript file")
	flags.String("script-name", "", "File name of the split script (implies --crisper)")
	flags.Bool("csp", false, "Content security policy mode (implies --crisper)")
	flags.Bool("script-in-body", false, "Reference the split script at the end of <body>")
	flags.Bool("inline-scripts", false, "Inline local classic scripts")
	flags.Bool("inline-css", false, "Inline local stylesheets")
	flags.Bool("strip-comments", false, "Remove HTML comments, keeping @license comments")
	flags.StringSlice("exclude", nil, "Glob patterns of imports to leave as links")
	flags.String("glob", "", "Glob pattern matching entry files in the source directory")
	flags.StringP("out-dir", "d", "dist", "Output directory")
	flags.IntP("jobs", "j", 0, "Number of parallel builds (default: number of CPUs)")
	flags.Bool("dry-run", false, "Print the artifacts that would be written")
	flags.String("metrics-file", "", "Write build metrics in Prometheus text format to a file")

	for _, name := range []string{
		"input", "output", "crisper", "script-name", "csp", "script-in-body",
		"inline-scripts", "inline-css", "strip-comments", "exclude",
		"out-dir", "jobs",
	} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// nodeOptions reads node options from flags and configuration.
func nodeOptions() node.Options {
	return node.Options{
		Input:         viper.GetString("input"),
		Output:        viper.GetString("output"),
		Crisper:       viper.GetBool("crisper"),
		ScriptName:    viper.GetString("script-name"),
		CSP:           viper.GetBool("csp"),
		ScriptInBody:  viper.GetBool("script-in-body"),
		InlineScripts: viper.GetBool("inline-scripts"),
		InlineCSS:     viper.GetBool("inline-css"),
		StripComments: viper.GetBool("strip-comments"),
		Excludes:      viper.GetStringSlice("exclude"),
	}
}

// entries collects entry paths relative to sourceDir from args and glob.
func entries(sourceDir string, args []string, glob string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		p = filepath.ToSlash(filepath.Clean(p))
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	for _, arg := range args {
		add(arg)
	}
	if glob != "" {
		matches, err := doublestar.Glob(os.DirFS(sourceDir), glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q matched no files in %s", glob, sourceDir)
		}
		for _, match := range matches {
			add(match)
		}
	}
	return files, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	osfs := fs.NewOSFileSystem()
	logger := slog.Default()

	sourceDir := viper.GetString("source")
	outDir, err := filepath.Abs(viper.GetString("out-dir"))
	if err != nil {
		return fmt.Errorf("invalid output directory: %w", err)
	}

	glob, _ := cmd.Flags().GetString("glob")
	files, err := entries(sourceDir, args, glob)
	if err != nil {
		return err
	}

	base := nodeOptions()
	if len(files) > 1 && base.Output != "" {
		return fmt.Errorf("--output cannot be used with %d entries", len(files))
	}
	if len(files) > 1 && base.ScriptName != "" {
		return fmt.Errorf("--script-name cannot be used with %d entries", len(files))
	}
	if len(files) == 0 {
		files = []string{base.Input}
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	var nodes []*node.Node
	for _, file := range files {
		opts := base
		opts.Input = file
		if dryRun {
			opts.OutputHandler = printArtifact(cmd, outDir)
		}
		n, err := node.New(osfs, node.Path(sourceDir), opts)
		if err != nil {
			return err
		}
		nodes = append(nodes, n.WithLogger(logger))
	}

	if dryRun {
		for _, n := range nodes {
			if err := n.Build(ctx, outDir); err != nil {
				return err
			}
		}
		return nil
	}

	registry := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(registry)
	builders := make([]*pipeline.Builder, len(nodes))
	for i, n := range nodes {
		builders[i] = pipeline.New(osfs, n).WithLogger(logger).WithMetrics(metrics)
	}

	jobs := viper.GetInt("jobs")
	buildErr := publish(ctx, cmd, osfs, files, builders, jobs, outDir)

	var cleanupErrs []error
	for _, b := range builders {
		cleanupErrs = append(cleanupErrs, b.Cleanup())
	}

	if metricsFile, _ := cmd.Flags().GetString("metrics-file"); metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
			cleanupErrs = append(cleanupErrs, fmt.Errorf("writing metrics: %w", err))
		}
	}

	return errors.Join(buildErr, errors.Join(cleanupErrs...))
}

// publish runs the builders and copies successful results into outDir.
func publish(
	ctx context.Context,
	cmd *cobra.Command,
	osfs fs.FileSystem,
	files []string,
	builders []*pipeline.Builder,
	jobs int,
	outDir string,
) error {
	var failed int
	for i, result := range pipeline.BuildAll(ctx, builders, jobs) {
		if result.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", files[i], result.Err)
			continue
		}
		if err := pipeline.CopyTree(osfs, result.Result.Directory, outDir); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", files[i], err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "built %s in %s\n", files[i], result.Result.Duration.Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d builds failed", failed, len(files))
	}
	return nil
}

// printArtifact returns an output handler that reports artifacts
// without writing them.
func printArtifact(cmd *cobra.Command, outDir string) node.OutputHandler {
	return func(_ context.Context, path string, content []byte) error {
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			rel = path
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "would write %s (%d bytes)\n",
			filepath.Join(filepath.Base(outDir), rel), len(content))
		return err
	}
}
