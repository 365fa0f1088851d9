// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package compile implements the stubs command of arjit: it compiles the stubs of the configured foreign calls and
// prints where they are installed.
package compile

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/awslabs/ar-go-jit/cmd/arjit/tools"
	"github.com/awslabs/ar-go-jit/compiler/backend"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/stubs"
	"github.com/awslabs/ar-go-jit/internal/formatutil"
	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Usage for CLI
const Usage = `Compile the stubs of the foreign calls in the config file.
Usage:
  arjit stubs [options]
Examples:
  % arjit stubs -config arjit.yaml -filter new_ -listing
  % arjit stubs -config arjit.yaml -dump-path dumps -code-cache 64KiB`

// Flags are the flags of the stubs command
type Flags struct {
	tools.CommonFlags
	Threads     int
	Filter      string
	Listing     bool
	CodeCache   string
	DumpPath    string
	DumpOnError bool
	Metrics     bool
	NoProgress  bool
	// Out receives the report. Defaults to stdout.
	Out io.Writer
}

// NewFlags returns the parsed flags of the stubs command
func NewFlags(args []string) (Flags, error) {
	flags := tools.NewUnparsedCommonFlags("stubs")
	cmd := flags.FlagSet
	threads := cmd.Int("threads", 0, "number of compiling goroutines (default: compile-threads of the config)")
	filter := cmd.String("filter", "", "only compile the stubs whose name starts with the filter")
	listing := cmd.Bool("listing", false, "print the code of every stub")
	codeCache := cmd.String("code-cache", "", "maximum total size of the installed stubs, e.g. 64KiB")
	dumpPath := cmd.String("dump-path", "", "directory where the graphs are dumped in dot format")
	dumpOnError := cmd.Bool("dump-on-error", false, "dump the graphs of the stubs that fail to compile")
	metrics := cmd.Bool("metrics", false, "print the metrics of every stub compilation")
	noProgress := cmd.Bool("no-progress", false, "do not show a progress bar")
	tools.SetUsage(cmd, Usage)
	common, err := flags.Parse(args)
	if err != nil {
		return Flags{}, err
	}
	return Flags{
		CommonFlags: common,
		Threads:     *threads,
		Filter:      *filter,
		Listing:     *listing,
		CodeCache:   *codeCache,
		DumpPath:    *dumpPath,
		DumpOnError: *dumpOnError,
		Metrics:     *metrics,
		NoProgress:  *noProgress,
		Out:         os.Stdout,
	}, nil
}

// Run compiles the stubs selected by flags and prints a report. It returns an error if some stub failed or if the
// stubs do not fit in the code cache.
func Run(flags Flags) error {
	cfg, err := tools.LoadConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	limit := int64(0)
	if flags.CodeCache != "" {
		limit, err = units.RAMInBytes(flags.CodeCache)
		if err != nil {
			return fmt.Errorf("invalid code cache size %q: %v", flags.CodeCache, err)
		}
	}
	applyDebugFlags(cfg, flags)
	threads := flags.Threads
	if threads <= 0 {
		threads = cfg.CompileThreads
	}
	out := flags.Out
	if out == nil {
		out = os.Stdout
	}
	logger := config.NewLogGroup(cfg)

	registry, err := stubs.NewRegistry(cfg)
	if err != nil {
		return err
	}
	keep := func(name string) bool { return cfg.MatchStubFilter(name) && strings.HasPrefix(name, flags.Filter) }
	total := 0
	for _, wave := range registry.CompileOrder(keep) {
		total += len(wave)
	}
	logger.Infof("compiling %d stubs with %d threads", total, threads)
	bar := newBar(total, flags.NoProgress)

	start := time.Now()
	results := registry.CompileAll(backend.NewListing(), threads, keep, func(stubs.Result) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	logger.Infof("compiled %d stubs in %s", len(results), units.HumanDuration(time.Since(start)))

	size := report(out, results, flags.Listing)
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", r.Stub.Name(), r.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d stubs failed: %s", len(failed), strings.Join(failed, "; "))
	}
	if limit > 0 && size > limit {
		return fmt.Errorf("code cache full: %s installed, limit is %s", units.BytesSize(float64(size)),
			units.BytesSize(float64(limit)))
	}
	return nil
}

func applyDebugFlags(cfg *config.Config, flags Flags) {
	if flags.DumpPath != "" {
		cfg.Debug.DumpPath = flags.DumpPath
		if cfg.Debug.Dump == "" {
			cfg.Debug.Dump = ":1"
		}
	}
	if flags.DumpOnError {
		cfg.Debug.DumpOnError = true
	}
	if flags.Metrics {
		cfg.Debug.PrintMetrics = true
		if cfg.Debug.Count == "" {
			cfg.Debug.Count = ":1"
		}
		if cfg.Debug.Time == "" {
			cfg.Debug.Time = ":1"
		}
	}
}

func newBar(total int, disabled bool) *progressbar.ProgressBar {
	if disabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return progressbar.DefaultSilent(int64(total), "compiling stubs")
	}
	return progressbar.Default(int64(total), "compiling stubs")
}

// report prints a table of the results in compilation order and returns the total size of the installed code
func report(out io.Writer, results []stubs.Result, listing bool) int64 {
	var size int64
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "STUB\tADDRESS\tSIZE\tTIME\tSTATUS\n")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t%s\t%s\n", r.Stub.Name(), r.Duration.Round(time.Microsecond),
				formatutil.Red("failed"))
			continue
		}
		size += int64(r.Code.Size)
		fmt.Fprintf(w, "%s\t%#x\t%s\t%s\t%s\n", r.Stub.Name(), r.Code.Address, units.HumanSize(float64(r.Code.Size)),
			r.Duration.Round(time.Microsecond), formatutil.Green("ok"))
	}
	w.Flush()
	fmt.Fprintf(out, "%s %s\n", formatutil.Bold("total code size:"), units.BytesSize(float64(size)))
	if listing {
		for _, r := range results {
			if r.Err == nil {
				fmt.Fprintf(out, "\n%s\n%s", formatutil.Cyan(r.Code), r.Code.Result.Listing())
			}
		}
	}
	return size
}
