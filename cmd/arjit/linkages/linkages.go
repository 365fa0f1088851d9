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

// Package linkages implements the linkages command of arjit, which prints the foreign calls known to the compiler.
package linkages

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/awslabs/ar-go-jit/cmd/arjit/tools"
	"github.com/awslabs/ar-go-jit/compiler/stubs"
	"github.com/awslabs/ar-go-jit/internal/formatutil"
)

// Usage for CLI
const Usage = `Print the foreign calls of the config file and how they are linked.
Usage:
  arjit linkages [options]
Examples:
  % arjit linkages -config arjit.yaml -registers`

// Run prints the linkages of the registry built from the config of flags to out
func Run(flags tools.CommonFlags, showRegisters bool, out io.Writer) error {
	cfg, err := tools.LoadConfig(flags)
	if err != nil {
		return err
	}
	registry, err := stubs.NewRegistry(cfg)
	if err != nil {
		return err
	}
	if out == nil {
		out = os.Stdout
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\tKIND\tSIGNATURE\tTRANSITION\tEFFECT\tADDRESS\n")
	for _, l := range registry.Linkages() {
		kind := formatutil.Faint("runtime")
		address := fmt.Sprintf("%#x", l.Address)
		if !l.IsRuntime() {
			kind = formatutil.Green("stub")
			address = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", l.Name(), kind, l.Descriptor, l.Descriptor.Transition, l.Effect,
			address)
	}
	w.Flush()
	if showRegisters {
		fmt.Fprintf(out, "\n%s\n", formatutil.Bold("destroyed registers:"))
		for _, l := range registry.Linkages() {
			fmt.Fprintf(out, "  %s: [%s]\n", l.Name(), strings.Join(l.DestroyedRegisters(cfg.Registers), " "))
		}
	}
	return nil
}
