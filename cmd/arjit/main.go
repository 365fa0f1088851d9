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

package main

import (
	"fmt"
	"os"

	"github.com/awslabs/ar-go-jit/cmd/arjit/compile"
	"github.com/awslabs/ar-go-jit/cmd/arjit/linkages"
	"github.com/awslabs/ar-go-jit/cmd/arjit/tools"
	"github.com/awslabs/ar-go-jit/compiler/config"
)

const usage = `Arjit: stub compiler of the graph JIT
Usage:
  arjit [command] [options]
Commands:
  - stubs: compiles the stubs of the foreign calls in the config file and prints where they are installed
  - linkages: prints the foreign calls known to the compiler and how they are linked
Examples:
  Compile the stubs: arjit stubs -config=arjit.yaml
  Print the linkages: arjit linkages -config=arjit.yaml -registers`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "error: expected subcommand\n%s\n", usage)
		os.Exit(2)
	}

	// hardcode help flag
	if snd := os.Args[1]; snd == "-help" || snd == "--help" {
		fmt.Println(usage)
		return
	}

	// hardcode version flag
	if snd := os.Args[1]; snd == "-version" || snd == "--version" {
		fmt.Println(config.Version)
		return
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "stubs":
		flags, err := compile.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := compile.Run(flags); err != nil {
			errExit(err)
		}
	case "linkages":
		unparsed := tools.NewUnparsedCommonFlags("linkages")
		registers := unparsed.FlagSet.Bool("registers", false, "print the registers destroyed by each linkage")
		tools.SetUsage(unparsed.FlagSet, linkages.Usage)
		flags, err := unparsed.Parse(args)
		if err != nil {
			errExit(err)
		}
		if err := linkages.Run(flags, *registers, os.Stdout); err != nil {
			errExit(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected command: %v\n", cmd)
		fmt.Fprintf(os.Stderr, "usage:\n%s\n", usage)
		os.Exit(2)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	hint := tools.HintForErrorMessage(err.Error())
	if hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(2)
}
