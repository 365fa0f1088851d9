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

// Package backend defines the interface between the compiler and the code generator, and a reference code
// generator printing a pseudo-instruction listing.
package backend

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/graph"
)

// Names of the runtime entry points called by generated code
const (
	// DeoptimizationHandler is the stub called by a deoptimization
	DeoptimizationHandler = "deoptimization_handler"
	// PreBarrierSlowPath is the runtime call of the slow path of a pre-barrier
	PreBarrierSlowPath = "write_barrier_pre"
	// PostBarrierSlowPath is the runtime call of the slow path of a post-barrier
	PostBarrierSlowPath = "write_barrier_post"
)

// InstructionSize is the size in bytes of every pseudo-instruction
const InstructionSize = 4

// Backend turns a lowered graph into code and installs it
type Backend interface {
	Emit(g *graph.Graph, req *Request) (*CompilationResult, error)
	Install(result *CompilationResult) (*InstalledCode, error)
}

// Request holds the parameters of the code generation of one graph
type Request struct {
	Name string
	// Registers is the register configuration of the target
	Registers config.RegisterSpec
	// DestroyedRegisters are the registers the code may destroy. Nil means every allocatable register.
	DestroyedRegisters []string
}

// Instruction is a line of the listing
type Instruction struct {
	Offset int
	Text   string
}

// CallKind classifies the targets of calls
type CallKind int

const (
	// CallRuntime calls a foreign call linkage: a runtime function or a stub
	CallRuntime CallKind = iota
	// CallMethod calls a compiled method of the guest program
	CallMethod
)

// Call is the infopoint of a call site
type Call struct {
	Offset int
	Target string
	Kind   CallKind
	Node   graph.NodeID
}

// PatchKind is the kind of constant referenced by a data patch
type PatchKind int

const (
	PatchObject PatchKind = iota
	PatchKlass
)

func (k PatchKind) String() string {
	if k == PatchKlass {
		return "klass"
	}
	return "object"
}

// DataPatch is a reference from the code to a constant that the runtime must relocate
type DataPatch struct {
	Offset   int
	Kind     PatchKind
	Name     string
	Interned bool
}

// ExceptionHandler maps a code offset to the offset of its exception handler
type ExceptionHandler struct {
	Offset  int
	Handler int
}

// CompilationResult is the output of the code generator
type CompilationResult struct {
	Name               string
	Instructions       []Instruction
	Calls              []Call
	DataPatches        []DataPatch
	ExceptionHandlers  []ExceptionHandler
	Assumptions        []graph.Assumption
	DestroyedRegisters []string
}

// Size returns the size of the code in bytes
func (r *CompilationResult) Size() int {
	return len(r.Instructions) * InstructionSize
}

// Listing returns the instructions, one per line
func (r *CompilationResult) Listing() string {
	var sb strings.Builder
	for _, ins := range r.Instructions {
		fmt.Fprintf(&sb, "%04x  %s\n", ins.Offset, ins.Text)
	}
	return sb.String()
}

// InstalledCode is code made executable by Install
type InstalledCode struct {
	// ID identifies the installation
	ID      string
	Name    string
	Address uint64
	Size    int
	Result  *CompilationResult
}

func (c *InstalledCode) String() string {
	return fmt.Sprintf("%s@%#x", c.Name, c.Address)
}
