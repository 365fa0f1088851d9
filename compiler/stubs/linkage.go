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

// Package stubs compiles the stubs linking compiled code to the runtime.
//
// A foreign call is described by a ForeignCallDescriptor and linked by a Linkage. The linkage either targets a
// runtime function directly, or a Stub: a small graph built by the compiler, compiled once through the stub suites
// and installed as code. Stubs are never recompiled, so their code must not depend on assumptions or on objects
// the collector can move.
package stubs

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
	"github.com/awslabs/ar-go-jit/internal/funcutil"
)

// Transition describes what a runtime call may do to the calling thread
type Transition int

const (
	// Leaf calls do not reach a safepoint and do not need the thread
	Leaf Transition = iota
	// LeafNoFP calls are leaf calls that also leave the floating point state untouched
	LeafNoFP
	// Safepoint calls may reach a safepoint. They take the current thread as first argument and may leave a pending
	// exception on it.
	Safepoint
)

func (t Transition) String() string {
	switch t {
	case LeafNoFP:
		return config.TransitionLeafNoFP
	case Safepoint:
		return config.TransitionSafepoint
	default:
		return config.TransitionLeaf
	}
}

// RegisterEffect tells the callers of a linkage which registers survive the call
type RegisterEffect int

const (
	DestroysRegisters RegisterEffect = iota
	PreservesRegisters
)

func (e RegisterEffect) String() string {
	if e == PreservesRegisters {
		return config.EffectPreservesRegisters
	}
	return config.EffectDestroysRegisters
}

// ForeignCallDescriptor is the signature of a call from compiled code to the runtime
type ForeignCallDescriptor struct {
	Name   string
	Result stamp.Kind
	Args   []stamp.Kind
	// Reexecutable calls can be executed again after a deoptimization
	Reexecutable bool
	Transition   Transition
	// Killed are the memory locations the call may write
	Killed []graph.LocationIdentity
}

// NeedsThread returns true if the current thread is passed to the call
func (d ForeignCallDescriptor) NeedsThread() bool { return d.Transition == Safepoint }

func (d ForeignCallDescriptor) String() string {
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s %s(%s)", d.Result, d.Name, strings.Join(args, ", "))
}

// Linkage binds a descriptor to its code: a runtime address, or a stub
type Linkage struct {
	Descriptor ForeignCallDescriptor
	// Address is the entry point of a runtime function
	Address uint64
	Effect  RegisterEffect
	// Temporaries are the registers destroyed by a call that preserves registers
	Temporaries []string

	stub *Stub
}

// Name returns the name of the descriptor
func (l *Linkage) Name() string { return l.Descriptor.Name }

// Stub returns the stub compiled for the linkage, or nil for a runtime function
func (l *Linkage) Stub() *Stub { return l.stub }

// IsRuntime returns true if the linkage calls a runtime function directly
func (l *Linkage) IsRuntime() bool { return l.stub == nil }

// DestroyedRegisters returns the registers the code of the linkage may destroy. A linkage destroying registers
// may use every allocatable register that is not callee saved; a linkage preserving registers may only use its
// temporaries.
func (l *Linkage) DestroyedRegisters(regs config.RegisterSpec) []string {
	destroyed := []string{}
	if l.Effect == PreservesRegisters {
		return append(destroyed, l.Temporaries...)
	}
	for _, r := range regs.Allocatable {
		if !funcutil.Contains(regs.CalleeSaved, r) {
			destroyed = append(destroyed, r)
		}
	}
	return destroyed
}

func (l *Linkage) String() string {
	if l.stub != nil {
		return fmt.Sprintf("stub %s [%s, %s]", l.Descriptor, l.Descriptor.Transition, l.Effect)
	}
	return fmt.Sprintf("runtime %s@%#x [%s, %s]", l.Descriptor, l.Address, l.Descriptor.Transition, l.Effect)
}

// descriptorOf converts a foreign call of the configuration file
func descriptorOf(fc config.ForeignCallSpec) (ForeignCallDescriptor, error) {
	d := ForeignCallDescriptor{Name: fc.Name, Reexecutable: fc.Reexecutable}
	var ok bool
	if d.Result, ok = stamp.KindFromName(fc.Result); !ok {
		return d, fmt.Errorf("%s: unknown result kind %q", fc.Name, fc.Result)
	}
	for _, a := range fc.Args {
		k, ok := stamp.KindFromName(a)
		if !ok || k == stamp.Void {
			return d, fmt.Errorf("%s: invalid argument kind %q", fc.Name, a)
		}
		d.Args = append(d.Args, k)
	}
	switch fc.Transition {
	case "", config.TransitionLeaf:
		d.Transition = Leaf
	case config.TransitionLeafNoFP:
		d.Transition = LeafNoFP
	case config.TransitionSafepoint:
		d.Transition = Safepoint
	default:
		return d, fmt.Errorf("%s: unknown transition %q", fc.Name, fc.Transition)
	}
	for _, k := range fc.Killed {
		d.Killed = append(d.Killed, graph.LocationIdentity(k))
	}
	return d, nil
}

func effectOf(name string) RegisterEffect {
	if name == config.EffectPreservesRegisters {
		return PreservesRegisters
	}
	return DestroysRegisters
}
