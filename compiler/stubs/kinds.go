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

package stubs

import (
	"github.com/awslabs/ar-go-jit/compiler/backend"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

// Memory locations read by the stubs
const (
	PendingExceptionLocation graph.LocationIdentity = "Thread::pending_exception"
	ObjectArrayLocation      graph.LocationIdentity = "Object[]"
)

// UncommonTrap is the runtime function called by the deoptimization handler
const UncommonTrap = "uncommon_trap"

// RuntimeTarget returns the name of the runtime function called by the foreign call stub name
func RuntimeTarget(name string) string { return name + "@runtime" }

func stampOf(k stamp.Kind) stamp.Stamp {
	if k == stamp.Object {
		return stamp.ForObject("Object", false)
	}
	return stamp.ForKind(k)
}

// parameters adds a parameter for each argument of the descriptor
func parameters(g *graph.Graph, d ForeignCallDescriptor) []graph.NodeID {
	params := make([]graph.NodeID, len(d.Args))
	for i, k := range d.Args {
		params[i] = g.Parameter(i, stampOf(k))
	}
	return params
}

// runtimeCall returns a call of target with args. When the target needs the thread, the current thread is
// prepended to the arguments.
func runtimeCall(g *graph.Graph, target ForeignCallDescriptor, args []graph.NodeID) *graph.Node {
	if target.NeedsThread() {
		thread := g.Unique(graph.NewNode(graph.OpCurrentThread).WithStamp(stamp.ForKind(stamp.Long)))
		args = append([]graph.NodeID{thread}, args...)
	}
	call := graph.NewNode(graph.OpForeignCall, args...).WithTarget(target.Name).WithStamp(stampOf(target.Result))
	if target.NeedsThread() {
		call.WithFlags(graph.FlagNeedsThread)
	}
	return call
}

// buildForeignCallGraph builds the graph of a trampoline calling the runtime target of the stub with the stub's
// arguments. After a call that may reach a safepoint, a pending exception on the thread is dispatched through the
// deoptimization handler.
func buildForeignCallGraph(s *Stub) *graph.Graph {
	d := s.linkage.Descriptor
	target, _ := s.registry.Lookup(RuntimeTarget(d.Name))
	g := graph.New(s.Name())
	b := graph.NewBuilder(g)
	call := b.Append(runtimeCall(g, target.Descriptor, parameters(g, d)))
	result := graph.NoNode
	if d.Result != stamp.Void {
		result = call
	}
	if !target.Descriptor.NeedsThread() {
		b.Return(result)
		return g
	}
	thread := g.Node(call).Input(0)
	pending := b.Append(graph.NewNode(graph.OpLoadField, thread).WithLocation(PendingExceptionLocation).
		WithStamp(stamp.ForObject("Throwable", false)))
	noException, exception := b.Branch(g.Unique(graph.NewNode(graph.OpIsNull, pending)))
	b.SetCurrent(exception)
	b.Append(graph.NewNode(graph.OpDeoptimize).WithTarget("PendingException"))
	b.SetCurrent(noException)
	b.Return(result)
	return g
}

// buildArrayStoreGraph builds the graph of a stub storing its third argument at index of the object array given
// as first argument. The store gets the barriers of the configured collector.
func buildArrayStoreGraph(s *Stub) *graph.Graph {
	g := graph.New(s.Name())
	b := graph.NewBuilder(g)
	array := g.Parameter(0, stamp.ForObject("Object[]", true))
	index := g.Parameter(1, stamp.ForKind(stamp.Int))
	value := g.Parameter(2, stamp.ForObject("Object", false))
	b.Append(graph.NewNode(graph.OpStoreIndexed, array, index, value).WithLocation(ObjectArrayLocation).
		WithFlags(graph.FlagObjectArray))
	b.Return(graph.NoNode)
	return g
}

// buildDeoptimizationGraph builds the handler called by deoptimizations: it hands the thread to the runtime,
// which unpacks the compiled frame.
func buildDeoptimizationGraph(s *Stub) *graph.Graph {
	g := graph.New(s.Name())
	b := graph.NewBuilder(g)
	trap, _ := s.registry.Lookup(UncommonTrap)
	b.Append(runtimeCall(g, trap.Descriptor, nil))
	b.Return(graph.NoNode)
	return g
}

// deoptimizationDependencies returns the stubs called by a foreign call stub calling target
func deoptimizationDependencies(target ForeignCallDescriptor) []string {
	if target.NeedsThread() {
		return []string{backend.DeoptimizationHandler}
	}
	return nil
}
