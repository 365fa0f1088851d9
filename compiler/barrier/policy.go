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

// Package barrier inserts the garbage collector barriers around the lowered heap accesses of a graph, and
// verifies that every object write is covered by a barrier on every control flow path.
//
// Barrier nodes take the address inputs of the access they protect (the object first, then the index or offset
// when there is one) and carry the same location. A post-barrier additionally takes the written value, a
// pre-barrier of a compare and swap takes the expected value. Array range barriers take the destination array,
// the start position and the length.
package barrier

import (
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/graph"
)

// requirement is the set of barriers a heap write needs under a collector policy
type requirement struct {
	// pre is the barrier op expected just before the write, OpInvalid if none
	pre graph.Op
	// post is the barrier op expected just after the write
	post    graph.Op
	precise bool
}

// requirementOf returns the barriers needed by the access n under collector. It returns false if n is not an
// object write.
func requirementOf(collector string, n *graph.Node) (requirement, bool) {
	if n.Barrier() == graph.BarrierNone {
		return requirement{}, false
	}
	generational := isGenerational(collector)
	init := n.Has(graph.FlagInitialization)
	r := requirement{pre: graph.OpInvalid, precise: n.Barrier() == graph.BarrierPrecise}
	switch n.Op() {
	case graph.OpWrite:
		r.post = graph.OpPostWriteBarrier
		if generational && (!r.precise || !init) {
			r.pre = graph.OpPreWriteBarrier
		}
	case graph.OpCompareAndSwap:
		r.post = graph.OpPostWriteBarrier
		if generational {
			r.pre = graph.OpPreWriteBarrier
		}
	case graph.OpArrayRangeWrite:
		r.post = graph.OpArrayRangePostBarrier
		if generational && !init {
			r.pre = graph.OpArrayRangePreBarrier
		}
	default:
		return requirement{}, false
	}
	return r, true
}

func isGenerational(collector string) bool {
	switch collector {
	case config.CollectorGenerational:
		return true
	case config.CollectorSimple:
		return false
	}
	common.Fail("unknown collector %q", collector)
	return false
}

// addressOf returns the inputs of a heap access that designate the accessed memory
func addressOf(n *graph.Node) []graph.NodeID {
	in := n.Inputs()
	switch n.Op() {
	case graph.OpWrite:
		return in[:len(in)-1]
	case graph.OpCompareAndSwap:
		return in[:2]
	case graph.OpArrayRangeWrite:
		return in[:3]
	case graph.OpRead:
		return in
	}
	common.Fail("%s is not a heap access", n)
	return nil
}

// valueOf returns the reference stored by a write or a compare and swap
func valueOf(n *graph.Node) graph.NodeID {
	if n.Op() == graph.OpCompareAndSwap {
		return n.Input(3)
	}
	return n.Input(n.NumInputs() - 1)
}

// covers returns true if barrier, a node of the op required by r, protects the write. A barrier covers the writes
// to its object, and only those at its location when the write needs a precise barrier.
func covers(barrier, write *graph.Node, r requirement) bool {
	if barrier.NumInputs() == 0 || barrier.Input(0) != write.Input(0) {
		return false
	}
	return !r.precise || barrier.Location() == write.Location()
}
