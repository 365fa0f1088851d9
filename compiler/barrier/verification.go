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

package barrier

import (
	"golang.org/x/tools/container/intsets"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
)

var floodedWrites = debug.Counter("BarrierVerificationFloods")

// VerificationPhase checks that every object write is protected by the barriers of the collector.
//
// A write is accepted when its neighbours are the barriers the addition phase would have inserted. Otherwise the
// control flow is walked backwards from the write: every path must reach a post-barrier covering the write before
// it reaches a node that can deoptimize, a loop begin or the start of the graph. A missing barrier is an assertion
// failure.
type VerificationPhase struct {
	Collector string
}

func (VerificationPhase) Name() string { return "WriteBarrierVerification" }

func (p VerificationPhase) Run(g *graph.Graph, ctx *phases.Context) error {
	common.Assertf(g.IsAfterStage(graph.StageBarrierAddition), "barriers of %s must be added before verification",
		g.Name)
	for _, id := range g.NodesOf(graph.OpWrite, graph.OpCompareAndSwap, graph.OpArrayRangeWrite) {
		n := g.Node(id)
		r, ok := requirementOf(p.Collector, n)
		if !ok || hasAttachedBarriers(g, n, r) {
			continue
		}
		floodedWrites.Increment(ctx.Debug)
		validateWrite(g, n, r)
	}
	return nil
}

// hasAttachedBarriers returns true if the barriers of r are the direct neighbours of write in the control flow
func hasAttachedBarriers(g *graph.Graph, write *graph.Node, r requirement) bool {
	next := write.Next()
	if next == graph.NoNode || g.Op(next) != r.post || !covers(g.Node(next), write, r) {
		return false
	}
	if r.pre == graph.OpInvalid {
		return true
	}
	pred := write.Pred()
	return pred != graph.NoNode && g.Op(pred) == r.pre && covers(g.Node(pred), write, r)
}

// validateWrite floods the control flow backwards from write, stopping at the post-barriers covering it
func validateWrite(g *graph.Graph, write *graph.Node, r requirement) {
	var visited intsets.Sparse
	frontier := g.ControlPredecessors(write.ID())
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if !visited.Insert(int(cur)) {
			continue
		}
		n := g.Node(cur)
		if isSafepoint(n) {
			common.Fail("Write barrier must be present %s", write)
		}
		if n.Op() == r.post && covers(n, write, r) {
			continue
		}
		frontier = append(frontier, g.ControlPredecessors(cur)...)
	}
}

// isSafepoint returns true for the nodes where the collector may observe the heap. Loop begins are safepoints so
// that a barrier outside a loop never covers a write inside it.
func isSafepoint(n *graph.Node) bool {
	return n.CanDeoptimize() || n.Op() == graph.OpLoopBegin || n.Op().IsStart()
}
