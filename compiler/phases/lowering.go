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

package phases

import (
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
)

var loweredNodes = debug.Counter("LoweredNodes")

// LoweringPhase replaces the high-level field, array and unsafe accesses by memory accesses carrying their barrier
// requirement:
//
//	StoreField(object, value)                   -> Write(object, value)
//	StoreIndexed(array, index, value)           -> Write(array, index, value)
//	LoadField(object)                           -> Read(object)
//	ArrayCopy(src, srcPos, dst, dstPos, length) -> ArrayRangeWrite(dst, dstPos, length, src, srcPos)
//	UnsafeCompareAndSwap(object, offset, expected, newValue)
//	                                            -> CompareAndSwap(object, offset, expected, newValue)
//
// Stores of non-null references need a precise barrier; other stores need none. Reads of references keep a precise
// barrier when the load is flagged FlagPrecise (weak reference loads).
type LoweringPhase struct{}

func (LoweringPhase) Name() string { return "Lowering" }

func (LoweringPhase) Run(g *graph.Graph, ctx *Context) error {
	for _, id := range g.NodesOf(graph.OpStoreField, graph.OpStoreIndexed, graph.OpLoadField, graph.OpArrayCopy,
		graph.OpUnsafeCompareAndSwap) {
		n := g.Node(id)
		in := n.Inputs()
		var lowered *graph.Node
		switch n.Op() {
		case graph.OpStoreField, graph.OpStoreIndexed:
			value := in[len(in)-1]
			lowered = graph.NewNode(graph.OpWrite, in...).
				WithBarrier(referenceBarrier(g, value))
		case graph.OpLoadField:
			barrier := graph.BarrierNone
			if n.Stamp().IsObject() && n.Has(graph.FlagPrecise) {
				barrier = graph.BarrierPrecise
			}
			lowered = graph.NewNode(graph.OpRead, in...).WithBarrier(barrier).WithStamp(n.Stamp())
		case graph.OpArrayCopy:
			src, srcPos, dst, dstPos, length := in[0], in[1], in[2], in[3], in[4]
			lowered = graph.NewNode(graph.OpArrayRangeWrite, dst, dstPos, length, src, srcPos)
			if n.Has(graph.FlagObjectArray) {
				lowered.WithBarrier(graph.BarrierPrecise)
			}
		case graph.OpUnsafeCompareAndSwap:
			lowered = graph.NewNode(graph.OpCompareAndSwap, in...).WithBarrier(referenceBarrier(g, in[3]))
		}
		lowered.WithLocation(n.Location()).WithFlags(n.Flags()).WithState(n.State())
		g.ReplaceFixed(id, g.Add(lowered))
		loweredNodes.Increment(ctx.Debug)
	}
	g.SetStage(graph.StageMidTierLowered)
	return nil
}

func referenceBarrier(g *graph.Graph, value graph.NodeID) graph.BarrierType {
	if s := g.StampOf(value); s.IsObject() && !s.AlwaysNull() {
		return graph.BarrierPrecise
	}
	return graph.BarrierNone
}
