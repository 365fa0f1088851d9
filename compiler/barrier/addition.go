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
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
)

var (
	preBarriers  = debug.Counter("PreWriteBarriers")
	postBarriers = debug.Counter("PostWriteBarriers")
	readBarriers = debug.Counter("ReadBarriers")
)

// AdditionPhase inserts the barriers required by the collector around every lowered heap access. It must run
// after lowering.
//
// With the generational collector, a write of a reference is preceded by a pre-barrier recording the overwritten
// value and followed by a post-barrier recording the written object. Initializing writes do not need the
// pre-barrier, compare and swap always gets one. With the simple collector only post-barriers are inserted.
type AdditionPhase struct {
	// Collector is one of config.CollectorGenerational or config.CollectorSimple
	Collector string
}

func (AdditionPhase) Name() string { return "WriteBarrierAddition" }

func (p AdditionPhase) Run(g *graph.Graph, ctx *phases.Context) error {
	common.Assertf(g.IsAfterStage(graph.StageMidTierLowered), "barriers are added to lowered graphs, %s is not",
		g.Name)
	common.Assertf(!g.IsAfterStage(graph.StageBarrierAddition), "barriers of %s were already added", g.Name)
	for _, id := range g.NodesOf(graph.OpWrite, graph.OpCompareAndSwap, graph.OpArrayRangeWrite, graph.OpRead) {
		n := g.Node(id)
		if n.Op() == graph.OpRead {
			if n.Barrier() == graph.BarrierPrecise && isGenerational(p.Collector) {
				g.AddAfterFixed(id, g.Add(graph.NewNode(graph.OpReadBarrier, addressOf(n)...).
					WithLocation(n.Location()).WithFlags(graph.FlagPrecise)))
				readBarriers.Increment(ctx.Debug)
			}
			continue
		}
		r, ok := requirementOf(p.Collector, n)
		if !ok {
			continue
		}
		if r.pre != graph.OpInvalid {
			g.AddBeforeFixed(id, g.Add(preBarrier(n, r)))
			preBarriers.Increment(ctx.Debug)
		}
		g.AddAfterFixed(id, g.Add(postBarrier(n, r)))
		postBarriers.Increment(ctx.Debug)
		ctx.Debug.Log(debug.DetailedLevel, "added barriers to %s", n)
	}
	g.SetStage(graph.StageBarrierAddition)
	return nil
}

func barrierFlags(r requirement) graph.Flags {
	if r.precise {
		return graph.FlagPrecise
	}
	return 0
}

func preBarrier(write *graph.Node, r requirement) *graph.Node {
	addr := addressOf(write)
	flags := barrierFlags(r)
	switch write.Op() {
	case graph.OpCompareAndSwap:
		addr = append(addr, write.Input(2))
	case graph.OpWrite:
		flags |= graph.FlagDoLoad | write.Flags()&graph.FlagNullCheck
	}
	return graph.NewNode(r.pre, addr...).WithLocation(write.Location()).WithFlags(flags)
}

func postBarrier(write *graph.Node, r requirement) *graph.Node {
	in := addressOf(write)
	if write.Op() != graph.OpArrayRangeWrite {
		in = append(in, valueOf(write))
	}
	return graph.NewNode(r.post, in...).WithLocation(write.Location()).WithFlags(barrierFlags(r))
}

// PhaseFor returns the barrier addition phase of the configured collector
func PhaseFor(cfg *config.Config) AdditionPhase {
	return AdditionPhase{Collector: cfg.Collector}
}
