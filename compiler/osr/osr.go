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

// Package osr rewrites a graph parsed for on-stack replacement so that it starts at the loop iteration where the
// interpreter transfers control.
//
// The parser marks the transfer point with an EntryMarker node. Its frame state describes the interpreter frame;
// every local of that state is an EntryProxy of the marker. After the transform the graph starts with an OSRStart
// node at the marker, and each proxied local is an OSRLocal read from the interpreter frame.
package osr

import (
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
)

var (
	peeledLoops = debug.Counter("OSRPeeledLoops")
	osrLocals   = debug.Counter("OSRLocals")
)

// Phase applies Transform as part of a suite
type Phase struct{}

func (Phase) Name() string { return "OnStackReplacement" }

func (Phase) Run(g *graph.Graph, ctx *phases.Context) error {
	_, err := Transform(g, ctx.Debug)
	return err
}

// Transform moves the entry of g to its OSR entry marker and returns the number of loops peeled to get the marker
// out of the loops containing it. It returns a bailout when the graph has no marker or when the marker's frame has
// operand stack or lock entries.
func Transform(g *graph.Graph, d *debug.DebugContext) (int, error) {
	markers := g.NodesOf(graph.OpEntryMarker)
	if len(markers) == 0 {
		return 0, common.Bailoutf("No OSR entry marker in %s", g.Name)
	}
	common.Assertf(len(markers) == 1, "%s has %d OSR entry markers", g.Name, len(markers))
	marker := markers[0]
	state := g.Node(marker).State()
	common.Assertf(state != graph.NoNode, "OSR entry marker %s has no frame state", g.Node(marker))
	frame := g.Node(state).Frame()
	if frame.Stack != 0 {
		return 0, common.Bailoutf("OSR with a non-empty operand stack is not supported (bci %d)", frame.BCI)
	}
	if frame.Locks != 0 {
		return 0, common.Bailoutf("OSR with locks is not supported (bci %d)", frame.BCI)
	}

	depth := g.LoopDepth(marker)
	peels := 0
	for {
		lb := g.OutermostLoopContaining(marker)
		if lb == graph.NoNode {
			break
		}
		common.Assertf(peels < depth, "OSR entry of %s still in a loop after %d peels", g.Name, peels)
		d.Log(debug.VerboseLevel, "peeling %s", g.Node(lb))
		copies := g.PeelLoop(lb)
		next := copies[marker]
		removeMarker(g, marker)
		marker = next
		peels++
		peeledLoops.Increment(d)
	}

	m := g.Node(marker)
	state = m.State()
	start := g.Add(graph.NewNode(graph.OpOSRStart).WithState(state))
	frame = g.Node(state).Frame()
	for i := 0; i < int(frame.Locals); i++ {
		v := g.Local(state, i)
		if g.Op(v) != graph.OpEntryProxy {
			continue
		}
		local := g.Unique(graph.NewNode(graph.OpOSRLocal).WithValue(int64(i)).WithStamp(g.StampOf(v).Unrestricted()))
		g.ReplaceAtUsages(v, local)
		g.Delete(v)
		osrLocals.Increment(d)
	}
	dropEntryProxies(g, marker)

	next := m.Next()
	g.SetNext(marker, graph.NoNode)
	g.SetNext(start, next)
	old := g.Start()
	g.SetStart(start)
	g.KillCFG(old)
	g.RemoveDeadCode()
	g.SetStage(graph.StageOSR)
	return peels, nil
}

// dropEntryProxies replaces the entry proxies of marker by their value
func dropEntryProxies(g *graph.Graph, marker graph.NodeID) {
	for _, u := range g.Node(marker).Usages() {
		if !g.IsAlive(u) || g.Op(u) != graph.OpEntryProxy {
			continue
		}
		g.ReplaceAtUsages(u, g.Node(u).Input(0))
		g.Delete(u)
	}
}

// removeMarker removes a marker left inside the loop by peeling
func removeMarker(g *graph.Graph, marker graph.NodeID) {
	dropEntryProxies(g, marker)
	state := g.Node(marker).State()
	g.RemoveFixed(marker)
	if state != graph.NoNode {
		g.KillUnusedFloating(state)
	}
}
