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

package osr

import (
	"strings"
	"testing"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

// buildNested returns a graph with depth nested loops and an OSR entry marker in the innermost loop. The marker
// frame has one local, proxied, a stack entry when stack is set and a held lock when locked is set.
func buildNested(depth int, stack, locked bool) *graph.Graph {
	g := graph.New("nested")
	b := graph.NewBuilder(g)
	x := g.Parameter(0, stamp.ForInteger(stamp.Int, 0, 100))
	cond := g.Binary(graph.OpIntegerEquals, g.Parameter(1, stamp.ForInteger(stamp.Int, 0, 1)),
		g.Constant(stamp.Int, 0))
	var loops, exits []graph.NodeID
	for i := 0; i < depth; i++ {
		lb := b.LoopBegin()
		stay, exit := b.BranchExit(cond, lb)
		b.SetCurrent(stay)
		loops = append(loops, lb)
		exits = append(exits, exit)
	}
	marker := b.Append(graph.NewNode(graph.OpEntryMarker))
	proxy := g.Add(graph.NewNode(graph.OpEntryProxy, x, marker))
	var stackValues []graph.NodeID
	if stack {
		stackValues = []graph.NodeID{g.Constant(stamp.Int, 1)}
	}
	var locks []graph.NodeID
	if locked {
		locks = []graph.NodeID{g.Parameter(2, stamp.ForObject("Object", true))}
	}
	g.SetStateAfter(marker, g.FrameState(12, []graph.NodeID{proxy}, stackValues, locks))
	b.Append(graph.NewNode(graph.OpInvoke, proxy).WithTarget("body").WithStamp(stamp.ForVoid()))
	for i := depth - 1; i >= 0; i-- {
		b.LoopEnd(loops[i])
		b.SetCurrent(exits[i])
	}
	b.Return(graph.NoNode)
	return g
}

func TestTransformNestedLoops(t *testing.T) {
	g := buildNested(3, false, false)
	if err := g.Verify(); err != nil {
		t.Fatalf("input graph should verify: %v", err)
	}
	peels, err := Transform(g, debug.Disabled())
	if err != nil {
		t.Fatalf("OSR transform failed: %v", err)
	}
	if peels != 3 {
		t.Errorf("expected 3 peels, got %d", peels)
	}
	if c := g.CountOf(graph.OpEntryMarker); c != 0 {
		t.Errorf("expected no entry marker left, found %d", c)
	}
	if c := g.CountOf(graph.OpEntryProxy); c != 0 {
		t.Errorf("expected no entry proxy left, found %d", c)
	}
	if g.CountOf(graph.OpOSRStart) != 1 || g.CountOf(graph.OpStart) != 0 {
		t.Errorf("expected a single OSR start, found %d starts and %d OSR starts", g.CountOf(graph.OpStart),
			g.CountOf(graph.OpOSRStart))
	}
	if g.Op(g.Start()) != graph.OpOSRStart {
		t.Errorf("the graph should start at the OSR start")
	}
	if !g.IsAfterStage(graph.StageOSR) {
		t.Errorf("the graph should be marked as transformed")
	}
	locals := g.NodesOf(graph.OpOSRLocal)
	if len(locals) != 1 {
		t.Fatalf("expected a single OSR local, found %d", len(locals))
	}
	if s := g.StampOf(locals[0]); !s.IsUnrestricted() {
		t.Errorf("OSR locals must have an unrestricted stamp, got %s", s)
	}
	first := g.Node(g.Node(g.Start()).Next())
	if first.Op() != graph.OpInvoke || first.Input(0) != locals[0] {
		t.Errorf("the code after the entry should use the OSR local, got %s", first)
	}
	// the rest of the innermost loop, the middle loop and its inner loop, the outer loop and its two inner loops
	if n := len(g.Loops()); n != 6 {
		t.Errorf("expected 6 loops after the entry, found %d", n)
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("transformed graph should verify: %v", err)
	}
}

func TestTransformWithoutLoop(t *testing.T) {
	g := buildNested(0, false, false)
	peels, err := Transform(g, debug.Disabled())
	if err != nil || peels != 0 {
		t.Fatalf("expected a transform without peeling, got %d peels and %v", peels, err)
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("transformed graph should verify: %v", err)
	}
}

func TestTransformBailouts(t *testing.T) {
	g := graph.New("no marker")
	graph.NewBuilder(g).Return(graph.NoNode)
	_, err := Transform(g, debug.Disabled())
	if !common.IsBailout(err) || !strings.Contains(err.Error(), "No OSR entry marker") {
		t.Errorf("a graph without marker should bail out, got %v", err)
	}

	g = buildNested(2, true, false)
	_, err = Transform(g, debug.Disabled())
	if !common.IsBailout(err) {
		t.Errorf("a marker with stack entries should bail out, got %v", err)
	}
	if g.CountOf(graph.OpEntryMarker) != 1 || g.CountOf(graph.OpStart) != 1 {
		t.Errorf("a bailout must leave the graph unchanged")
	}

	g = buildNested(2, false, true)
	nodes := g.NodeCount()
	_, err = Transform(g, debug.Disabled())
	if !common.IsBailout(err) || !strings.Contains(err.Error(), "locks") {
		t.Errorf("a marker holding a lock should bail out, got %v", err)
	}
	if g.CountOf(graph.OpEntryMarker) != 1 || g.CountOf(graph.OpStart) != 1 || g.NodeCount() != nodes {
		t.Errorf("a bailout must leave the graph unchanged")
	}
	if g.IsAfterStage(graph.StageOSR) {
		t.Errorf("a graph that bailed out is not transformed")
	}
}

func TestMultipleMarkersFail(t *testing.T) {
	g := graph.New("two markers")
	b := graph.NewBuilder(g)
	b.Append(graph.NewNode(graph.OpEntryMarker))
	b.Append(graph.NewNode(graph.OpEntryMarker))
	b.Return(graph.NoNode)
	if common.CatchAssertion(func() { _, _ = Transform(g, debug.Disabled()) }) == nil {
		t.Errorf("two entry markers are an internal error")
	}
}
