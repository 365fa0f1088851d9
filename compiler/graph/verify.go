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

package graph

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/internal/graphutil"
)

// Verify checks the structural invariants of the graph and returns an error describing every violation found.
func (g *Graph) Verify() error {
	var errs []error
	report := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	starts := 0
	expected := make([]int, len(g.nodes))
	for _, n := range g.nodes {
		if n.deleted {
			continue
		}
		if n.op.IsStart() {
			starts++
		}
		n.edges(func(to NodeID) {
			if !g.IsAlive(to) {
				report("%s has an edge to dead node %d", n, to)
				return
			}
			expected[to]++
		})
		g.verifyNode(n, report)
	}
	if starts != 1 {
		report("graph has %d start nodes", starts)
	}
	if !g.IsAlive(g.start) || !g.nodes[g.start].op.IsStart() {
		report("the start node %d is not a live start", g.start)
	}
	for _, n := range g.nodes {
		if !n.deleted && len(n.usages) != expected[n.id] {
			report("%s has %d usages but %d edges point to it", n, len(n.usages), expected[n.id])
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return g.verifyControlFlow()
}

func (g *Graph) verifyNode(n *Node, report func(string, ...any)) {
	if !n.op.IsFixed() {
		if n.pred != NoNode || n.next != NoNode {
			report("floating node %s is linked in the control flow", n)
		}
		if n.op == OpPhi {
			if len(n.inputs) == 0 || !g.IsAlive(n.inputs[0]) || !g.nodes[n.inputs[0]].op.IsMerge() {
				report("phi %s is not attached to a merge", n)
				return
			}
			m := g.nodes[n.inputs[0]]
			if want := len(m.ends) + len(m.loopEnds); len(n.inputs)-1 != want {
				report("phi %s has %d values but its merge %s has %d ends", n, len(n.inputs)-1, m, want)
			}
		}
		return
	}
	if n.next != NoNode && (!g.IsAlive(n.next) || g.nodes[n.next].pred != n.id) {
		report("successor of %s does not point back to it", n)
	}
	for _, s := range n.succs {
		if !g.IsAlive(s) || g.nodes[s].pred != n.id {
			report("successor %d of split %s does not point back to it", s, n)
		}
	}
	if n.op.HasNext() && n.next == NoNode {
		report("%s has no successor", n)
	}
	needsPred := !n.op.IsStart() && !n.op.IsMerge()
	if needsPred && n.pred == NoNode {
		report("%s has no predecessor", n)
	}
	if n.op.IsMerge() && n.pred != NoNode {
		report("merge %s has a predecessor", n)
	}
	if n.op.IsEnd() || n.op == OpLoopExit {
		m := n.assoc
		switch {
		case m == NoNode || !g.IsAlive(m):
			report("%s is not attached to a merge", n)
		case n.op == OpEnd && indexOf(g.nodes[m].ends, n.id) < 0:
			report("%s is not an end of %s", n, g.nodes[m])
		case n.op == OpLoopEnd && indexOf(g.nodes[m].loopEnds, n.id) < 0:
			report("%s is not a loop end of %s", n, g.nodes[m])
		case n.op == OpLoopExit && g.nodes[m].op != OpLoopBegin:
			report("loop exit %s is attached to %s", n, g.nodes[m])
		}
	}
	if n.op == OpLoopBegin && len(n.ends) != 1 {
		report("loop begin %s has %d forward ends", n, len(n.ends))
	}
}

// verifyControlFlow checks that every live fixed node is reachable, that every cycle goes through a loop begin, and
// that loop begins dominate their loop ends and exits.
func (g *Graph) verifyControlFlow() error {
	d := g.ControlFlowGraph()
	var errs []error
	for _, n := range g.nodes {
		if !n.deleted && n.op.IsFixed() && !d.HasNode(int64(n.id)) {
			errs = append(errs, fmt.Errorf("%s is not reachable from the start node", n))
		}
	}
	for _, c := range g.cyclesWithoutLoopBegin(d) {
		ids := make([]int64, len(c))
		for i, v := range c {
			ids[i] = int64(v)
		}
		cycles := graphutil.FindAllElementaryCycles(graphutil.Subgraph(d, ids))
		if len(cycles) > 0 {
			ids = cycles[0]
		}
		errs = append(errs, fmt.Errorf("control flow cycle %v does not go through a loop begin", ids))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	dt := flow.Dominators(simple.Node(g.start), d.Gonum())
	dominates := func(a, b NodeID) bool {
		for cur := int64(b); ; {
			if cur == int64(a) {
				return true
			}
			idom := dt.DominatorOf(cur)
			if idom == nil {
				return false
			}
			cur = idom.ID()
		}
	}
	for _, lb := range g.Loops() {
		for _, x := range append(g.nodes[lb].LoopEnds(), g.LoopExits(lb)...) {
			if !dominates(lb, x) {
				errs = append(errs, fmt.Errorf("%s does not dominate %s", g.nodes[lb], g.nodes[x]))
			}
		}
	}
	return errors.Join(errs...)
}

// MustVerify panics with an assertion error if the graph is malformed
func (g *Graph) MustVerify() {
	if err := g.Verify(); err != nil {
		common.Fail("graph %s is malformed: %v", g.Name, err)
	}
}
