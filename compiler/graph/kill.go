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
	"golang.org/x/tools/container/intsets"

	"github.com/awslabs/ar-go-jit/compiler/common"
)

// KillCFG removes the control flow subgraph reachable from start, and the floating nodes that only served it.
//
// A merge is killed with the subgraph only when all its forward ends are killed; otherwise the killed ends are
// detached from it, and a merge left with a single end is removed. A loop begin is killed when its forward end is
// killed. A loop begin that loses all its back edges becomes a plain merge, and its exits become plain begins.
func (g *Graph) KillCFG(start NodeID) {
	if !g.IsAlive(start) {
		return
	}
	var marked intsets.Sparse
	worklist := []NodeID{start}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !marked.Insert(int(cur)) {
			continue
		}
		n := g.nodes[cur]
		switch {
		case n.op == OpEnd:
			if m := n.assoc; m != NoNode && g.allEndsIn(m, &marked) {
				worklist = append(worklist, m)
			}
		case n.op == OpLoopEnd:
		default:
			worklist = append(worklist, n.Successors()...)
		}
	}
	g.killMarked(&marked)
}

func (g *Graph) allEndsIn(merge NodeID, set *intsets.Sparse) bool {
	for _, e := range g.nodes[merge].ends {
		if !set.Has(int(e)) {
			return false
		}
	}
	return true
}

// killMarked deletes a marked set of fixed nodes closed under successors, detaching it from the live graph first
func (g *Graph) killMarked(marked *intsets.Sparse) {
	ids := marked.AppendTo(nil)
	var reduce []NodeID
	var degrade []NodeID
	for _, i := range ids {
		n := g.nodes[i]
		m := n.assoc
		if m == NoNode || marked.Has(int(m)) {
			continue
		}
		switch n.op {
		case OpEnd:
			g.RemoveEnd(m, n.id)
			if mn := g.nodes[m]; mn.op == OpMerge && len(mn.ends) == 1 {
				reduce = append(reduce, m)
			}
		case OpLoopEnd:
			g.RemoveLoopEnd(m, n.id)
			if len(g.nodes[m].loopEnds) == 0 {
				degrade = append(degrade, m)
			}
		case OpLoopExit:
			g.detachAssoc(n.id)
		}
	}
	// detach the killed region from its live predecessors
	for _, i := range ids {
		n := g.nodes[i]
		if n.pred != NoNode && !marked.Has(int(n.pred)) {
			g.replaceAtPredecessor(n.id, NoNode)
		}
	}

	dead := g.deadFloatingUsages(marked)
	var inputs []NodeID
	for _, set := range []*intsets.Sparse{marked, dead} {
		for _, i := range set.AppendTo(nil) {
			g.nodes[i].edges(func(to NodeID) {
				if !marked.Has(int(to)) && !dead.Has(int(to)) {
					inputs = append(inputs, to)
				}
			})
		}
	}
	for _, set := range []*intsets.Sparse{marked, dead} {
		for _, i := range set.AppendTo(nil) {
			g.clearEdges(NodeID(i))
		}
	}
	for _, set := range []*intsets.Sparse{marked, dead} {
		for _, i := range set.AppendTo(nil) {
			g.markDeleted(NodeID(i))
		}
	}
	for _, in := range inputs {
		g.KillUnusedFloating(in)
	}
	for _, lb := range degrade {
		if g.IsAlive(lb) {
			g.degradeLoopBegin(lb)
		}
	}
	for _, m := range reduce {
		if g.IsAlive(m) && g.nodes[m].op == OpMerge && len(g.nodes[m].ends) == 1 {
			g.ReduceTrivialMerge(m)
		}
	}
}

// deadFloatingUsages returns the floating nodes that transitively use the killed nodes. They must not have live
// usages outside the killed region.
func (g *Graph) deadFloatingUsages(marked *intsets.Sparse) *intsets.Sparse {
	dead := &intsets.Sparse{}
	var worklist []NodeID
	for _, i := range marked.AppendTo(nil) {
		for _, u := range g.nodes[i].usages {
			if !g.nodes[u].op.IsFixed() {
				worklist = append(worklist, u)
			}
		}
	}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !dead.Insert(int(cur)) {
			continue
		}
		for _, u := range g.nodes[cur].usages {
			if !g.nodes[u].op.IsFixed() {
				worklist = append(worklist, u)
			}
		}
	}
	for _, i := range dead.AppendTo(nil) {
		for _, u := range g.nodes[i].usages {
			common.Assertf(marked.Has(int(u)) || dead.Has(int(u)),
				"%s depends on killed control flow but is used by live node %s", g.nodes[i], g.nodes[u])
		}
	}
	return dead
}

// degradeLoopBegin turns a loop begin without back edges into a merge. Proxies at its exits are replaced by
// their values and the exits become plain begins.
func (g *Graph) degradeLoopBegin(lb NodeID) {
	n := g.nodes[lb]
	common.Assertf(n.op == OpLoopBegin && len(n.loopEnds) == 0, "cannot degrade %s", n)
	for _, exit := range g.LoopExits(lb) {
		for _, p := range g.Proxies(exit) {
			v := g.nodes[p].inputs[0]
			g.ReplaceAtUsages(p, v)
			g.clearEdges(p)
			g.markDeleted(p)
		}
		g.detachAssoc(exit)
		g.nodes[exit].op = OpBegin
	}
	g.uncache(lb)
	n.op = OpMerge
	if len(n.ends) == 1 {
		g.ReduceTrivialMerge(lb)
	}
}

// RemoveDeadCode deletes the fixed nodes unreachable from the start node and the floating nodes not reachable
// from live fixed nodes through data edges. It returns the number of deleted nodes.
func (g *Graph) RemoveDeadCode() int {
	before := g.live
	var reachable intsets.Sparse
	worklist := []NodeID{g.start}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !reachable.Insert(int(cur)) {
			continue
		}
		n := g.nodes[cur]
		if n.op == OpEnd {
			if n.assoc != NoNode {
				worklist = append(worklist, n.assoc)
			}
			continue
		}
		worklist = append(worklist, n.Successors()...)
	}

	var unreachable intsets.Sparse
	for _, n := range g.nodes {
		if !n.deleted && n.op.IsFixed() && !reachable.Has(int(n.id)) {
			unreachable.Insert(int(n.id))
		}
	}
	if !unreachable.IsEmpty() {
		g.killMarked(&unreachable)
	}

	// floating nodes are live if a live fixed node reaches them through data edges
	var live intsets.Sparse
	worklist = worklist[:0]
	for _, n := range g.nodes {
		if !n.deleted && (n.op.IsFixed() || n.op == OpParameter) {
			worklist = append(worklist, n.id)
		}
	}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !live.Insert(int(cur)) {
			continue
		}
		g.nodes[cur].edges(func(to NodeID) { worklist = append(worklist, to) })
		// phis and proxies are anchored at their merge or exit, they are live when their value is used
	}
	var dead []NodeID
	for _, n := range g.nodes {
		if !n.deleted && !live.Has(int(n.id)) {
			dead = append(dead, n.id)
		}
	}
	for _, id := range dead {
		g.clearEdges(id)
	}
	for _, id := range dead {
		g.markDeleted(id)
	}
	return before - g.live
}
