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
	"sort"

	"github.com/awslabs/ar-go-jit/compiler/common"
)

// SetNext links b as the successor of a. The previous successor of a is unlinked. b must not have a predecessor.
func (g *Graph) SetNext(a, b NodeID) {
	an := g.Node(a)
	common.Assertf(an.op.HasNext(), "%s has no next edge", an)
	if an.next != NoNode {
		g.nodes[an.next].pred = NoNode
	}
	an.next = b
	if b != NoNode {
		bn := g.Node(b)
		common.Assertf(bn.op.IsFixed(), "floating node %s cannot be a control successor", bn)
		common.Assertf(bn.pred == NoNode, "%s already has predecessor %d", bn, bn.pred)
		bn.pred = a
	}
}

// replaceAtPredecessor makes the predecessor of old point to v instead
func (g *Graph) replaceAtPredecessor(old, v NodeID) {
	o := g.nodes[old]
	p := o.pred
	if p == NoNode {
		return
	}
	pn := g.nodes[p]
	if pn.next == old {
		pn.next = v
	} else {
		i := indexOf(pn.succs, old)
		common.Assertf(i >= 0, "%s is not a successor of its predecessor %s", o, pn)
		pn.succs[i] = v
	}
	o.pred = NoNode
	if v != NoNode {
		common.Assertf(g.nodes[v].pred == NoNode, "%s already has a predecessor", g.nodes[v])
		g.nodes[v].pred = p
	}
}

// unlinkNext detaches the successor of id and returns it
func (g *Graph) unlinkNext(id NodeID) NodeID {
	n := g.nodes[id]
	nx := n.next
	if nx != NoNode {
		g.nodes[nx].pred = NoNode
		n.next = NoNode
	}
	return nx
}

// ReplaceFixed puts v, an unlinked fixed node with a successor edge, at the control flow position of old. The
// usages of old move to v and old is deleted.
func (g *Graph) ReplaceFixed(old, v NodeID) {
	o := g.Node(old)
	vn := g.Node(v)
	common.Assertf(o.op.HasNext() && vn.op.HasNext(), "ReplaceFixed(%s, %s) needs nodes with a next edge", o, vn)
	common.Assertf(vn.pred == NoNode && vn.next == NoNode, "%s is already linked", vn)
	g.ReplaceAtUsages(old, v)
	g.replaceAtPredecessor(old, v)
	g.SetNext(v, g.unlinkNext(old))
	g.Delete(old)
}

// ReplaceFixedWithFloating unlinks old from the control flow, redirects its usages to the floating node v and
// deletes old.
func (g *Graph) ReplaceFixedWithFloating(old, v NodeID) {
	o := g.Node(old)
	common.Assertf(o.op.HasNext() && !o.op.IsBegin(), "cannot replace %s with a floating node", o)
	common.Assertf(!g.Node(v).op.IsFixed(), "%s is not floating", g.Node(v))
	g.ReplaceAtUsages(old, v)
	nx := g.unlinkNext(old)
	g.replaceAtPredecessor(old, nx)
	g.Delete(old)
}

// RemoveFixed unlinks a fixed node without usages from the control flow and deletes it
func (g *Graph) RemoveFixed(id NodeID) {
	n := g.Node(id)
	common.Assertf(n.op.HasNext() && !n.op.IsBegin(), "cannot remove %s", n)
	nx := g.unlinkNext(id)
	g.replaceAtPredecessor(id, nx)
	g.Delete(id)
}

// RemoveFixedWithUnusedInputs removes a fixed node and kills the floating inputs that become unused
func (g *Graph) RemoveFixedWithUnusedInputs(id NodeID) {
	var inputs []NodeID
	g.Node(id).edges(func(to NodeID) { inputs = append(inputs, to) })
	g.RemoveFixed(id)
	for _, in := range inputs {
		g.KillUnusedFloating(in)
	}
}

// AddBeforeFixed links the unlinked node v just before the fixed node fixed
func (g *Graph) AddBeforeFixed(fixed, v NodeID) {
	f := g.Node(fixed)
	vn := g.Node(v)
	common.Assertf(!f.op.IsBegin(), "cannot add %s before begin %s", vn, f)
	common.Assertf(vn.op.HasNext() && vn.pred == NoNode && vn.next == NoNode, "%s is not an unlinked fixed node", vn)
	g.replaceAtPredecessor(fixed, v)
	g.SetNext(v, fixed)
}

// AddAfterFixed links the unlinked node v just after the fixed node fixed
func (g *Graph) AddAfterFixed(fixed, v NodeID) {
	f := g.Node(fixed)
	vn := g.Node(v)
	common.Assertf(f.op.HasNext(), "cannot add %s after %s", vn, f)
	common.Assertf(vn.op.HasNext() && vn.pred == NoNode && vn.next == NoNode, "%s is not an unlinked fixed node", vn)
	nx := g.unlinkNext(fixed)
	g.SetNext(fixed, v)
	g.SetNext(v, nx)
}

// AddEnd adds end as a forward end of merge. The phis of merge must be given a value for it with AppendInput.
func (g *Graph) AddEnd(merge, end NodeID) {
	m := g.Node(merge)
	e := g.Node(end)
	common.Assertf(m.op.IsMerge() && e.op == OpEnd, "AddEnd(%s, %s)", m, e)
	common.Assertf(e.assoc == NoNode, "%s already ends a merge", e)
	common.Assertf(len(m.loopEnds) == 0, "cannot add forward ends to %s after its loop ends", m)
	m.ends = append(m.ends, end)
	e.assoc = merge
	g.addUsage(merge, end)
}

// AddLoopEnd adds loopEnd as a back edge of loopBegin
func (g *Graph) AddLoopEnd(loopBegin, loopEnd NodeID) {
	lb := g.Node(loopBegin)
	le := g.Node(loopEnd)
	common.Assertf(lb.op == OpLoopBegin && le.op == OpLoopEnd, "AddLoopEnd(%s, %s)", lb, le)
	common.Assertf(le.assoc == NoNode, "%s already ends a loop", le)
	lb.loopEnds = append(lb.loopEnds, loopEnd)
	le.assoc = loopBegin
	g.addUsage(loopBegin, loopEnd)
}

// RemoveEnd detaches a forward end from its merge and removes the matching phi values
func (g *Graph) RemoveEnd(merge, end NodeID) {
	m := g.Node(merge)
	i := indexOf(m.ends, end)
	common.Assertf(i >= 0, "%s is not an end of %s", g.Node(end), m)
	for _, phi := range g.Phis(merge) {
		g.removeInput(phi, i+1)
	}
	m.ends = append(m.ends[:i], m.ends[i+1:]...)
	g.detachAssoc(end)
}

// RemoveLoopEnd detaches a back edge from its loop begin and removes the matching phi values
func (g *Graph) RemoveLoopEnd(loopBegin, loopEnd NodeID) {
	lb := g.Node(loopBegin)
	i := indexOf(lb.loopEnds, loopEnd)
	common.Assertf(i >= 0, "%s is not a loop end of %s", g.Node(loopEnd), lb)
	for _, phi := range g.Phis(loopBegin) {
		g.removeInput(phi, 1+len(lb.ends)+i)
	}
	lb.loopEnds = append(lb.loopEnds[:i], lb.loopEnds[i+1:]...)
	g.detachAssoc(loopEnd)
}

func (g *Graph) detachAssoc(id NodeID) {
	n := g.nodes[id]
	if n.assoc != NoNode {
		g.removeUsage(n.assoc, id)
		n.assoc = NoNode
	}
}

// Phis returns the phis of a merge in id order
func (g *Graph) Phis(merge NodeID) []NodeID {
	var r []NodeID
	for _, u := range g.Node(merge).usages {
		un := g.nodes[u]
		if un.op == OpPhi && len(un.inputs) > 0 && un.inputs[0] == merge && indexOf(r, u) < 0 {
			r = append(r, u)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}

// AddPhi adds a phi at merge with the given values, ordered as the ends then the loop ends of merge
func (g *Graph) AddPhi(merge NodeID, values ...NodeID) NodeID {
	in := append([]NodeID{merge}, values...)
	return g.Add(NewNode(OpPhi, in...))
}

// PhiValueAt returns the value of phi for the i-th end of its merge, loop ends counted after the forward ends
func (g *Graph) PhiValueAt(phi NodeID, i int) NodeID {
	return g.Node(phi).inputs[i+1]
}

// LoopExits returns the exits of a loop begin in id order
func (g *Graph) LoopExits(loopBegin NodeID) []NodeID {
	var r []NodeID
	for _, u := range g.Node(loopBegin).usages {
		if un := g.nodes[u]; un.op == OpLoopExit && un.assoc == loopBegin {
			r = append(r, u)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}

// Proxies returns the value proxies anchored at a loop exit
func (g *Graph) Proxies(exit NodeID) []NodeID {
	var r []NodeID
	for _, u := range g.Node(exit).usages {
		if un := g.nodes[u]; un.op == OpValueProxy && un.inputs[1] == exit && indexOf(r, u) < 0 {
			r = append(r, u)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}

// ControlPredecessors returns the control flow predecessors of a fixed node: the ends of a merge (loop ends
// included), the predecessor of any other node.
func (g *Graph) ControlPredecessors(id NodeID) []NodeID {
	n := g.Node(id)
	if n.op.IsMerge() {
		r := append([]NodeID(nil), n.ends...)
		return append(r, n.loopEnds...)
	}
	if n.pred == NoNode {
		return nil
	}
	return []NodeID{n.pred}
}

// ControlSuccessors returns the control flow successors of a fixed node, following ends to their merge.
func (g *Graph) ControlSuccessors(id NodeID) []NodeID {
	n := g.Node(id)
	if n.op.IsEnd() {
		if n.assoc == NoNode {
			return nil
		}
		return []NodeID{n.assoc}
	}
	return n.Successors()
}

// ReduceTrivialMerge removes a merge with a single forward end and no loop ends: its phis are replaced by their
// only value and the block before the end flows into the block of the merge.
func (g *Graph) ReduceTrivialMerge(merge NodeID) {
	m := g.Node(merge)
	common.Assertf(m.op == OpMerge && len(m.ends) == 1, "%s is not a trivial merge", m)
	for _, phi := range g.Phis(merge) {
		v := g.nodes[phi].inputs[1]
		g.ReplaceAtUsages(phi, v)
		g.clearEdges(phi)
		g.markDeleted(phi)
	}
	end := m.ends[0]
	m.ends = nil
	g.detachAssoc(end)
	p := g.nodes[end].pred
	g.replaceAtPredecessor(end, NoNode)
	g.Delete(end)
	nx := g.unlinkNext(merge)
	if state := m.state; state != NoNode {
		g.SetStateAfter(merge, NoNode)
		g.KillUnusedFloating(state)
	}
	common.Assertf(len(m.usages) == 0, "trivial merge %s still has usages %v", m, m.usages)
	g.Delete(merge)
	g.SetNext(p, nx)
}

// RemoveSplit replaces a control split by its successor survivor and kills the control flow of the other
// successors. The condition of the split is killed if it becomes unused.
func (g *Graph) RemoveSplit(split, survivor NodeID) {
	n := g.Node(split)
	common.Assertf(n.op.IsSplit() && indexOf(n.succs, survivor) >= 0, "%d is not a successor of %s", survivor, n)
	common.Assertf(len(n.usages) == 0, "split %s has usages", n)
	succs := n.succs
	n.succs = nil
	for _, s := range succs {
		g.nodes[s].pred = NoNode
	}
	for _, s := range succs {
		if s != survivor {
			g.KillCFG(s)
		}
	}
	inputs := n.Inputs()
	g.replaceAtPredecessor(split, survivor)
	g.clearEdges(split)
	g.markDeleted(split)
	for _, in := range inputs {
		g.KillUnusedFloating(in)
	}
}

func indexOf(s []NodeID, id NodeID) int {
	for i, x := range s {
		if x == id {
			return i
		}
	}
	return -1
}
