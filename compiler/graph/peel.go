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

// PeelLoop copies the first iteration of the loop of lb in front of the loop. It returns the map from the nodes
// of the loop to their copy in the peeled iteration.
//
// The peeled iteration is entered from the forward end of the loop. Its back edges jump to the loop begin, so the
// loop phis take the values computed by the peeled iteration. Each loop exit is merged with its copy; the value
// proxies of the exit become phis of that merge. Loop phis are not copied: in the peeled iteration they are
// replaced by their initial value.
func (g *Graph) PeelLoop(lb NodeID) map[NodeID]NodeID {
	l := g.Node(lb)
	common.Assertf(l.op == OpLoopBegin && len(l.ends) == 1 && len(l.loopEnds) > 0, "cannot peel %s", l)
	body := g.LoopBody(lb)
	exits := g.LoopExits(lb)
	phis := g.Phis(lb)

	initial := map[NodeID]NodeID{}
	for _, phi := range phis {
		initial[phi] = g.nodes[phi].inputs[1]
	}
	isExitProxy := func(id NodeID) bool {
		n := g.nodes[id]
		return n.op == OpValueProxy && g.nodes[n.inputs[1]].op == OpLoopExit && g.nodes[n.inputs[1]].assoc == lb
	}

	// the floating nodes depending on the loop are copied with it
	floating := &intsets.Sparse{}
	worklist := body.AppendTo(nil)
	for len(worklist) > 0 {
		cur := NodeID(worklist[len(worklist)-1])
		worklist = worklist[:len(worklist)-1]
		for _, u := range g.nodes[cur].usages {
			un := g.nodes[u]
			if un.op.IsFixed() || isExitProxy(u) || floating.Has(int(u)) {
				continue
			}
			floating.Insert(int(u))
			worklist = append(worklist, int(u))
		}
	}
	for _, phi := range phis {
		floating.Remove(int(phi))
	}

	copies := map[NodeID]NodeID{}
	var order []NodeID
	for _, set := range []*intsets.Sparse{body, floating} {
		for _, i := range set.AppendTo(nil) {
			order = append(order, NodeID(i))
		}
	}
	for _, id := range order {
		n := g.nodes[id]
		op := n.op
		switch {
		case id == lb:
			op = OpMerge
		case op == OpLoopEnd && n.assoc == lb:
			op = OpEnd
		}
		c := NewNode(op).WithStamp(n.stamp).WithValue(n.value).WithLocation(n.location).WithBarrier(n.barrier).
			WithFlags(n.flags).WithTarget(n.target).WithFrame(n.frame)
		copies[id] = g.Add(c)
	}
	mapped := func(v NodeID) NodeID {
		if c, ok := copies[v]; ok {
			return c
		}
		if init, ok := initial[v]; ok {
			return init
		}
		return v
	}

	exitCopies := map[NodeID]NodeID{}
	for _, id := range order {
		n := g.nodes[id]
		c := g.nodes[copies[id]]
		for _, in := range n.inputs {
			v := in
			if in != NoNode {
				v = mapped(in)
				g.addUsage(v, c.id)
			}
			c.inputs = append(c.inputs, v)
		}
		if n.state != NoNode {
			c.state = mapped(n.state)
			g.addUsage(c.state, c.id)
		}
		if n.assoc != NoNode && n.assoc != lb {
			c.assoc = mapped(n.assoc)
			g.addUsage(c.assoc, c.id)
		}
		if id != lb {
			for _, e := range n.ends {
				c.ends = append(c.ends, copies[e])
			}
			for _, e := range n.loopEnds {
				c.loopEnds = append(c.loopEnds, copies[e])
			}
		}
		if n.next != NoNode {
			c.next = copies[n.next]
			g.nodes[c.next].pred = c.id
		}
		for _, s := range n.succs {
			sc, ok := copies[s]
			if !ok {
				common.Assertf(g.nodes[s].op == OpLoopExit && g.nodes[s].assoc == lb, "%s leaves the loop of %s",
					g.nodes[s], l)
				// in the peeled iteration an exit of the loop is a plain branch
				sc = g.Add(NewNode(OpBegin))
				exitCopies[s] = sc
			}
			c.succs = append(c.succs, sc)
			g.nodes[sc].pred = c.id
		}
	}

	// the forward end of the loop now enters the peeled iteration
	entry := l.ends[0]
	peeled := copies[lb]
	l.ends = nil
	g.removeUsage(lb, entry)
	g.nodes[entry].assoc = NoNode
	g.AddEnd(peeled, entry)

	// the back edges of the peeled iteration enter the loop
	back := g.Add(NewNode(OpMerge))
	for _, le := range l.loopEnds {
		g.AddEnd(back, copies[le])
	}
	loopEntry := g.Add(NewNode(OpEnd))
	g.SetNext(back, loopEntry)
	l.ends = []NodeID{loopEntry}
	g.nodes[loopEntry].assoc = lb
	g.addUsage(lb, loopEntry)
	for _, phi := range phis {
		p := g.nodes[phi]
		values := make([]NodeID, len(l.loopEnds))
		for i := range l.loopEnds {
			values[i] = mapped(p.inputs[2+i])
		}
		v := values[0]
		if len(values) > 1 {
			v = g.AddPhi(back, values...)
		}
		g.SetInput(phi, 1, v)
	}

	for _, x := range exits {
		if c, ok := exitCopies[x]; ok {
			g.mergeExit(x, c, mapped)
		}
	}

	g.ReduceTrivialMerge(peeled)
	if len(g.nodes[back].ends) == 1 {
		g.ReduceTrivialMerge(back)
	}
	return copies
}

// mergeExit merges the loop exit x with its copy in the peeled iteration. The value proxies of x become phis.
func (g *Graph) mergeExit(x, copied NodeID, mapped func(NodeID) NodeID) {
	after := g.unlinkNext(x)
	fromLoop := g.Add(NewNode(OpEnd))
	g.SetNext(x, fromLoop)
	fromPeel := g.Add(NewNode(OpEnd))
	g.SetNext(copied, fromPeel)
	m := g.Add(NewNode(OpMerge))
	g.AddEnd(m, fromLoop)
	g.AddEnd(m, fromPeel)
	g.SetNext(m, after)
	for _, p := range g.Proxies(x) {
		phi := g.AddPhi(m, p, mapped(g.nodes[p].inputs[0]))
		g.ReplaceAtMatchingUsages(p, phi, func(u NodeID) bool { return u != phi })
	}
}

// SetStart makes id, a start node, the entry of the graph
func (g *Graph) SetStart(id NodeID) {
	common.Assertf(g.Node(id).op.IsStart(), "%s is not a start node", g.Node(id))
	g.start = id
}
