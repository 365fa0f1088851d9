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

	"github.com/yourbasic/graph"
	"golang.org/x/tools/container/intsets"

	"github.com/awslabs/ar-go-jit/internal/graphutil"
)

// ControlFlowGraph returns the control flow graph of the fixed nodes reachable from the start node. Ends have an
// edge to their merge and loop ends to their loop begin.
func (g *Graph) ControlFlowGraph() *graphutil.Digraph {
	d := graphutil.NewDigraph(len(g.nodes))
	var visited intsets.Sparse
	worklist := []NodeID{g.start}
	d.AddNode(int64(g.start))
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if !visited.Insert(int(cur)) {
			continue
		}
		for _, s := range g.ControlSuccessors(cur) {
			d.AddEdge(int64(cur), int64(s))
			worklist = append(worklist, s)
		}
	}
	return d
}

// Loops returns the live loop begins in id order
func (g *Graph) Loops() []NodeID {
	return g.NodesOf(OpLoopBegin)
}

// LoopBody returns the set of fixed nodes in the loop of lb, lb included. The body is the part of the control
// flow reachable from lb without leaving the loop through one of its exits.
func (g *Graph) LoopBody(lb NodeID) *intsets.Sparse {
	body := &intsets.Sparse{}
	worklist := []NodeID{lb}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		n := g.nodes[cur]
		if n.op == OpLoopExit && n.assoc == lb {
			continue
		}
		if !body.Insert(int(cur)) {
			continue
		}
		worklist = append(worklist, g.ControlSuccessors(cur)...)
	}
	return body
}

// LoopsContaining returns the loop begins whose loop body contains id, outermost loop first
func (g *Graph) LoopsContaining(id NodeID) []NodeID {
	chain := g.innermostLoop(id).Ancestors(-1)[1:]
	r := make([]NodeID, len(chain))
	for i, t := range chain {
		r[i] = t.Label
	}
	return r
}

// LoopDepth returns the number of loops containing id
func (g *Graph) LoopDepth(id NodeID) int {
	return g.innermostLoop(id).Depth()
}

// OutermostLoopContaining returns the begin of the outermost loop containing id, or NoNode if id is not in a loop.
func (g *Graph) OutermostLoopContaining(id NodeID) NodeID {
	chain := g.innermostLoop(id).Ancestors(-1)
	if len(chain) < 2 {
		return NoNode
	}
	return chain[1].Label
}

// innermostLoop returns the node of the loop tree of the innermost loop containing id, or the root
func (g *Graph) innermostLoop(id NodeID) *graphutil.Tree[NodeID] {
	root, bodies := g.loopNest()
	found := root
	root.Walk(func(t *graphutil.Tree[NodeID]) bool {
		if t == root {
			return true
		}
		if !bodies[t.Label].Has(int(id)) {
			return false
		}
		if t.Depth() > found.Depth() {
			found = t
		}
		return true
	})
	return found
}

// cyclesWithoutLoopBegin returns the strongly connected components of the control flow graph d that do not go
// through a loop begin. Every cycle of a well formed graph is closed by a loop end.
func (g *Graph) cyclesWithoutLoopBegin(d *graphutil.Digraph) [][]int {
	var r [][]int
	for _, c := range graph.StrongComponents(d) {
		if len(c) < 2 && !d.Edges[int64(c[0])][int64(c[0])] {
			continue
		}
		marked := false
		for _, v := range c {
			if g.nodes[v].op == OpLoopBegin {
				marked = true
				break
			}
		}
		if !marked {
			r = append(r, c)
		}
	}
	return r
}

// LoopTree returns the loop nest of the graph. The root is labelled NoNode, the other nodes are labelled with
// loop begins, and the children of a loop are the loops directly nested in it.
func (g *Graph) LoopTree() *graphutil.Tree[NodeID] {
	root, _ := g.loopNest()
	return root
}

// loopNest builds the loop tree along with the body of every loop
func (g *Graph) loopNest() (*graphutil.Tree[NodeID], map[NodeID]*intsets.Sparse) {
	root := graphutil.NewTree(NoNode)
	type loop struct {
		lb   NodeID
		body *intsets.Sparse
		node *graphutil.Tree[NodeID]
	}
	var loops []*loop
	bodies := make(map[NodeID]*intsets.Sparse)
	for _, lb := range g.Loops() {
		l := &loop{lb: lb, body: g.LoopBody(lb)}
		loops = append(loops, l)
		bodies[lb] = l.body
	}
	// an outer loop body strictly contains the bodies of its inner loops
	sort.SliceStable(loops, func(i, j int) bool { return loops[i].body.Len() > loops[j].body.Len() })
	for i, l := range loops {
		parent := root
		// the innermost enclosing loop is the last larger loop that contains the header
		for j := i - 1; j >= 0; j-- {
			if loops[j].body.Has(int(l.lb)) {
				parent = loops[j].node
				break
			}
		}
		l.node = parent.AddChild(l.lb)
	}
	return root, bodies
}
