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

import "github.com/awslabs/ar-go-jit/compiler/common"

// Builder appends fixed nodes to a graph in control flow order. The current node is the last appended node with
// an open successor edge; it is NoNode after a control sink, a split or an end.
type Builder struct {
	G    *Graph
	last NodeID
}

// NewBuilder returns a builder positioned after the start node of g
func NewBuilder(g *Graph) *Builder {
	return &Builder{G: g, last: g.Start()}
}

// Current returns the node the next fixed node will be appended to
func (b *Builder) Current() NodeID { return b.last }

// SetCurrent positions the builder after id, which must have an open successor edge
func (b *Builder) SetCurrent(id NodeID) {
	n := b.G.Node(id)
	common.Assertf(n.op.HasNext() && n.next == NoNode, "cannot append after %s", n)
	b.last = id
}

// Append adds a fixed node and links it after the current node
func (b *Builder) Append(n *Node) NodeID {
	common.Assertf(b.last != NoNode, "no open control flow to append %s to", n)
	common.Assertf(n.op.IsFixed() && !n.op.IsMerge() && !n.op.IsStart(), "cannot append %s", n)
	id := b.G.Add(n)
	b.G.SetNext(b.last, id)
	if n.op.HasNext() {
		b.last = id
	} else {
		b.last = NoNode
	}
	return id
}

// Branch appends an If on cond and returns the begins of its true and false successors
func (b *Builder) Branch(cond NodeID) (tBegin, fBegin NodeID) {
	tBegin = b.G.Add(NewNode(OpBegin))
	fBegin = b.G.Add(NewNode(OpBegin))
	b.Append(NewNode(OpIf, cond).WithSuccessors(tBegin, fBegin))
	return tBegin, fBegin
}

// BranchExit appends an If on cond whose false successor leaves loop lb. It returns the begin of the successor
// staying in the loop and the loop exit.
func (b *Builder) BranchExit(cond NodeID, lb NodeID) (stay, exit NodeID) {
	stay = b.G.Add(NewNode(OpBegin))
	exit = b.G.Add(NewNode(OpLoopExit))
	b.G.attachExit(exit, lb)
	b.Append(NewNode(OpIf, cond).WithSuccessors(stay, exit))
	return stay, exit
}

func (g *Graph) attachExit(exit, lb NodeID) {
	common.Assertf(g.Node(lb).op == OpLoopBegin, "%s is not a loop begin", g.Node(lb))
	n := g.Node(exit)
	n.assoc = lb
	g.addUsage(lb, exit)
}

// End appends an End node and returns it
func (b *Builder) End() NodeID {
	return b.Append(NewNode(OpEnd))
}

// Merge adds a merge of the given ends and positions the builder after it
func (b *Builder) Merge(ends ...NodeID) NodeID {
	m := b.G.Add(NewNode(OpMerge))
	for _, e := range ends {
		b.G.AddEnd(m, e)
	}
	b.last = m
	return m
}

// LoopBegin ends the current block and starts a loop. The builder is positioned after the loop begin.
func (b *Builder) LoopBegin() NodeID {
	end := b.End()
	lb := b.G.Add(NewNode(OpLoopBegin))
	b.G.AddEnd(lb, end)
	b.last = lb
	return lb
}

// LoopEnd closes the current block with a back edge to lb
func (b *Builder) LoopEnd(lb NodeID) NodeID {
	le := b.Append(NewNode(OpLoopEnd))
	b.G.AddLoopEnd(lb, le)
	return le
}

// Proxy adds a value proxy of v at a loop exit
func (b *Builder) Proxy(v, exit NodeID) NodeID {
	return b.G.Add(NewNode(OpValueProxy, v, exit))
}

// Return appends a return of v, which may be NoNode
func (b *Builder) Return(v NodeID) NodeID {
	if v == NoNode {
		return b.Append(NewNode(OpReturn))
	}
	return b.Append(NewNode(OpReturn, v))
}
