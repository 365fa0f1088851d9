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

// Package graph implements the sea-of-nodes intermediate representation.
//
// A Graph is an arena of nodes addressed by NodeID. Fixed nodes are linked in a control-flow graph through their
// next, successor and end edges; floating nodes are only reachable through data edges (inputs, frame states and
// the anchors of phis and proxies). Every data edge is mirrored in the usage multiset of its target.
//
// Floating nodes of value-numberable ops are interned with Unique: a node with the same op, payload, stamp and
// inputs as a live node is never added twice.
//
// The graph is not safe for concurrent use. Structural violations are reported by panicking with a
// *common.AssertionError.
package graph

import (
	"golang.org/x/exp/slices"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

// StageFlag records that a pipeline stage has run on the graph
type StageFlag uint16

const (
	StageHighTierLowered StageFlag = 1 << iota
	StageMidTierLowered
	StageBarrierAddition
	StageOSR
)

// Assumption is a speculative fact the compiled code depends on. Code compiled with assumptions may be
// invalidated.
type Assumption struct {
	Kind        string
	Description string
}

// Graph is the arena owning all nodes of one compilation.
type Graph struct {
	// Name is used in dumps and log messages
	Name string

	nodes       []*Node
	start       NodeID
	cache       map[valueKey]NodeID
	stages      StageFlag
	assumptions []Assumption
	live        int
}

// valueKey is the structural signature of a value-numberable node
type valueKey struct {
	op       Op
	stamp    stamp.Stamp
	value    int64
	location LocationIdentity
	flags    Flags
	target   string
	n        int
	in       [3]NodeID
}

// maxKeyInputs is the maximum number of inputs of a node that can be value numbered
const maxKeyInputs = 3

// New returns a graph containing only a start node.
func New(name string) *Graph {
	g := &Graph{Name: name, cache: map[valueKey]NodeID{}, start: NoNode}
	g.start = g.Add(NewNode(OpStart))
	return g
}

// Start returns the entry node of the graph
func (g *Graph) Start() NodeID { return g.start }

// Node returns the node with the given id. Deleted nodes are returned as well; use IsAlive to check.
func (g *Graph) Node(id NodeID) *Node {
	common.Assertf(id >= 0 && int(id) < len(g.nodes), "node id %d out of range", id)
	return g.nodes[id]
}

// IsAlive returns true if id designates a node that has not been deleted
func (g *Graph) IsAlive(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes) && !g.nodes[id].deleted
}

// Op returns the op of node id
func (g *Graph) Op(id NodeID) Op { return g.Node(id).op }

// StampOf returns the stamp of node id
func (g *Graph) StampOf(id NodeID) stamp.Stamp { return g.Node(id).stamp }

// NodeCount returns the number of live nodes
func (g *Graph) NodeCount() int { return g.live }

// MaxID returns an upper bound of the ids of the nodes of the graph
func (g *Graph) MaxID() int { return len(g.nodes) }

// Nodes returns the ids of the live nodes in creation order
func (g *Graph) Nodes() []NodeID {
	r := make([]NodeID, 0, g.live)
	for _, n := range g.nodes {
		if !n.deleted {
			r = append(r, n.id)
		}
	}
	return r
}

// NodesOf returns the live nodes of the given ops in creation order
func (g *Graph) NodesOf(op ...Op) []NodeID {
	var r []NodeID
	for _, n := range g.nodes {
		if !n.deleted && slices.Contains(op, n.op) {
			r = append(r, n.id)
		}
	}
	return r
}

// CountOf returns the number of live nodes of op
func (g *Graph) CountOf(op Op) int {
	c := 0
	for _, n := range g.nodes {
		if !n.deleted && n.op == op {
			c++
		}
	}
	return c
}

func (g *Graph) SetStage(s StageFlag) { g.stages |= s }

func (g *Graph) IsAfterStage(s StageFlag) bool { return g.stages&s != 0 }

// RecordAssumption adds an assumption the compiled code of the graph depends on
func (g *Graph) RecordAssumption(a Assumption) { g.assumptions = append(g.assumptions, a) }

// Assumptions returns the assumptions recorded on the graph
func (g *Graph) Assumptions() []Assumption { return append([]Assumption(nil), g.assumptions...) }

// Add adds n to the graph and returns its id. The node must be detached. If n has no stamp and its op can infer
// one, the stamp is inferred from the inputs.
func (g *Graph) Add(n *Node) NodeID {
	common.Assertf(n.id == NoNode, "node %s is already in a graph", n)
	for _, in := range n.inputs {
		common.Assertf(in == NoNode || g.IsAlive(in), "input %d of new %s node is not alive", in, n.op)
	}
	if n.stamp.Kind() == stamp.Illegal {
		info := ops[n.op]
		common.Assertf(info.infer != nil, "%s node needs an explicit stamp", n.op)
		n.stamp = info.infer(g, n)
	}
	n.id = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.live++
	n.edges(func(to NodeID) { g.addUsage(to, n.id) })
	for _, s := range n.succs {
		common.Assertf(g.nodes[s].pred == NoNode, "successor %s of %s already has a predecessor", g.nodes[s], n)
		g.nodes[s].pred = n.id
	}
	return n.id
}

// Unique returns a live node structurally equal to n if one exists, otherwise it adds n. Only value-numberable
// floating nodes are interned.
func (g *Graph) Unique(n *Node) NodeID {
	common.Assertf(n.op.IsValueNumberable(), "%s nodes cannot be value numbered", n.op)
	if n.stamp.Kind() == stamp.Illegal {
		n.stamp = ops[n.op].infer(g, n)
	}
	key, ok := keyOf(n)
	if !ok {
		return g.Add(n)
	}
	if id, found := g.cache[key]; found && g.IsAlive(id) {
		if k, _ := keyOf(g.nodes[id]); k == key {
			return id
		}
	}
	id := g.Add(n)
	g.cache[key] = id
	return id
}

// AddOrUnique interns n if its op is value numberable, otherwise it adds n.
func (g *Graph) AddOrUnique(n *Node) NodeID {
	if n.op.IsValueNumberable() {
		return g.Unique(n)
	}
	return g.Add(n)
}

// FindDuplicate returns a live node other than id that is structurally equal to id, if one is cached
func (g *Graph) FindDuplicate(id NodeID) (NodeID, bool) {
	n := g.Node(id)
	if !n.op.IsValueNumberable() {
		return NoNode, false
	}
	key, ok := keyOf(n)
	if !ok {
		return NoNode, false
	}
	other, found := g.cache[key]
	if !found || other == id || !g.IsAlive(other) {
		g.cache[key] = id
		return NoNode, false
	}
	if k, _ := keyOf(g.nodes[other]); k != key {
		g.cache[key] = id
		return NoNode, false
	}
	return other, true
}

func keyOf(n *Node) (valueKey, bool) {
	if len(n.inputs) > maxKeyInputs {
		return valueKey{}, false
	}
	k := valueKey{
		op:       n.op,
		stamp:    n.stamp,
		value:    n.value,
		location: n.location,
		flags:    n.flags,
		target:   n.target,
		n:        len(n.inputs),
	}
	copy(k.in[:], n.inputs)
	return k, true
}

// uncache removes the cache entry of id, if the entry designates id. Called before a node's signature changes.
func (g *Graph) uncache(id NodeID) {
	n := g.nodes[id]
	if !n.op.IsValueNumberable() {
		return
	}
	if key, ok := keyOf(n); ok {
		if cached, found := g.cache[key]; found && cached == id {
			delete(g.cache, key)
		}
	}
}

func (g *Graph) addUsage(to, user NodeID) {
	t := g.nodes[to]
	common.Assertf(!t.deleted, "edge from %s to deleted node %d", g.nodes[user], to)
	t.usages = append(t.usages, user)
}

func (g *Graph) removeUsage(to, user NodeID) {
	t := g.nodes[to]
	for i, u := range t.usages {
		if u == user {
			t.usages = append(t.usages[:i], t.usages[i+1:]...)
			return
		}
	}
	common.Fail("%s is not a usage of %s", g.nodes[user], t)
}

// SetInput replaces input i of node id with v
func (g *Graph) SetInput(id NodeID, i int, v NodeID) {
	n := g.Node(id)
	old := n.inputs[i]
	if old == v {
		return
	}
	g.uncache(id)
	if old != NoNode {
		g.removeUsage(old, id)
	}
	n.inputs[i] = v
	if v != NoNode {
		g.addUsage(v, id)
	}
}

// SwapInputs exchanges the two first inputs of a binary node
func (g *Graph) SwapInputs(id NodeID) {
	n := g.Node(id)
	g.uncache(id)
	n.inputs[0], n.inputs[1] = n.inputs[1], n.inputs[0]
}

// AppendInput adds a value input at the end of the inputs of id
func (g *Graph) AppendInput(id NodeID, v NodeID) {
	n := g.Node(id)
	g.uncache(id)
	n.inputs = append(n.inputs, v)
	if v != NoNode {
		g.addUsage(v, id)
	}
}

// removeInput removes input i of id, shifting the following inputs
func (g *Graph) removeInput(id NodeID, i int) {
	n := g.nodes[id]
	g.uncache(id)
	if in := n.inputs[i]; in != NoNode {
		g.removeUsage(in, id)
	}
	n.inputs = append(n.inputs[:i], n.inputs[i+1:]...)
}

// SetStateAfter sets the frame state of a fixed node
func (g *Graph) SetStateAfter(id NodeID, state NodeID) {
	n := g.Node(id)
	if n.state != NoNode {
		g.removeUsage(n.state, id)
	}
	n.state = state
	if state != NoNode {
		g.addUsage(state, id)
	}
}

// SetStamp overrides the stamp of node id
func (g *Graph) SetStamp(id NodeID, s stamp.Stamp) {
	g.uncache(id)
	g.Node(id).stamp = s
}

// InferStamp recomputes the stamp of id from its inputs and returns true if it changed
func (g *Graph) InferStamp(id NodeID) bool {
	n := g.Node(id)
	infer := ops[n.op].infer
	if infer == nil {
		return false
	}
	s := infer(g, n)
	if s == n.stamp {
		return false
	}
	g.SetStamp(id, s)
	return true
}

// ReplaceAtUsages redirects every data edge pointing to old so that it points to v.
func (g *Graph) ReplaceAtUsages(old, v NodeID) {
	common.Assertf(old != v, "cannot replace %s by itself", g.Node(old))
	o := g.Node(old)
	users := o.usages
	o.usages = nil
	for _, u := range users {
		un := g.nodes[u]
		g.uncache(u)
		// u appears once in users per edge; replace one edge per entry
		replaced := false
		for i, in := range un.inputs {
			if in == old {
				un.inputs[i] = v
				replaced = true
				break
			}
		}
		if !replaced && un.state == old {
			un.state = v
			replaced = true
		}
		if !replaced && un.assoc == old {
			un.assoc = v
			replaced = true
		}
		common.Assertf(replaced, "usage %s of %s has no edge to it", un, o)
		if v != NoNode {
			g.addUsage(v, u)
		}
	}
}

// ReplaceAtMatchingUsages redirects the data edges to old from the usages accepted by filter.
func (g *Graph) ReplaceAtMatchingUsages(old, v NodeID, filter func(user NodeID) bool) {
	for _, u := range g.Node(old).Usages() {
		if u == v || !filter(u) {
			continue
		}
		un := g.nodes[u]
		for i, in := range un.inputs {
			if in == old {
				g.SetInput(u, i, v)
			}
		}
		if un.state == old {
			g.SetStateAfter(u, v)
		}
	}
}

// clearEdges removes every outgoing data edge of id
func (g *Graph) clearEdges(id NodeID) {
	n := g.nodes[id]
	g.uncache(id)
	n.edges(func(to NodeID) {
		if !g.nodes[to].deleted {
			g.removeUsage(to, id)
		}
	})
	n.inputs = nil
	n.state = NoNode
	n.assoc = NoNode
}

// markDeleted turns id into a tombstone. Its edges must have been cleared.
func (g *Graph) markDeleted(id NodeID) {
	n := g.nodes[id]
	if n.deleted {
		return
	}
	n.deleted = true
	n.usages = nil
	n.pred, n.next = NoNode, NoNode
	n.succs, n.ends, n.loopEnds = nil, nil, nil
	g.live--
}

// Delete removes a node without usages. Fixed nodes must be unlinked from the control flow.
func (g *Graph) Delete(id NodeID) {
	n := g.Node(id)
	common.Assertf(!n.deleted, "%s is already deleted", n)
	common.Assertf(len(n.usages) == 0, "cannot delete %s, it has usages %v", n, n.usages)
	common.Assertf(n.pred == NoNode && n.next == NoNode && len(n.succs) == 0,
		"cannot delete %s, it is still linked in the control flow", n)
	g.clearEdges(id)
	g.markDeleted(id)
}

// KillUnusedFloating deletes id if it is an unused floating node and recursively deletes its inputs that become
// unused. Parameters are kept.
func (g *Graph) KillUnusedFloating(id NodeID) {
	worklist := []NodeID{id}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		n := g.nodes[cur]
		if n.deleted || n.op.IsFixed() || n.op == OpParameter || len(n.usages) > 0 {
			continue
		}
		var inputs []NodeID
		n.edges(func(to NodeID) { inputs = append(inputs, to) })
		g.clearEdges(cur)
		g.markDeleted(cur)
		worklist = append(worklist, inputs...)
	}
}

// Constant returns the interned integer constant v of kind k
func (g *Graph) Constant(k stamp.Kind, v int64) NodeID {
	v = stamp.Wrap(v, k.Bits())
	return g.Unique(NewNode(OpConstant).WithValue(v).WithStamp(stamp.ForConstant(k, v)))
}

// Null returns the interned null constant
func (g *Graph) Null() NodeID {
	return g.Unique(NewNode(OpConstant).WithStamp(stamp.ForNull()))
}

// ObjectConstant returns an interned object constant. Interned strings carry FlagInterned.
func (g *Graph) ObjectConstant(name string, typeName string, interned bool) NodeID {
	n := NewNode(OpConstant).WithTarget(name).WithStamp(stamp.ForExactObject(typeName, true))
	if interned {
		n.WithFlags(FlagInterned)
	}
	return g.Unique(n)
}

// KlassConstant returns the interned metadata constant of the type typeName
func (g *Graph) KlassConstant(typeName string) NodeID {
	return g.Unique(NewNode(OpKlassConstant).WithTarget(typeName).WithStamp(stamp.ForKind(stamp.Long)))
}

// Parameter adds the parameter at index i
func (g *Graph) Parameter(i int, s stamp.Stamp) NodeID {
	return g.Add(NewNode(OpParameter).WithValue(int64(i)).WithStamp(s))
}

// Binary interns the arithmetic or comparison node op(x, y)
func (g *Graph) Binary(op Op, x, y NodeID) NodeID {
	return g.Unique(NewNode(op, x, y))
}

// IsConstant returns the value of an integer constant node
func (g *Graph) IsConstant(id NodeID) (int64, bool) {
	n := g.Node(id)
	if n.op != OpConstant || !n.stamp.IsInteger() {
		return 0, false
	}
	return n.value, true
}

// FrameState adds a frame state with the given locals, operand stack and locks
func (g *Graph) FrameState(bci int32, locals, stack, locks []NodeID) NodeID {
	in := make([]NodeID, 0, len(locals)+len(stack)+len(locks))
	in = append(in, locals...)
	in = append(in, stack...)
	in = append(in, locks...)
	return g.Add(NewNode(OpFrameState, in...).WithFrame(FrameLayout{
		BCI:    bci,
		Locals: int32(len(locals)),
		Stack:  int32(len(stack)),
		Locks:  int32(len(locks)),
	}))
}

// Local returns local i of a frame state
func (g *Graph) Local(state NodeID, i int) NodeID {
	n := g.Node(state)
	common.Assertf(n.op == OpFrameState && i < int(n.frame.Locals), "no local %d in %s", i, n)
	return n.inputs[i]
}
