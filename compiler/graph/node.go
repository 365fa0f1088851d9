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
	"fmt"
	"strings"

	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

// NodeID is the handle of a node in its graph's arena.
type NodeID int32

// NoNode is the absent node handle.
const NoNode NodeID = -1

// Flags are boolean properties of memory access and call nodes.
type Flags uint16

const (
	// FlagInitialization marks a write to a freshly allocated object
	FlagInitialization Flags = 1 << iota
	// FlagNullCheck marks an access that performs an implicit null check of its object
	FlagNullCheck
	// FlagPrecise marks a barrier that covers the exact written address rather than the whole object
	FlagPrecise
	// FlagDoLoad marks a pre-barrier that loads the previous value itself
	FlagDoLoad
	// FlagCanDeoptimize marks a call that can deoptimize
	FlagCanDeoptimize
	// FlagInterned marks an object constant that is an interned string
	FlagInterned
	// FlagObjectArray marks an array access or copy whose elements are references
	FlagObjectArray
	// FlagNeverTaken marks the true successor of an If that profiling never saw taken
	FlagNeverTaken
	// FlagNeedsThread marks a foreign call that takes the current thread as its first argument
	FlagNeedsThread
)

// BarrierType is the barrier requirement of a lowered memory access.
type BarrierType uint8

const (
	BarrierNone BarrierType = iota
	BarrierImprecise
	BarrierPrecise
)

func (b BarrierType) String() string {
	switch b {
	case BarrierImprecise:
		return "imprecise"
	case BarrierPrecise:
		return "precise"
	default:
		return "none"
	}
}

// LocationIdentity names the memory location read or written by an access.
type LocationIdentity string

// AnyLocation aliases every location
const AnyLocation LocationIdentity = "ANY"

// FrameLayout describes a frame state: its bytecode index and how its value inputs split into locals, operand
// stack and locks.
type FrameLayout struct {
	BCI    int32
	Locals int32
	Stack  int32
	Locks  int32
}

// Node is an element of the graph arena. Nodes are created with NewNode and the With* setters, then handed to
// Graph.Add or Graph.Unique; after that they are only mutated through graph operations.
type Node struct {
	id      NodeID
	op      Op
	deleted bool

	inputs []NodeID
	state  NodeID
	// assoc is the merge of an End, the loop begin of a LoopEnd or LoopExit
	assoc  NodeID
	usages []NodeID

	pred     NodeID
	next     NodeID
	succs    []NodeID
	ends     []NodeID
	loopEnds []NodeID

	stamp    stamp.Stamp
	value    int64
	location LocationIdentity
	barrier  BarrierType
	flags    Flags
	target   string
	frame    FrameLayout
}

// NewNode returns a detached node of op with the given inputs.
func NewNode(op Op, inputs ...NodeID) *Node {
	in := make([]NodeID, len(inputs))
	copy(in, inputs)
	return &Node{
		id:     NoNode,
		op:     op,
		inputs: in,
		state:  NoNode,
		assoc:  NoNode,
		pred:   NoNode,
		next:   NoNode,
	}
}

func (n *Node) WithStamp(s stamp.Stamp) *Node { n.stamp = s; return n }

func (n *Node) WithValue(v int64) *Node { n.value = v; return n }

func (n *Node) WithLocation(l LocationIdentity) *Node { n.location = l; return n }

func (n *Node) WithBarrier(b BarrierType) *Node { n.barrier = b; return n }

func (n *Node) WithFlags(f Flags) *Node { n.flags |= f; return n }

func (n *Node) WithTarget(t string) *Node { n.target = t; return n }

func (n *Node) WithFrame(f FrameLayout) *Node { n.frame = f; return n }

func (n *Node) WithState(state NodeID) *Node { n.state = state; return n }

// WithSuccessors sets the successors of a control split. The successors must be unlinked begins.
func (n *Node) WithSuccessors(succs ...NodeID) *Node {
	n.succs = append([]NodeID(nil), succs...)
	return n
}

func (n *Node) ID() NodeID { return n.id }
func (n *Node) Op() Op { return n.op }
func (n *Node) IsDeleted() bool { return n.deleted }
func (n *Node) Stamp() stamp.Stamp { return n.stamp }
func (n *Node) Value() int64 { return n.value }
func (n *Node) Location() LocationIdentity { return n.location }
func (n *Node) Barrier() BarrierType { return n.barrier }
func (n *Node) Flags() Flags { return n.flags }
func (n *Node) Has(f Flags) bool { return n.flags&f != 0 }
func (n *Node) Target() string { return n.target }
func (n *Node) Frame() FrameLayout { return n.frame }
func (n *Node) State() NodeID { return n.state }
func (n *Node) Assoc() NodeID { return n.assoc }
func (n *Node) Pred() NodeID { return n.pred }
func (n *Node) Next() NodeID { return n.next }
func (n *Node) NumInputs() int { return len(n.inputs) }
func (n *Node) Input(i int) NodeID { return n.inputs[i] }

// Inputs returns a copy of the value inputs of n
func (n *Node) Inputs() []NodeID { return append([]NodeID(nil), n.inputs...) }

// Usages returns a copy of the usage multiset of n
func (n *Node) Usages() []NodeID { return append([]NodeID(nil), n.usages...) }

func (n *Node) NumUsages() int { return len(n.usages) }

// Successors returns the control successors of n: next, then the successors of a split.
func (n *Node) Successors() []NodeID {
	var r []NodeID
	if n.next != NoNode {
		r = append(r, n.next)
	}
	return append(r, n.succs...)
}

// CanDeoptimize returns true if n may deoptimize: its op always can, or it is a call flagged FlagCanDeoptimize.
func (n *Node) CanDeoptimize() bool { return n.op.CanDeoptimize() || n.Has(FlagCanDeoptimize) }

// Ends returns the forward ends of a merge
func (n *Node) Ends() []NodeID { return append([]NodeID(nil), n.ends...) }

// LoopEnds returns the back edges of a loop begin
func (n *Node) LoopEnds() []NodeID { return append([]NodeID(nil), n.loopEnds...) }

// TrueSuccessor returns the successor taken by an If when its condition holds
func (n *Node) TrueSuccessor() NodeID { return n.succs[0] }

// FalseSuccessor returns the successor taken by an If when its condition does not hold
func (n *Node) FalseSuccessor() NodeID { return n.succs[1] }

// edges calls f for every data edge of n: value inputs, then the state and assoc edges
func (n *Node) edges(f func(NodeID)) {
	for _, in := range n.inputs {
		if in != NoNode {
			f(in)
		}
	}
	if n.state != NoNode {
		f(n.state)
	}
	if n.assoc != NoNode {
		f(n.assoc)
	}
}

func (n *Node) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s", n.id, n.op)
	switch n.op {
	case OpConstant:
		if n.stamp.IsObject() {
			if n.stamp.AlwaysNull() {
				sb.WriteString("(null)")
			} else {
				fmt.Fprintf(&sb, "(%q)", n.target)
			}
		} else {
			fmt.Fprintf(&sb, "(%d)", n.value)
		}
	case OpKlassConstant, OpInvoke, OpForeignCall:
		fmt.Fprintf(&sb, "(%s)", n.target)
	case OpParameter, OpOSRLocal:
		fmt.Fprintf(&sb, "(%d)", n.value)
	case OpWrite, OpRead, OpStoreField, OpLoadField, OpPreWriteBarrier, OpPostWriteBarrier, OpReadBarrier,
		OpCompareAndSwap, OpUnsafeCompareAndSwap:
		fmt.Fprintf(&sb, "(%s)", n.location)
	}
	return sb.String()
}
