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

// Package canonical implements the local rewrite rules that bring floating nodes to their canonical form, and the
// phase applying them to a whole graph.
//
// Constant folding uses the two's complement arithmetic of the operand width. The exact arithmetic ops
// (AddExact, SubExact, MulExact) deoptimize on overflow at run time: they are never folded when the folded value
// would overflow, so the overflow path stays reachable.
package canonical

import (
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

// extraRounds is added to twice the node count of the graph to bound the rules applied by one Canonicalize call. A
// rule either returns an existing node closer to the leaves or a new node that no rule rewrites back, and a
// commutative swap is always followed by one of those.
const extraRounds = 16

// Canonicalize returns the canonical form of node id. The result is id itself when no rule applies, an existing
// node (an input or an interned constant), or a new interned node. Rules are applied until none fires, so
// Canonicalize(g, Canonicalize(g, id)) == Canonicalize(g, id).
func Canonicalize(g *graph.Graph, id graph.NodeID) graph.NodeID {
	limit := 2*g.NodeCount() + extraRounds
	for i := 0; ; i++ {
		common.Assertf(i < limit, "canonicalization of %s does not terminate", g.Node(id))
		next := step(g, id)
		if next == id {
			return id
		}
		id = next
	}
}

// step applies the first rule that fires on id
func step(g *graph.Graph, id graph.NodeID) graph.NodeID {
	n := g.Node(id)
	switch op := n.Op(); {
	case op.IsBinaryArithmetic():
		return binary(g, n)
	case op == graph.OpNeg:
		return negate(g, n)
	case op == graph.OpIntegerEquals || op == graph.OpIntegerLessThan:
		return compare(g, n)
	case op == graph.OpIsNull:
		s := g.StampOf(n.Input(0))
		if s.AlwaysNull() {
			return g.Constant(stamp.Int, 1)
		}
		if s.NonNull() {
			return g.Constant(stamp.Int, 0)
		}
	}
	return n.ID()
}

func binary(g *graph.Graph, n *graph.Node) graph.NodeID {
	op := n.Op()
	x, y := n.Input(0), n.Input(1)
	xc, xConst := g.IsConstant(x)
	yc, yConst := g.IsConstant(y)
	kind := n.Stamp().Kind()

	if op.IsCommutative() && xConst && !yConst {
		return g.Unique(graph.NewNode(op, y, x))
	}
	if xConst && yConst {
		if v, ok := Fold(op, kind, xc, yc); ok {
			return g.Constant(kind, v)
		}
		return n.ID()
	}
	if yConst {
		if r, ok := constantIdentity(g, op, kind, x, yc); ok {
			return r
		}
	}
	if x == y {
		switch op {
		case graph.OpSub, graph.OpSubExact, graph.OpXor:
			return g.Constant(kind, 0)
		case graph.OpAnd, graph.OpOr:
			return x
		}
	}
	if op == graph.OpMulHigh || op == graph.OpUMulHigh {
		// the high product is constant if it is the same at the four extremes of the operand ranges
		var s stamp.Stamp
		if op == graph.OpMulHigh {
			s = stamp.FoldMulHigh(g.StampOf(x), g.StampOf(y))
		} else {
			s = stamp.FoldUMulHigh(g.StampOf(x), g.StampOf(y))
		}
		if v, ok := s.AsConstant(); ok {
			return g.Constant(kind, v)
		}
	}
	return n.ID()
}

// constantIdentity simplifies op(x, c) where only the right operand is constant
func constantIdentity(g *graph.Graph, op graph.Op, kind stamp.Kind, x graph.NodeID, c int64) (graph.NodeID, bool) {
	switch op {
	case graph.OpAdd, graph.OpAddExact, graph.OpSub, graph.OpSubExact, graph.OpOr, graph.OpXor:
		if c == 0 {
			return x, true
		}
	case graph.OpMul, graph.OpMulExact:
		if c == 1 {
			return x, true
		}
		if c == 0 {
			return g.Constant(kind, 0), true
		}
	case graph.OpAnd:
		if c == -1 {
			return x, true
		}
		if c == 0 {
			return g.Constant(kind, 0), true
		}
	case graph.OpMulHigh:
		if c == 0 {
			return g.Constant(kind, 0), true
		}
	case graph.OpUMulHigh:
		if c == 0 || c == 1 {
			return g.Constant(kind, 0), true
		}
	}
	return graph.NoNode, false
}

// Fold evaluates op on constant operands of the given kind. It returns false when op is an exact op and the result
// overflows the width of kind.
func Fold(op graph.Op, kind stamp.Kind, x, y int64) (int64, bool) {
	bits := kind.Bits()
	switch op {
	case graph.OpAdd:
		return stamp.Wrap(x+y, bits), true
	case graph.OpSub:
		return stamp.Wrap(x-y, bits), true
	case graph.OpMul:
		return stamp.Wrap(x*y, bits), true
	case graph.OpAddExact:
		if stamp.AddOverflows(x, y, bits) {
			return 0, false
		}
		return x + y, true
	case graph.OpSubExact:
		if stamp.SubtractOverflows(x, y, bits) {
			return 0, false
		}
		return x - y, true
	case graph.OpMulExact:
		if stamp.MultiplyOverflows(x, y, bits) {
			return 0, false
		}
		return x * y, true
	case graph.OpMulHigh:
		return stamp.MultiplyHigh(x, y, bits), true
	case graph.OpUMulHigh:
		return stamp.MultiplyHighUnsigned(x, y, bits), true
	case graph.OpAnd:
		return x & y, true
	case graph.OpOr:
		return x | y, true
	case graph.OpXor:
		return x ^ y, true
	}
	common.Fail("cannot fold %s", op)
	return 0, false
}

func negate(g *graph.Graph, n *graph.Node) graph.NodeID {
	x := n.Input(0)
	kind := n.Stamp().Kind()
	if c, ok := g.IsConstant(x); ok {
		return g.Constant(kind, stamp.Wrap(-c, kind.Bits()))
	}
	if xn := g.Node(x); xn.Op() == graph.OpNeg {
		return xn.Input(0)
	}
	return n.ID()
}

func compare(g *graph.Graph, n *graph.Node) graph.NodeID {
	op := n.Op()
	x, y := n.Input(0), n.Input(1)
	xc, xConst := g.IsConstant(x)
	yc, yConst := g.IsConstant(y)
	if op.IsCommutative() && xConst && !yConst {
		return g.Unique(graph.NewNode(op, y, x))
	}
	if op == graph.OpIntegerEquals && x == y {
		return g.Constant(stamp.Int, 1)
	}
	if op == graph.OpIntegerLessThan && x == y {
		return g.Constant(stamp.Int, 0)
	}
	if xConst && yConst {
		return g.Constant(stamp.Int, boolValue(op == graph.OpIntegerEquals && xc == yc ||
			op == graph.OpIntegerLessThan && xc < yc))
	}
	xs, ys := g.StampOf(x), g.StampOf(y)
	if !xs.IsInteger() || xs.Kind() != ys.Kind() {
		return n.ID()
	}
	switch op {
	case graph.OpIntegerEquals:
		if xs.Join(ys).IsEmpty() {
			return g.Constant(stamp.Int, 0)
		}
	case graph.OpIntegerLessThan:
		if xs.Upper() < ys.Lower() {
			return g.Constant(stamp.Int, 1)
		}
		if xs.Lower() >= ys.Upper() {
			return g.Constant(stamp.Int, 0)
		}
	}
	return n.ID()
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
