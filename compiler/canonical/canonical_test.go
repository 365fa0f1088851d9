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

package canonical

import (
	"math"
	"testing"

	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

var binaryOps = []graph.Op{
	graph.OpAdd, graph.OpSub, graph.OpMul, graph.OpAddExact, graph.OpSubExact, graph.OpMulExact,
	graph.OpMulHigh, graph.OpUMulHigh, graph.OpAnd, graph.OpOr, graph.OpXor,
	graph.OpIntegerEquals, graph.OpIntegerLessThan,
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	for _, kind := range []stamp.Kind{stamp.Int, stamp.Long} {
		g := graph.New("idempotence")
		bits := kind.Bits()
		operands := []graph.NodeID{
			g.Parameter(0, stamp.ForKind(kind)),
			g.Parameter(1, stamp.ForInteger(kind, 0, 3)),
		}
		for _, v := range []int64{0, 1, -1, 7, stamp.MaxValue(bits), stamp.MinValue(bits)} {
			operands = append(operands, g.Constant(kind, v))
		}
		for _, op := range binaryOps {
			for _, x := range operands {
				for _, y := range operands {
					n := g.Binary(op, x, y)
					once := Canonicalize(g, n)
					if twice := Canonicalize(g, once); twice != once {
						t.Errorf("%s: canonicalizing %s twice gives %s, once gives %s", kind, g.Node(n),
							g.Node(twice), g.Node(once))
					}
				}
			}
		}
		for _, x := range operands {
			n := g.Unique(graph.NewNode(graph.OpNeg, g.Unique(graph.NewNode(graph.OpNeg, x))))
			once := Canonicalize(g, n)
			if once != x {
				t.Errorf("%s: double negation of %s should canonicalize to its operand", kind, g.Node(x))
			}
			if Canonicalize(g, once) != once {
				t.Errorf("%s: canonical form of %s is not stable", kind, g.Node(n))
			}
		}
	}
}

func TestAddExactNeverFoldsOverflow(t *testing.T) {
	g := graph.New("overflow")
	values := []int64{math.MinInt32, math.MinInt32 + 1, -2, -1, 0, 1, 2, math.MaxInt32 - 1, math.MaxInt32}
	for _, a := range values {
		for _, b := range values {
			x, y := g.Constant(stamp.Int, a), g.Constant(stamp.Int, b)
			sum := a + b
			overflows := sum > math.MaxInt32 || sum < math.MinInt32

			exact := g.Binary(graph.OpAddExact, x, y)
			r := Canonicalize(g, exact)
			if overflows {
				if r != exact {
					t.Errorf("AddExact(%d, %d) overflows and must not be folded, got %s", a, b, g.Node(r))
				}
			} else if v, ok := g.IsConstant(r); !ok || v != sum {
				t.Errorf("AddExact(%d, %d) should fold to %d, got %s", a, b, sum, g.Node(r))
			}

			plain := g.Binary(graph.OpAdd, x, y)
			v, ok := g.IsConstant(Canonicalize(g, plain))
			if want := int64(int32(sum)); !ok || v != want {
				t.Errorf("Add(%d, %d) should fold to the wrapped sum %d, got %d", a, b, want, v)
			}
		}
	}
}

// wrapped returns the result of op on a and b computed with the Go arithmetic of the width of kind, and whether
// the exact result fits that width
func wrapped(op graph.Op, kind stamp.Kind, a, b int64) (int64, bool) {
	if kind == stamp.Int {
		var r int64
		switch op {
		case graph.OpAdd:
			r = a + b
		case graph.OpSub:
			r = a - b
		default:
			r = a * b
		}
		return int64(int32(r)), r >= math.MinInt32 && r <= math.MaxInt32
	}
	switch op {
	case graph.OpAdd:
		r := a + b
		return r, !(a > 0 && b > 0 && r < 0) && !(a < 0 && b < 0 && r >= 0)
	case graph.OpSub:
		r := a - b
		return r, !(a >= 0 && b < 0 && r < 0) && !(a < 0 && b > 0 && r >= 0)
	default:
		r := a * b
		fits := a == 0 || (r/a == b && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64))
		return r, fits
	}
}

func TestFoldingWrapsAtBoundaries(t *testing.T) {
	exactOf := map[graph.Op]graph.Op{
		graph.OpAdd: graph.OpAddExact,
		graph.OpSub: graph.OpSubExact,
		graph.OpMul: graph.OpMulExact,
	}
	for _, kind := range []stamp.Kind{stamp.Int, stamp.Long} {
		g := graph.New("wrap")
		bits := kind.Bits()
		lo, hi := stamp.MinValue(bits), stamp.MaxValue(bits)
		values := []int64{lo, lo + 1, -2, -1, 0, 1, 2, hi - 1, hi}
		for _, op := range []graph.Op{graph.OpAdd, graph.OpSub, graph.OpMul} {
			for _, a := range values {
				for _, b := range values {
					want, fits := wrapped(op, kind, a, b)
					x, y := g.Constant(kind, a), g.Constant(kind, b)
					if v, ok := g.IsConstant(Canonicalize(g, g.Binary(op, x, y))); !ok || v != want {
						t.Errorf("%s %s(%d, %d) should fold to %d, got %d", kind, op, a, b, want, v)
					}
					exact := g.Binary(exactOf[op], x, y)
					r := Canonicalize(g, exact)
					v, ok := g.IsConstant(r)
					switch {
					case fits && (!ok || v != want):
						t.Errorf("%s %s(%d, %d) should fold to %d, got %s", kind, exactOf[op], a, b, want, g.Node(r))
					case !fits && r != exact:
						t.Errorf("%s %s(%d, %d) overflows and must stay, got %s", kind, exactOf[op], a, b, g.Node(r))
					}
				}
			}
		}
		n := Canonicalize(g, g.Unique(graph.NewNode(graph.OpNeg, g.Constant(kind, lo))))
		if v, ok := g.IsConstant(n); !ok || v != lo {
			t.Errorf("%s: negating the minimum value wraps to itself, got %s", kind, g.Node(n))
		}
	}
}

func TestLongIdentityChains(t *testing.T) {
	g := graph.New("chains")
	x := g.Parameter(0, stamp.ForKind(stamp.Int))
	zero := g.Constant(stamp.Int, 0)
	add := x
	neg := x
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			add = g.Binary(graph.OpAdd, add, zero)
		} else {
			add = g.Binary(graph.OpAdd, zero, add)
		}
		neg = g.Unique(graph.NewNode(graph.OpNeg, neg))
	}
	if r := Canonicalize(g, add); r != x {
		t.Errorf("40 additions of zero should canonicalize to the parameter, got %s", g.Node(r))
	}
	if r := Canonicalize(g, neg); r != x {
		t.Errorf("40 negations should canonicalize to the parameter, got %s", g.Node(r))
	}
}

func TestIdentities(t *testing.T) {
	g := graph.New("identities")
	x := g.Parameter(0, stamp.ForKind(stamp.Int))
	zero, one := g.Constant(stamp.Int, 0), g.Constant(stamp.Int, 1)
	tests := []struct {
		op   graph.Op
		a, b graph.NodeID
		want graph.NodeID
	}{
		{graph.OpSub, x, x, zero},
		{graph.OpSubExact, x, x, zero},
		{graph.OpMul, x, one, x},
		{graph.OpMulExact, one, x, x},
		{graph.OpMul, x, zero, zero},
		{graph.OpAdd, zero, x, x},
		{graph.OpAddExact, x, zero, x},
		{graph.OpAnd, x, x, x},
		{graph.OpOr, x, x, x},
		{graph.OpXor, x, x, zero},
		{graph.OpAnd, x, g.Constant(stamp.Int, -1), x},
		{graph.OpIntegerEquals, x, x, one},
		{graph.OpIntegerLessThan, x, x, zero},
	}
	for _, tt := range tests {
		n := g.Binary(tt.op, tt.a, tt.b)
		if got := Canonicalize(g, n); got != tt.want {
			t.Errorf("%s: expected %s, got %s", g.Node(n), g.Node(tt.want), g.Node(got))
		}
	}
}

func TestCommutativeConstantMovesRight(t *testing.T) {
	g := graph.New("swap")
	x := g.Parameter(0, stamp.ForKind(stamp.Long))
	c := g.Constant(stamp.Long, 42)
	r := Canonicalize(g, g.Binary(graph.OpMul, c, x))
	n := g.Node(r)
	if n.Op() != graph.OpMul || n.Input(0) != x || n.Input(1) != c {
		t.Errorf("expected Mul(x, 42), got %s with inputs %v", n, n.Inputs())
	}
	if r2 := Canonicalize(g, g.Binary(graph.OpSub, c, x)); r2 == r || g.Node(r2).Input(0) != c {
		t.Errorf("non-commutative operands must keep their order")
	}
}

func TestMulHighFoldsOnStamps(t *testing.T) {
	g := graph.New("mulhigh")
	small := g.Parameter(0, stamp.ForInteger(stamp.Long, 0, 1000))
	r := Canonicalize(g, g.Binary(graph.OpMulHigh, small, g.Constant(stamp.Long, 1000)))
	if v, ok := g.IsConstant(r); !ok || v != 0 {
		t.Errorf("the high product of small operands is 0, got %s", g.Node(r))
	}
	wide := g.Parameter(1, stamp.ForInteger(stamp.Long, 0, math.MaxInt64))
	n := g.Binary(graph.OpMulHigh, wide, g.Constant(stamp.Long, 4))
	if r := Canonicalize(g, n); r != n {
		t.Errorf("the high product of a wide range is not constant, got %s", g.Node(r))
	}
	r = Canonicalize(g, g.Binary(graph.OpUMulHigh, g.Constant(stamp.Long, -1), g.Constant(stamp.Long, 2)))
	if v, ok := g.IsConstant(r); !ok || v != 1 {
		t.Errorf("unsigned high product of 2^64-1 and 2 is 1, got %s", g.Node(r))
	}
	unknown := g.Parameter(2, stamp.ForKind(stamp.Long))
	bit := g.Parameter(3, stamp.ForInteger(stamp.Long, 0, 1))
	r = Canonicalize(g, g.Binary(graph.OpUMulHigh, unknown, bit))
	if v, ok := g.IsConstant(r); !ok || v != 0 {
		t.Errorf("unsigned high product of any long and [0 - 1] is 0, got %s", g.Node(r))
	}
}

func TestCompareFoldsOnStamps(t *testing.T) {
	g := graph.New("compare")
	x := g.Parameter(0, stamp.ForInteger(stamp.Int, 0, 9))
	lt := Canonicalize(g, g.Binary(graph.OpIntegerLessThan, x, g.Constant(stamp.Int, 10)))
	if v, ok := g.IsConstant(lt); !ok || v != 1 {
		t.Errorf("x in [0, 9] is always less than 10, got %s", g.Node(lt))
	}
	eq := Canonicalize(g, g.Binary(graph.OpIntegerEquals, x, g.Constant(stamp.Int, 20)))
	if v, ok := g.IsConstant(eq); !ok || v != 0 {
		t.Errorf("x in [0, 9] is never 20, got %s", g.Node(eq))
	}
	isNull := Canonicalize(g, g.Unique(graph.NewNode(graph.OpIsNull, g.Null())))
	if v, ok := g.IsConstant(isNull); !ok || v != 1 {
		t.Errorf("null is null, got %s", g.Node(isNull))
	}
	obj := g.Parameter(1, stamp.ForObject("Object", true))
	notNull := Canonicalize(g, g.Unique(graph.NewNode(graph.OpIsNull, obj)))
	if v, ok := g.IsConstant(notNull); !ok || v != 0 {
		t.Errorf("a non-null object is not null, got %s", g.Node(notNull))
	}
}

func newContext() *phases.Context {
	return phases.NewContext(config.NewDefault(), debug.Disabled())
}

func TestPhaseFoldsConstantBranch(t *testing.T) {
	g := graph.New("branch")
	b := graph.NewBuilder(g)
	sum := g.Binary(graph.OpAdd, g.Constant(stamp.Int, 3), g.Constant(stamp.Int, 4))
	cond := g.Binary(graph.OpIntegerLessThan, sum, g.Constant(stamp.Int, 10))
	tBegin, fBegin := b.Branch(cond)
	b.SetCurrent(tBegin)
	e1 := b.End()
	b.SetCurrent(fBegin)
	call := b.Append(graph.NewNode(graph.OpInvoke).WithTarget("slow").WithStamp(stamp.ForKind(stamp.Int)))
	e2 := b.End()
	m := b.Merge(e1, e2)
	phi := g.AddPhi(m, sum, call)
	b.Return(phi)

	if err := (CanonicalizerPhase{}).Run(g, newContext()); err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}
	for _, op := range []graph.Op{graph.OpIf, graph.OpInvoke, graph.OpPhi, graph.OpAdd, graph.OpIntegerLessThan} {
		if c := g.CountOf(op); c != 0 {
			t.Errorf("expected no %s left, found %d", op, c)
		}
	}
	ret := g.NodesOf(graph.OpReturn)
	if len(ret) != 1 {
		t.Fatalf("expected one return, found %d", len(ret))
	}
	if v, ok := g.IsConstant(g.Node(ret[0]).Input(0)); !ok || v != 7 {
		t.Errorf("the return should use the folded constant 7")
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("graph should verify: %v", err)
	}
}

func TestPhaseMergesDuplicates(t *testing.T) {
	g := graph.New("gvn")
	b := graph.NewBuilder(g)
	x := g.Parameter(0, stamp.ForKind(stamp.Int))
	y := g.Parameter(1, stamp.ForKind(stamp.Int))
	a1 := g.Add(graph.NewNode(graph.OpAdd, x, y))
	a2 := g.Add(graph.NewNode(graph.OpAdd, x, y))
	call := b.Append(graph.NewNode(graph.OpInvoke, a1, a2).WithTarget("use").WithStamp(stamp.ForVoid()))
	b.Return(graph.NoNode)

	if err := (CanonicalizerPhase{}).Run(g, newContext()); err != nil {
		t.Fatalf("canonicalization failed: %v", err)
	}
	n := g.Node(call)
	if n.Input(0) != n.Input(1) {
		t.Errorf("structurally equal adds should be merged, got inputs %v", n.Inputs())
	}
	if c := g.CountOf(graph.OpAdd); c != 1 {
		t.Errorf("expected a single add, found %d", c)
	}
}
