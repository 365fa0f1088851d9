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

package barrier

import (
	"strings"
	"testing"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

func newContext(collector string) *phases.Context {
	cfg := config.NewDefault()
	cfg.Collector = collector
	cfg.VerifyGraphs = true
	return phases.NewContext(cfg, debug.Disabled())
}

type accesses struct {
	g                         *graph.Graph
	obj, ref, arr, i          graph.NodeID
	store, init, imprecise    graph.NodeID
	cas, copy, initCopy, read graph.NodeID
	primitive                 graph.NodeID
}

// buildAccesses returns a lowered graph with one access of each kind
func buildAccesses() accesses {
	g := graph.New("accesses")
	b := graph.NewBuilder(g)
	a := accesses{g: g}
	a.obj = g.Parameter(0, stamp.ForObject("A", true))
	a.ref = g.Parameter(1, stamp.ForObject("A", false))
	a.arr = g.Parameter(2, stamp.ForObject("Object[]", true))
	a.i = g.Parameter(3, stamp.ForKind(stamp.Int))
	write := func(loc graph.LocationIdentity, bt graph.BarrierType, value graph.NodeID) *graph.Node {
		return graph.NewNode(graph.OpWrite, a.obj, value).WithLocation(loc).WithBarrier(bt)
	}
	a.store = b.Append(write("A.f", graph.BarrierPrecise, a.ref))
	a.init = b.Append(write("A.g", graph.BarrierPrecise, a.ref).WithFlags(graph.FlagInitialization))
	a.imprecise = b.Append(write("A.h", graph.BarrierImprecise, a.ref))
	a.primitive = b.Append(write("A.x", graph.BarrierNone, a.i))
	a.cas = b.Append(graph.NewNode(graph.OpCompareAndSwap, a.obj, a.i, a.ref, a.ref).WithLocation("A.c").
		WithBarrier(graph.BarrierPrecise))
	a.copy = b.Append(graph.NewNode(graph.OpArrayRangeWrite, a.arr, a.i, a.i, a.arr, a.i).
		WithLocation("Object[]").WithBarrier(graph.BarrierPrecise))
	a.initCopy = b.Append(graph.NewNode(graph.OpArrayRangeWrite, a.arr, a.i, a.i, a.arr, a.i).
		WithLocation("Object[]").WithBarrier(graph.BarrierPrecise).WithFlags(graph.FlagInitialization))
	a.read = b.Append(graph.NewNode(graph.OpRead, a.obj).WithLocation("Reference.referent").
		WithBarrier(graph.BarrierPrecise).WithStamp(stamp.ForObject("Object", false)))
	b.Return(a.read)
	g.SetStage(graph.StageMidTierLowered)
	return a
}

func countBarriers(g *graph.Graph) map[graph.Op]int {
	counts := map[graph.Op]int{}
	for _, op := range []graph.Op{graph.OpPreWriteBarrier, graph.OpPostWriteBarrier, graph.OpArrayRangePreBarrier,
		graph.OpArrayRangePostBarrier, graph.OpReadBarrier} {
		counts[op] = g.CountOf(op)
	}
	return counts
}

func TestGenerationalAddition(t *testing.T) {
	a := buildAccesses()
	g := a.g
	ctx := newContext(config.CollectorGenerational)
	if err := phases.Apply(AdditionPhase{Collector: config.CollectorGenerational}, g, ctx); err != nil {
		t.Fatalf("barrier addition failed: %v", err)
	}
	want := map[graph.Op]int{
		graph.OpPreWriteBarrier:       3,
		graph.OpPostWriteBarrier:      4,
		graph.OpArrayRangePreBarrier:  1,
		graph.OpArrayRangePostBarrier: 2,
		graph.OpReadBarrier:           1,
	}
	for op, c := range countBarriers(g) {
		if want[op] != c {
			t.Errorf("expected %d %s, found %d", want[op], op, c)
		}
	}
	pred := func(id graph.NodeID) *graph.Node { return g.Node(g.Node(id).Pred()) }
	next := func(id graph.NodeID) *graph.Node { return g.Node(g.Node(id).Next()) }

	if pre := pred(a.store); pre.Op() != graph.OpPreWriteBarrier || !pre.Has(graph.FlagDoLoad) {
		t.Errorf("a precise store should be preceded by a loading pre-barrier, got %s", pre)
	}
	if post := next(a.store); post.Op() != graph.OpPostWriteBarrier || !post.Has(graph.FlagPrecise) ||
		post.Location() != "A.f" || post.Input(1) != a.ref {
		t.Errorf("a precise store should be followed by a precise post-barrier on its value, got %s", post)
	}
	if pred(a.init).Op() == graph.OpPreWriteBarrier {
		t.Errorf("an initializing store needs no pre-barrier")
	}
	if post := next(a.imprecise); post.Op() != graph.OpPostWriteBarrier || post.Has(graph.FlagPrecise) {
		t.Errorf("an imprecise store should get an imprecise post-barrier, got %s", post)
	}
	if pre := pred(a.cas); pre.Op() != graph.OpPreWriteBarrier || pre.Has(graph.FlagDoLoad) ||
		pre.NumInputs() != 3 || pre.Input(2) != a.ref {
		t.Errorf("a compare and swap should get a pre-barrier on its expected value, got %s", pre)
	}
	if pred(a.initCopy).Op() == graph.OpArrayRangePreBarrier {
		t.Errorf("an initializing array copy needs no pre-barrier")
	}
	if next(a.read).Op() != graph.OpReadBarrier {
		t.Errorf("a precise read should be followed by a read barrier")
	}
	if !g.IsAfterStage(graph.StageBarrierAddition) {
		t.Errorf("the graph should be marked as having its barriers")
	}
	if failure := common.CatchAssertion(func() {
		if err := phases.Apply(VerificationPhase{Collector: config.CollectorGenerational}, g, ctx); err != nil {
			t.Errorf("verification failed: %v", err)
		}
	}); failure != nil {
		t.Errorf("the barriers just added should verify: %v", failure)
	}
}

func TestSimpleAddition(t *testing.T) {
	a := buildAccesses()
	ctx := newContext(config.CollectorSimple)
	if err := phases.Apply(AdditionPhase{Collector: config.CollectorSimple}, a.g, ctx); err != nil {
		t.Fatalf("barrier addition failed: %v", err)
	}
	want := map[graph.Op]int{
		graph.OpPostWriteBarrier:      4,
		graph.OpArrayRangePostBarrier: 2,
	}
	for op, c := range countBarriers(a.g) {
		if want[op] != c {
			t.Errorf("expected %d %s, found %d", want[op], op, c)
		}
	}
	if failure := common.CatchAssertion(func() {
		_ = phases.Apply(VerificationPhase{Collector: config.CollectorSimple}, a.g, ctx)
	}); failure != nil {
		t.Errorf("the barriers just added should verify: %v", failure)
	}
}

func TestRemovedBarrierFailsVerification(t *testing.T) {
	a := buildAccesses()
	ctx := newContext(config.CollectorGenerational)
	if err := phases.Apply(AdditionPhase{Collector: config.CollectorGenerational}, a.g, ctx); err != nil {
		t.Fatalf("barrier addition failed: %v", err)
	}
	a.g.RemoveFixedWithUnusedInputs(a.g.Node(a.store).Next())
	failure := common.CatchAssertion(func() {
		_ = phases.Apply(VerificationPhase{Collector: config.CollectorGenerational}, a.g, ctx)
	})
	if failure == nil {
		t.Fatalf("a store without its post-barrier must fail verification")
	}
	if !strings.Contains(failure.Message, "Write barrier must be present") {
		t.Errorf("unexpected failure %q", failure.Message)
	}
}

// buildBranches returns a graph where a write after a merge relies on the post-barriers of the branches. The true
// branch always has a barrier, onFalse fills the false branch.
func buildBranches(onFalse func(b *graph.Builder, post func() *graph.Node)) (*graph.Graph, graph.NodeID) {
	g := graph.New("branches")
	b := graph.NewBuilder(g)
	obj := g.Parameter(0, stamp.ForObject("A", true))
	ref := g.Parameter(1, stamp.ForObject("A", false))
	cond := g.Parameter(2, stamp.ForInteger(stamp.Int, 0, 1))
	post := func() *graph.Node {
		return graph.NewNode(graph.OpPostWriteBarrier, obj, ref).WithLocation("A.f")
	}
	tBegin, fBegin := b.Branch(g.Binary(graph.OpIntegerEquals, cond, g.Constant(stamp.Int, 0)))
	b.SetCurrent(tBegin)
	b.Append(post())
	e1 := b.End()
	b.SetCurrent(fBegin)
	if onFalse != nil {
		onFalse(b, post)
	}
	e2 := b.End()
	b.Merge(e1, e2)
	write := b.Append(graph.NewNode(graph.OpWrite, obj, ref).WithLocation("A.f").
		WithBarrier(graph.BarrierImprecise))
	b.Return(graph.NoNode)
	g.SetStage(graph.StageMidTierLowered | graph.StageBarrierAddition)
	return g, write
}

func call() *graph.Node {
	return graph.NewNode(graph.OpInvoke).WithTarget("callee").WithStamp(stamp.ForVoid())
}

func verify(g *graph.Graph) *common.AssertionError {
	return common.CatchAssertion(func() {
		_ = phases.Apply(VerificationPhase{Collector: config.CollectorSimple}, g, newContext(config.CollectorSimple))
	})
}

func TestVerificationFloodsBranches(t *testing.T) {
	covered, _ := buildBranches(func(b *graph.Builder, post func() *graph.Node) { b.Append(post()) })
	if failure := verify(covered); failure != nil {
		t.Errorf("a write covered on both branches should verify: %v", failure)
	}
	g, write := buildBranches(nil)
	failure := verify(g)
	if failure == nil {
		t.Fatalf("a branch without barrier must fail verification")
	}
	if want := "Write barrier must be present " + g.Node(write).String(); failure.Message != want {
		t.Errorf("expected %q, got %q", want, failure.Message)
	}
}

// buildPreciseStore returns a graph with a precise store to an element of arr preceded by a post-barrier on arr at
// location loc and a different index
func buildPreciseStore(loc graph.LocationIdentity) *graph.Graph {
	g := graph.New("precise")
	b := graph.NewBuilder(g)
	arr := g.Parameter(0, stamp.ForObject("Object[]", true))
	ref := g.Parameter(1, stamp.ForObject("Object", false))
	i := g.Parameter(2, stamp.ForKind(stamp.Int))
	j := g.Parameter(3, stamp.ForKind(stamp.Int))
	b.Append(graph.NewNode(graph.OpPostWriteBarrier, arr, j, ref).WithLocation(loc).WithFlags(graph.FlagPrecise))
	b.Append(graph.NewNode(graph.OpWrite, arr, i, ref).WithLocation("Object[]").WithBarrier(graph.BarrierPrecise))
	b.Return(graph.NoNode)
	g.SetStage(graph.StageMidTierLowered | graph.StageBarrierAddition)
	return g
}

func TestPreciseBarrierMatchesObjectAndLocation(t *testing.T) {
	if failure := verify(buildPreciseStore("Object[]")); failure != nil {
		t.Errorf("a precise barrier on the same object and location covers the store: %v", failure)
	}
	if verify(buildPreciseStore("A.f")) == nil {
		t.Errorf("a precise barrier at another location does not cover the store")
	}
}

func TestVerificationStopsAtSafepoints(t *testing.T) {
	before, _ := buildBranches(func(b *graph.Builder, post func() *graph.Node) {
		b.Append(post())
		b.Append(call())
	})
	if verify(before) == nil {
		t.Errorf("a barrier before a call that can deoptimize does not cover the write")
	}
	after, _ := buildBranches(func(b *graph.Builder, post func() *graph.Node) {
		b.Append(call())
		b.Append(post())
	})
	if failure := verify(after); failure != nil {
		t.Errorf("a barrier after the call covers the write: %v", failure)
	}
}

func TestVerificationStopsAtLoopBegin(t *testing.T) {
	g := graph.New("loop")
	b := graph.NewBuilder(g)
	obj := g.Parameter(0, stamp.ForObject("A", true))
	ref := g.Parameter(1, stamp.ForObject("A", false))
	cond := g.Parameter(2, stamp.ForInteger(stamp.Int, 0, 1))
	b.Append(graph.NewNode(graph.OpPostWriteBarrier, obj, ref).WithLocation("A.f"))
	lb := b.LoopBegin()
	stay, exit := b.BranchExit(g.Binary(graph.OpIntegerEquals, cond, g.Constant(stamp.Int, 0)), lb)
	b.SetCurrent(stay)
	b.Append(graph.NewNode(graph.OpWrite, obj, ref).WithLocation("A.f").WithBarrier(graph.BarrierImprecise))
	b.LoopEnd(lb)
	b.SetCurrent(exit)
	b.Return(graph.NoNode)
	g.SetStage(graph.StageMidTierLowered | graph.StageBarrierAddition)
	if err := g.Verify(); err != nil {
		t.Fatalf("loop should verify: %v", err)
	}
	if verify(g) == nil {
		t.Errorf("a barrier outside the loop must not cover a write inside it")
	}
}
