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

package backend

import (
	"fmt"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

// buildCounter sums a counter in a loop, calls the runtime on a branch and deoptimizes on the other
func buildCounter() *graph.Graph {
	g := graph.New("counter")
	b := graph.NewBuilder(g)
	limit := g.Parameter(0, stamp.ForKind(stamp.Int))
	zero := g.Constant(stamp.Int, 0)
	lb := b.LoopBegin()
	i := g.AddPhi(lb, zero)
	stay, exit := b.BranchExit(g.Binary(graph.OpIntegerLessThan, i, limit), lb)
	b.SetCurrent(stay)
	next := g.Binary(graph.OpAdd, i, g.Constant(stamp.Int, 1))
	b.LoopEnd(lb)
	g.AppendInput(i, next)
	b.SetCurrent(exit)
	tBegin, fBegin := b.Branch(g.Binary(graph.OpIntegerEquals, i, zero))
	b.SetCurrent(tBegin)
	b.Append(graph.NewNode(graph.OpDeoptimize))
	b.SetCurrent(fBegin)
	str := g.ObjectConstant("hello", "String", true)
	klass := g.KlassConstant("[I")
	res := b.Append(graph.NewNode(graph.OpForeignCall, str, klass).WithTarget("print").
		WithStamp(stamp.ForKind(stamp.Int)))
	b.Return(res)
	g.SetStage(graph.StageMidTierLowered)
	return g
}

func TestEmitListing(t *testing.T) {
	g := buildCounter()
	if err := g.Verify(); err != nil {
		t.Fatalf("test graph should verify: %v", err)
	}
	req := &Request{Name: "counter", Registers: config.DefaultRegisters()}
	res, err := NewListing().Emit(g, req)
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	listing := res.Listing()
	if !strings.HasPrefix(listing, "0000  entry counter\n") {
		t.Errorf("the listing should start with the entry, got:\n%s", listing)
	}
	for _, want := range []string{"v", " <- ", "jmp L", "branch ", "call print(", "ret v"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing should contain %q:\n%s", want, listing)
		}
	}
	targets := map[string]CallKind{}
	for _, c := range res.Calls {
		targets[c.Target] = c.Kind
	}
	if len(targets) != 2 || targets["print"] != CallRuntime || targets[DeoptimizationHandler] != CallRuntime {
		t.Errorf("expected calls to print and to the deoptimization handler, got %v", res.Calls)
	}
	if len(res.DataPatches) != 2 {
		t.Fatalf("expected two data patches, got %v", res.DataPatches)
	}
	for _, p := range res.DataPatches {
		switch p.Kind {
		case PatchObject:
			if p.Name != "hello" || !p.Interned {
				t.Errorf("unexpected object patch %v", p)
			}
		case PatchKlass:
			if p.Name != "[I" {
				t.Errorf("unexpected klass patch %v", p)
			}
		}
	}
	if len(res.DestroyedRegisters) != len(config.DefaultRegisters().Allocatable) {
		t.Errorf("by default the code destroys every allocatable register")
	}
	if len(res.ExceptionHandlers) != 0 || len(res.Assumptions) != 0 {
		t.Errorf("no exception handlers nor assumptions expected")
	}
	// every value is defined before it is used, except the phis
	defined := map[string]bool{}
	for _, ins := range res.Instructions {
		if i := strings.Index(ins.Text, " = "); i > 0 {
			defined[ins.Text[:i]] = true
		}
		if i := strings.Index(ins.Text, " <- "); i > 0 {
			defined[ins.Text[:i]] = true
		}
	}
	if len(defined) < 5 {
		t.Errorf("expected value definitions in the listing:\n%s", listing)
	}
}

// offsetOf returns the offset of the first instruction starting with prefix, or -1
func offsetOf(res *CompilationResult, prefix string) int {
	for _, ins := range res.Instructions {
		if strings.HasPrefix(ins.Text, prefix) {
			return ins.Offset
		}
	}
	return -1
}

func TestDefinitionsDominateUses(t *testing.T) {
	g := graph.New("shared")
	b := graph.NewBuilder(g)
	x := g.Parameter(0, stamp.ForKind(stamp.Int))
	obj := g.Parameter(1, stamp.ForObject("A", true))
	sum := g.Binary(graph.OpAdd, x, g.Constant(stamp.Int, 1))
	tBegin, fBegin := b.Branch(g.Binary(graph.OpIntegerEquals, x, g.Constant(stamp.Int, 0)))
	b.SetCurrent(tBegin)
	b.Return(sum)
	b.SetCurrent(fBegin)
	load := b.Append(graph.NewNode(graph.OpRead, obj).WithLocation("A.f").WithStamp(stamp.ForKind(stamp.Int)))
	scaled := g.Binary(graph.OpMul, load, sum)
	res := b.Append(graph.NewNode(graph.OpForeignCall, scaled).WithTarget("print").
		WithStamp(stamp.ForKind(stamp.Int)))
	b.Return(res)
	g.SetStage(graph.StageMidTierLowered)

	out, err := NewListing().Emit(g, &Request{Name: "shared", Registers: config.DefaultRegisters()})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}
	listing := out.Listing()
	branch := offsetOf(out, "branch ")
	sumDef := offsetOf(out, fmt.Sprintf("v%d = add", sum))
	if sumDef < 0 || branch < 0 || sumDef > branch {
		t.Errorf("a value used on both sides of a branch must be defined before it:\n%s", listing)
	}
	loadDef := offsetOf(out, fmt.Sprintf("v%d = load", load))
	scaledDef := offsetOf(out, fmt.Sprintf("v%d = mul", scaled))
	call := offsetOf(out, fmt.Sprintf("v%d = call print", res))
	if loadDef < 0 || scaledDef < loadDef || call < scaledDef {
		t.Errorf("a value depending on a load must be defined between the load and its use:\n%s", listing)
	}
	if strings.Count(listing, fmt.Sprintf("v%d = ", sum)) != 1 {
		t.Errorf("each value is defined once:\n%s", listing)
	}
}

func TestEmitRequiresLowering(t *testing.T) {
	g := graph.New("high")
	graph.NewBuilder(g).Return(graph.NoNode)
	if _, err := NewListing().Emit(g, &Request{Name: "high"}); err == nil {
		t.Errorf("a graph that is not lowered cannot be emitted")
	}
}

func TestInstall(t *testing.T) {
	l := NewListing()
	g := buildCounter()
	res, err := l.Emit(g, &Request{Name: "a", DestroyedRegisters: []string{"rax"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.DestroyedRegisters) != 1 {
		t.Errorf("the destroyed registers of the request should be kept")
	}
	first, err := l.Install(res)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Install(res)
	if err != nil {
		t.Fatal(err)
	}
	if first.Address != CodeBase || second.Address <= first.Address || second.Address%codeAlignment != 0 {
		t.Errorf("unexpected addresses %s and %s", first, second)
	}
	if second.Address-first.Address < uint64(res.Size()) {
		t.Errorf("installed code overlaps")
	}
	if first.ID == second.ID {
		t.Errorf("each installation has its own id")
	}
	if len(l.Installed()) != 2 {
		t.Errorf("expected two installed codes")
	}
	if _, err := l.Install(&CompilationResult{Name: "empty"}); err == nil {
		t.Errorf("empty code cannot be installed")
	}
}
