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
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/awslabs/ar-go-jit/compiler/graph"
)

// CodeBase is the address of the first code installed by a Listing backend
const CodeBase uint64 = 0x10000

const codeAlignment = 16

// Listing is the reference backend. It emits one pseudo-instruction per scheduled node and installs the code at
// increasing addresses. Values are named v<id> after the node defining them; phis are defined by moves at the
// ends of their merge. A floating value is defined right after the last fixed node or merge it depends on, so its
// definition dominates all its uses.
type Listing struct {
	mu        sync.Mutex
	next      uint64
	installed []*InstalledCode
}

// NewListing returns a backend installing code from CodeBase
func NewListing() *Listing {
	return &Listing{next: CodeBase}
}

var _ Backend = (*Listing)(nil)

// Emit returns the listing of the lowered graph g
func (l *Listing) Emit(g *graph.Graph, req *Request) (*CompilationResult, error) {
	if !g.IsAfterStage(graph.StageMidTierLowered) {
		return nil, fmt.Errorf("graph %s is not lowered", g.Name)
	}
	e := &emitter{
		g:       g,
		req:     req,
		result:  &CompilationResult{Name: req.Name, Assumptions: g.Assumptions()},
		defined: map[graph.NodeID]bool{},
		emitted: map[graph.NodeID]bool{},
		visited: map[graph.NodeID]int{},
	}
	e.collectFloating()
	if req.DestroyedRegisters != nil {
		e.result.DestroyedRegisters = append([]string(nil), req.DestroyedRegisters...)
	} else {
		e.result.DestroyedRegisters = append([]string(nil), req.Registers.Allocatable...)
	}
	if err := e.emitBlocks(); err != nil {
		return nil, fmt.Errorf("%s: %w", g.Name, err)
	}
	return e.result, nil
}

// Install places the code of result after the code installed before
func (l *Listing) Install(result *CompilationResult) (*InstalledCode, error) {
	if result == nil || len(result.Instructions) == 0 {
		return nil, fmt.Errorf("nothing to install")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	code := &InstalledCode{
		ID:      uuid.NewString(),
		Name:    result.Name,
		Address: l.next,
		Size:    result.Size(),
		Result:  result,
	}
	l.next += (uint64(code.Size) + codeAlignment - 1) / codeAlignment * codeAlignment
	l.installed = append(l.installed, code)
	return code, nil
}

// Installed returns the installed code in installation order
func (l *Listing) Installed() []*InstalledCode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*InstalledCode(nil), l.installed...)
}

type emitter struct {
	g      *graph.Graph
	req    *Request
	result *CompilationResult
	// defined records the floating values already emitted
	defined map[graph.NodeID]bool
	// emitted records the fixed nodes already emitted
	emitted map[graph.NodeID]bool
	// pending holds the floating values used by the code and not defined yet, in id order
	pending []graph.NodeID
	// visited counts the forward ends of each merge emitted so far
	visited map[graph.NodeID]int
}

func (e *emitter) offset() int { return len(e.result.Instructions) * InstructionSize }

func (e *emitter) emit(format string, args ...any) int {
	off := e.offset()
	e.result.Instructions = append(e.result.Instructions, Instruction{Offset: off, Text: fmt.Sprintf(format, args...)})
	return off
}

func (e *emitter) call(target string, kind CallKind, node graph.NodeID, text string) {
	off := e.emit("%s", text)
	e.result.Calls = append(e.result.Calls, Call{Offset: off, Target: target, Kind: kind, Node: node})
}

// emitBlocks walks the control flow from the start. A merge is emitted once all its forward ends are.
func (e *emitter) emitBlocks() error {
	blocks := []graph.NodeID{e.g.Start()}
	for len(blocks) > 0 {
		cur := blocks[len(blocks)-1]
		blocks = blocks[:len(blocks)-1]
		for cur != graph.NoNode {
			n := e.g.Node(cur)
			if err := e.emitFixed(n); err != nil {
				return err
			}
			e.emitted[cur] = true
			e.defineReady()
			switch {
			case n.Op().IsSplit():
				succs := n.Successors()
				for i := len(succs) - 1; i >= 0; i-- {
					blocks = append(blocks, succs[i])
				}
				cur = graph.NoNode
			case n.Op() == graph.OpEnd:
				merge := n.Assoc()
				e.visited[merge]++
				if e.visited[merge] == len(e.g.Node(merge).Ends()) {
					blocks = append(blocks, merge)
				}
				cur = graph.NoNode
			default:
				cur = n.Next()
			}
		}
	}
	return nil
}

// collectFloating fills pending with the floating values reachable from the inputs of fixed nodes and phis
func (e *emitter) collectFloating() {
	seen := map[graph.NodeID]bool{}
	var visit func(id graph.NodeID)
	visit = func(id graph.NodeID) {
		if id == graph.NoNode || seen[id] {
			return
		}
		seen[id] = true
		n := e.g.Node(id)
		if n.Op().IsFixed() {
			return
		}
		for _, in := range n.Inputs() {
			visit(in)
		}
		switch n.Op() {
		case graph.OpPhi, graph.OpValueProxy, graph.OpEntryProxy:
		default:
			e.pending = append(e.pending, id)
		}
	}
	for _, id := range e.g.Nodes() {
		if n := e.g.Node(id); n.Op().IsFixed() || n.Op() == graph.OpPhi {
			for _, in := range n.Inputs() {
				visit(in)
			}
		}
	}
	sort.Slice(e.pending, func(i, j int) bool { return e.pending[i] < e.pending[j] })
}

// available returns true if the value of id can be used at the current point of the listing
func (e *emitter) available(id graph.NodeID) bool {
	if id == graph.NoNode {
		return true
	}
	n := e.g.Node(id)
	switch {
	case n.Op().IsFixed():
		return e.emitted[id]
	case n.Op() == graph.OpPhi:
		return e.emitted[n.Input(0)]
	case n.Op() == graph.OpValueProxy || n.Op() == graph.OpEntryProxy:
		return e.available(n.Input(0))
	case e.defined[id]:
		return true
	}
	for _, in := range n.Inputs() {
		if !e.available(in) {
			return false
		}
	}
	return true
}

// defineReady emits the definitions of the pending values whose inputs are all available
func (e *emitter) defineReady() {
	rest := e.pending[:0]
	for _, id := range e.pending {
		switch {
		case e.defined[id]:
		case e.available(id):
			e.value(id)
		default:
			rest = append(rest, id)
		}
	}
	e.pending = rest
}

func (e *emitter) emitFixed(n *graph.Node) error {
	id := n.ID()
	switch n.Op() {
	case graph.OpStart, graph.OpOSRStart:
		e.emit("entry %s", e.req.Name)
	case graph.OpBegin, graph.OpLoopExit, graph.OpMerge, graph.OpLoopBegin:
		e.emit("L%d:", id)
	case graph.OpEnd, graph.OpLoopEnd:
		e.emitPhiMoves(n)
		e.emit("jmp L%d", n.Assoc())
	case graph.OpIf:
		e.emit("branch %s, L%d, L%d", e.value(n.Input(0)), n.TrueSuccessor(), n.FalseSuccessor())
	case graph.OpReturn:
		if n.NumInputs() > 0 && n.Input(0) != graph.NoNode {
			e.emit("ret %s", e.value(n.Input(0)))
		} else {
			e.emit("ret")
		}
	case graph.OpDeoptimize, graph.OpFixedGuard:
		text := "call " + DeoptimizationHandler
		if n.Op() == graph.OpFixedGuard {
			text = fmt.Sprintf("guard %s, %s", e.values(n.Inputs()), DeoptimizationHandler)
		}
		e.call(DeoptimizationHandler, CallRuntime, id, text)
	case graph.OpUnwind:
		off := e.emit("unwind %s", e.values(n.Inputs()))
		e.result.ExceptionHandlers = append(e.result.ExceptionHandlers, ExceptionHandler{Offset: off, Handler: off})
	case graph.OpSafepoint:
		e.emit("safepoint_poll")
	case graph.OpEntryMarker:
	case graph.OpInvoke:
		e.call(n.Target(), CallMethod, id, e.define(n, "call_method %s(%s)", n.Target(), e.values(n.Inputs())))
	case graph.OpForeignCall:
		e.call(n.Target(), CallRuntime, id, e.define(n, "call %s(%s)", n.Target(), e.values(n.Inputs())))
	case graph.OpWrite:
		e.emit("store.%s %s", n.Location(), e.values(n.Inputs()))
	case graph.OpRead:
		e.emit("%s", e.define(n, "load.%s %s", n.Location(), e.values(n.Inputs())))
	case graph.OpCompareAndSwap:
		e.emit("%s", e.define(n, "cas.%s %s", n.Location(), e.values(n.Inputs())))
	case graph.OpArrayRangeWrite:
		e.emit("copy_range %s", e.values(n.Inputs()))
	case graph.OpPreWriteBarrier, graph.OpArrayRangePreBarrier, graph.OpReadBarrier:
		e.call(PreBarrierSlowPath, CallRuntime, id, fmt.Sprintf("%s %s -> %s", barrierMnemonic(n), e.values(n.Inputs()),
			PreBarrierSlowPath))
	case graph.OpPostWriteBarrier, graph.OpArrayRangePostBarrier:
		e.call(PostBarrierSlowPath, CallRuntime, id, fmt.Sprintf("%s %s -> %s", barrierMnemonic(n),
			e.values(n.Inputs()), PostBarrierSlowPath))
	default:
		return fmt.Errorf("cannot emit %s", n)
	}
	return nil
}

func barrierMnemonic(n *graph.Node) string {
	name := strings.ToLower(n.Op().String())
	if n.Has(graph.FlagPrecise) {
		name += ".precise"
	}
	if n.Location() != "" {
		name += "." + string(n.Location())
	}
	return name
}

// emitPhiMoves assigns the values of the phis of the merge of end for this end
func (e *emitter) emitPhiMoves(end *graph.Node) {
	merge := e.g.Node(end.Assoc())
	var index int
	if end.Op() == graph.OpEnd {
		index = indexOf(merge.Ends(), end.ID())
	} else {
		index = len(merge.Ends()) + indexOf(merge.LoopEnds(), end.ID())
	}
	for _, phi := range e.g.Phis(merge.ID()) {
		e.emit("v%d <- %s", phi, e.value(e.g.PhiValueAt(phi, index)))
	}
}

func indexOf(ids []graph.NodeID, id graph.NodeID) int {
	for i, x := range ids {
		if x == id {
			return i
		}
	}
	return -1
}

func (e *emitter) define(n *graph.Node, format string, args ...any) string {
	text := fmt.Sprintf(format, args...)
	if n.Stamp().IsObject() || n.Stamp().IsInteger() {
		return fmt.Sprintf("v%d = %s", n.ID(), text)
	}
	return text
}

func (e *emitter) values(ids []graph.NodeID) string {
	var parts []string
	for _, id := range ids {
		if id != graph.NoNode {
			parts = append(parts, e.value(id))
		}
	}
	return strings.Join(parts, ", ")
}

// value returns the name of the value of id, emitting its definition first if id is a floating node not defined
// yet
func (e *emitter) value(id graph.NodeID) string {
	n := e.g.Node(id)
	switch n.Op() {
	case graph.OpValueProxy, graph.OpEntryProxy:
		return e.value(n.Input(0))
	case graph.OpPhi:
		return fmt.Sprintf("v%d", id)
	}
	if n.Op().IsFixed() || e.defined[id] {
		return fmt.Sprintf("v%d", id)
	}
	e.defined[id] = true
	switch n.Op() {
	case graph.OpConstant:
		switch {
		case n.Stamp().IsInteger():
			e.emit("v%d = const %d", id, n.Value())
		case n.Stamp().AlwaysNull():
			e.emit("v%d = const null", id)
		default:
			off := e.emit("v%d = const_object %q", id, n.Target())
			e.result.DataPatches = append(e.result.DataPatches, DataPatch{Offset: off, Kind: PatchObject,
				Name: n.Target(), Interned: n.Has(graph.FlagInterned)})
		}
	case graph.OpKlassConstant:
		off := e.emit("v%d = const_klass %s", id, n.Target())
		e.result.DataPatches = append(e.result.DataPatches, DataPatch{Offset: off, Kind: PatchKlass, Name: n.Target()})
	case graph.OpParameter:
		e.emit("v%d = param %d", id, n.Value())
	case graph.OpOSRLocal:
		e.emit("v%d = osr_local %d", id, n.Value())
	case graph.OpCurrentThread:
		e.emit("v%d = mov %s", id, e.req.Registers.Thread)
	default:
		operands := e.values(n.Inputs())
		e.emit("v%d = %s %s", id, strings.ToLower(n.Op().String()), operands)
	}
	return fmt.Sprintf("v%d", id)
}
