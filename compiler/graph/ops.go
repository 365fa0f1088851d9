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

import "github.com/awslabs/ar-go-jit/compiler/stamp"

// Op is the kind of a node. The set of ops is closed; per-op behavior lives in the ops table.
type Op uint8

const (
	OpInvalid Op = iota

	// control flow
	OpStart
	OpOSRStart
	OpBegin
	OpMerge
	OpLoopBegin
	OpLoopEnd
	OpLoopExit
	OpEnd
	OpIf
	OpReturn
	OpDeoptimize
	OpUnwind

	// fixed nodes with a successor
	OpEntryMarker
	OpSafepoint
	OpFixedGuard
	OpInvoke
	OpForeignCall
	OpStoreField
	OpLoadField
	OpStoreIndexed
	OpArrayCopy
	OpUnsafeCompareAndSwap
	OpWrite
	OpRead
	OpCompareAndSwap
	OpArrayRangeWrite
	OpPreWriteBarrier
	OpPostWriteBarrier
	OpArrayRangePreBarrier
	OpArrayRangePostBarrier
	OpReadBarrier

	// floating nodes
	OpConstant
	OpKlassConstant
	OpParameter
	OpOSRLocal
	OpCurrentThread
	OpPhi
	OpValueProxy
	OpEntryProxy
	OpFrameState
	OpAdd
	OpSub
	OpMul
	OpAddExact
	OpSubExact
	OpMulExact
	OpMulHigh
	OpUMulHigh
	OpAnd
	OpOr
	OpXor
	OpNeg
	OpIntegerEquals
	OpIntegerLessThan
	OpIsNull

	numOps
)

type opClass uint8

const (
	classFloating opClass = iota
	// classFixed nodes have a single successor edge, next
	classFixed
	// classBegin nodes start a block; they have a single successor
	classBegin
	// classMerge nodes are begins with several predecessors (ends)
	classMerge
	// classEnd nodes jump to a merge; they have no successor edge
	classEnd
	// classSplit nodes have several successors
	classSplit
	// classSink nodes leave the graph
	classSink
)

type opInfo struct {
	name            string
	class           opClass
	commutative     bool
	valueNumberable bool
	canDeoptimize   bool
	// infer computes the stamp of a node from its inputs. Nil means the stamp is given at construction.
	infer func(g *Graph, n *Node) stamp.Stamp
}

var ops [numOps]opInfo

func init() {
	ops = [numOps]opInfo{
		OpInvalid:   {name: "Invalid"},
		OpStart:     {name: "Start", class: classBegin, infer: voidStamp},
		OpOSRStart:  {name: "OSRStart", class: classBegin, infer: voidStamp},
		OpBegin:     {name: "Begin", class: classBegin, infer: voidStamp},
		OpMerge:     {name: "Merge", class: classMerge, infer: voidStamp},
		OpLoopBegin: {name: "LoopBegin", class: classMerge, infer: voidStamp},
		OpLoopEnd:   {name: "LoopEnd", class: classEnd, infer: voidStamp},
		OpLoopExit:  {name: "LoopExit", class: classBegin, infer: voidStamp},
		OpEnd:       {name: "End", class: classEnd, infer: voidStamp},
		OpIf:        {name: "If", class: classSplit, infer: voidStamp},
		OpReturn:    {name: "Return", class: classSink, infer: voidStamp},
		OpDeoptimize: {name: "Deoptimize", class: classSink, canDeoptimize: true,
			infer: voidStamp},
		OpUnwind: {name: "Unwind", class: classSink, infer: voidStamp},

		OpEntryMarker: {name: "EntryMarker", class: classFixed, infer: voidStamp},
		OpSafepoint:   {name: "Safepoint", class: classFixed, canDeoptimize: true, infer: voidStamp},
		OpFixedGuard:  {name: "FixedGuard", class: classFixed, canDeoptimize: true, infer: voidStamp},
		OpInvoke:      {name: "Invoke", class: classFixed, canDeoptimize: true},
		OpForeignCall: {name: "ForeignCall", class: classFixed},
		OpStoreField:  {name: "StoreField", class: classFixed, infer: voidStamp},
		OpLoadField:   {name: "LoadField", class: classFixed},
		OpStoreIndexed: {name: "StoreIndexed", class: classFixed, infer: voidStamp},
		OpArrayCopy:    {name: "ArrayCopy", class: classFixed, infer: voidStamp},
		OpUnsafeCompareAndSwap: {name: "UnsafeCompareAndSwap", class: classFixed,
			infer: booleanStamp},
		OpWrite:                 {name: "Write", class: classFixed, infer: voidStamp},
		OpRead:                  {name: "Read", class: classFixed},
		OpCompareAndSwap:        {name: "CompareAndSwap", class: classFixed, infer: booleanStamp},
		OpArrayRangeWrite:       {name: "ArrayRangeWrite", class: classFixed, infer: voidStamp},
		OpPreWriteBarrier:       {name: "PreWriteBarrier", class: classFixed, infer: voidStamp},
		OpPostWriteBarrier:      {name: "PostWriteBarrier", class: classFixed, infer: voidStamp},
		OpArrayRangePreBarrier:  {name: "ArrayRangePreBarrier", class: classFixed, infer: voidStamp},
		OpArrayRangePostBarrier: {name: "ArrayRangePostBarrier", class: classFixed, infer: voidStamp},
		OpReadBarrier:           {name: "ReadBarrier", class: classFixed, infer: voidStamp},

		OpConstant:      {name: "Constant", valueNumberable: true},
		OpKlassConstant: {name: "KlassConstant", valueNumberable: true},
		OpParameter:     {name: "Parameter"},
		OpOSRLocal:      {name: "OSRLocal", valueNumberable: true},
		OpCurrentThread: {name: "CurrentThread", valueNumberable: true},
		OpPhi:           {name: "Phi", infer: phiStamp},
		OpValueProxy:    {name: "ValueProxy", infer: firstInputStamp},
		OpEntryProxy:    {name: "EntryProxy", infer: firstInputStamp},
		OpFrameState:    {name: "FrameState", infer: voidStamp},

		OpAdd: {name: "Add", commutative: true, valueNumberable: true, infer: binaryStamp(stamp.FoldAdd)},
		OpSub: {name: "Sub", valueNumberable: true, infer: binaryStamp(stamp.FoldSub)},
		OpMul: {name: "Mul", commutative: true, valueNumberable: true, infer: binaryStamp(stamp.FoldMul)},
		OpAddExact: {name: "AddExact", commutative: true, valueNumberable: true,
			infer: binaryStamp(stamp.FoldAdd)},
		OpSubExact: {name: "SubExact", valueNumberable: true, infer: binaryStamp(stamp.FoldSub)},
		OpMulExact: {name: "MulExact", commutative: true, valueNumberable: true,
			infer: binaryStamp(stamp.FoldMul)},
		OpMulHigh: {name: "MulHigh", commutative: true, valueNumberable: true,
			infer: binaryStamp(stamp.FoldMulHigh)},
		OpUMulHigh: {name: "UMulHigh", commutative: true, valueNumberable: true,
			infer: binaryStamp(stamp.FoldUMulHigh)},
		OpAnd: {name: "And", commutative: true, valueNumberable: true, infer: binaryStamp(stamp.FoldAnd)},
		OpOr:  {name: "Or", commutative: true, valueNumberable: true, infer: binaryStamp(stamp.FoldOr)},
		OpXor: {name: "Xor", commutative: true, valueNumberable: true, infer: binaryStamp(stamp.FoldXor)},
		OpNeg: {name: "Neg", valueNumberable: true,
			infer: func(g *Graph, n *Node) stamp.Stamp { return stamp.FoldNeg(g.StampOf(n.inputs[0])) }},
		OpIntegerEquals:   {name: "IntegerEquals", commutative: true, valueNumberable: true, infer: booleanStamp},
		OpIntegerLessThan: {name: "IntegerLessThan", valueNumberable: true, infer: booleanStamp},
		OpIsNull:          {name: "IsNull", valueNumberable: true, infer: booleanStamp},
	}
}

func (op Op) String() string {
	if op >= numOps {
		return "Op(?)"
	}
	return ops[op].name
}

// IsFixed returns true if nodes of the op have a position in the control flow
func (op Op) IsFixed() bool { return ops[op].class != classFloating }

// HasNext returns true if nodes of the op have a single successor edge
func (op Op) HasNext() bool {
	c := ops[op].class
	return c == classFixed || c == classBegin || c == classMerge
}

// IsBegin returns true for ops that start a block, merges included
func (op Op) IsBegin() bool {
	c := ops[op].class
	return c == classBegin || c == classMerge
}

// IsMerge returns true for Merge and LoopBegin
func (op Op) IsMerge() bool { return ops[op].class == classMerge }

// IsEnd returns true for End and LoopEnd
func (op Op) IsEnd() bool { return ops[op].class == classEnd }

// IsSplit returns true for control splits
func (op Op) IsSplit() bool { return ops[op].class == classSplit }

// IsSink returns true for control sinks
func (op Op) IsSink() bool { return ops[op].class == classSink }

// IsStart returns true for the entry nodes of a graph
func (op Op) IsStart() bool { return op == OpStart || op == OpOSRStart }

// IsCommutative returns true for binary ops whose operands can be swapped
func (op Op) IsCommutative() bool { return ops[op].commutative }

// IsValueNumberable returns true for ops that take part in global value numbering
func (op Op) IsValueNumberable() bool { return ops[op].valueNumberable }

// IsBinaryArithmetic returns true for the integer arithmetic ops with two operands
func (op Op) IsBinaryArithmetic() bool {
	return op >= OpAdd && op <= OpXor
}

// IsExact returns true for arithmetic ops that deoptimize instead of wrapping on overflow
func (op Op) IsExact() bool {
	return op == OpAddExact || op == OpSubExact || op == OpMulExact
}

// IsWriteBarrier returns true for the pre and post barrier ops, array range barriers included
func (op Op) IsWriteBarrier() bool {
	return op >= OpPreWriteBarrier && op <= OpArrayRangePostBarrier
}

// IsPostBarrier returns true for the barriers that follow a write
func (op Op) IsPostBarrier() bool {
	return op == OpPostWriteBarrier || op == OpArrayRangePostBarrier
}

// CanDeoptimize returns true for ops that may transfer execution back to the interpreter
func (op Op) CanDeoptimize() bool { return ops[op].canDeoptimize }

func voidStamp(*Graph, *Node) stamp.Stamp { return stamp.ForVoid() }

func booleanStamp(*Graph, *Node) stamp.Stamp { return stamp.ForInteger(stamp.Int, 0, 1) }

func firstInputStamp(g *Graph, n *Node) stamp.Stamp { return g.StampOf(n.inputs[0]) }

func binaryStamp(fold func(a, b stamp.Stamp) stamp.Stamp) func(g *Graph, n *Node) stamp.Stamp {
	return func(g *Graph, n *Node) stamp.Stamp {
		return fold(g.StampOf(n.inputs[0]), g.StampOf(n.inputs[1]))
	}
}

// phiStamp is the meet of the values of the phi. A phi without values has an empty stamp of its declared kind.
func phiStamp(g *Graph, n *Node) stamp.Stamp {
	var s stamp.Stamp
	first := true
	for _, v := range n.inputs[1:] {
		vs := g.StampOf(v)
		if first {
			s = vs
			first = false
		} else {
			s = s.Meet(vs)
		}
	}
	if first {
		return stamp.Empty(n.stamp.Kind())
	}
	return s
}
