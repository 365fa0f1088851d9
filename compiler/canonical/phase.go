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
	"golang.org/x/tools/container/intsets"

	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
)

var (
	canonicalizedNodes = debug.Counter("CanonicalizedNodes")
	mergedNodes        = debug.Counter("GlobalValueNumberingHits")
	foldedSplits       = debug.Counter("FoldedSplits")
	removedGuards      = debug.Counter("RemovedGuards")
)

// CanonicalizerPhase canonicalizes every node of the graph until no rule applies. Floating nodes are replaced at
// their usages by their canonical form, or merged with a structurally equal node. An If with a constant condition
// is replaced by the taken branch, and a FixedGuard on a true condition is removed.
type CanonicalizerPhase struct{}

func (CanonicalizerPhase) Name() string { return "Canonicalizer" }

func (CanonicalizerPhase) Run(g *graph.Graph, ctx *phases.Context) error {
	w := &worklist{}
	for _, id := range g.Nodes() {
		w.push(id)
	}
	for !w.empty() {
		id := w.pop()
		if !g.IsAlive(id) {
			continue
		}
		n := g.Node(id)
		switch op := n.Op(); {
		case op == graph.OpIf:
			cond, ok := g.IsConstant(n.Input(0))
			if !ok {
				continue
			}
			survivor := n.FalseSuccessor()
			if cond != 0 {
				survivor = n.TrueSuccessor()
			}
			ctx.Debug.Log(debug.DetailedLevel, "folding %s to %s", n, g.Node(survivor))
			g.RemoveSplit(id, survivor)
			foldedSplits.Increment(ctx.Debug)
		case op == graph.OpFixedGuard:
			if cond, ok := g.IsConstant(n.Input(0)); ok && cond != 0 {
				g.RemoveFixedWithUnusedInputs(id)
				removedGuards.Increment(ctx.Debug)
			}
		case !op.IsFixed():
			if n.NumUsages() == 0 && op != graph.OpParameter {
				continue
			}
			r := Canonicalize(g, id)
			if r == id {
				dup, found := g.FindDuplicate(id)
				if !found {
					continue
				}
				r = dup
				mergedNodes.Increment(ctx.Debug)
			} else {
				canonicalizedNodes.Increment(ctx.Debug)
			}
			ctx.Debug.Log(debug.DetailedLevel, "replacing %s by %s", n, g.Node(r))
			users := n.Usages()
			g.ReplaceAtUsages(id, r)
			g.KillUnusedFloating(id)
			for _, u := range users {
				if g.IsAlive(u) {
					updateStamp(g, u, w)
					w.push(u)
				}
			}
		}
	}
	return nil
}

// updateStamp re-infers the stamp of id and enqueues its usages when it changed
func updateStamp(g *graph.Graph, id graph.NodeID, w *worklist) {
	if g.InferStamp(id) {
		for _, u := range g.Node(id).Usages() {
			w.push(u)
		}
	}
}

// worklist is a FIFO of node ids without duplicates
type worklist struct {
	queue  []graph.NodeID
	queued intsets.Sparse
}

func (w *worklist) push(id graph.NodeID) {
	if w.queued.Insert(int(id)) {
		w.queue = append(w.queue, id)
	}
}

func (w *worklist) pop() graph.NodeID {
	id := w.queue[0]
	w.queue = w.queue[1:]
	w.queued.Remove(int(id))
	return id
}

func (w *worklist) empty() bool { return len(w.queue) == 0 }
