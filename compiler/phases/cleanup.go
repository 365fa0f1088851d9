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

package phases

import (
	"fmt"

	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
)

var (
	deadNodes      = debug.Counter("DeadNodes")
	prunedBranches = debug.Counter("PrunedBranches")
)

// DeadCodeEliminationPhase removes the unreachable fixed nodes and the unused floating nodes
type DeadCodeEliminationPhase struct{}

func (DeadCodeEliminationPhase) Name() string { return "DeadCodeElimination" }

func (DeadCodeEliminationPhase) Run(g *graph.Graph, ctx *Context) error {
	n := g.RemoveDeadCode()
	deadNodes.Add(ctx.Debug, int64(n))
	ctx.Debug.Log(debug.VerboseLevel, "removed %d dead nodes", n)
	return nil
}

// ProfilePruningPhase replaces the branches that profiling never saw taken by a deoptimization. The If nodes
// flagged FlagNeverTaken lose the body of their true successor. Each pruned branch is recorded as an assumption
// on the graph.
type ProfilePruningPhase struct{}

func (ProfilePruningPhase) Name() string { return "ProfilePruning" }

func (ProfilePruningPhase) Speculative() bool { return true }

func (ProfilePruningPhase) Run(g *graph.Graph, ctx *Context) error {
	for _, id := range g.NodesOf(graph.OpIf) {
		if !g.IsAlive(id) {
			continue
		}
		n := g.Node(id)
		if !n.Has(graph.FlagNeverTaken) {
			continue
		}
		begin := n.TrueSuccessor()
		if g.Op(g.Node(begin).Next()) == graph.OpDeoptimize {
			continue
		}
		g.KillCFG(g.Node(begin).Next())
		g.SetNext(begin, g.Add(graph.NewNode(graph.OpDeoptimize).WithTarget("UnreachedCode")))
		g.RecordAssumption(graph.Assumption{
			Kind:        "NeverTaken",
			Description: fmt.Sprintf("true successor of %s in %s", n, g.Name),
		})
		prunedBranches.Increment(ctx.Debug)
	}
	return nil
}
