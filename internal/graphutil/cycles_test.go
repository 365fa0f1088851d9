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


package graphutil

import (
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/yourbasic/graph"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/awslabs/ar-go-jit/internal/funcutil"
)

func digraphOf(edges [][2]int64) *Digraph {
	d := NewDigraph(16)
	for _, e := range edges {
		d.AddEdge(e[0], e[1])
	}
	return d
}

func TestFindAllElementaryCycles(t *testing.T) {
	d := digraphOf([][2]int64{{1, 2}, {2, 3}, {3, 1}, {3, 4}, {4, 3}, {4, 5}, {5, 5}, {6, 1}})
	stats := graph.Check(d)
	if stats.Loops != 1 {
		t.Errorf("expected one self loop, got %d", stats.Loops)
	}
	cycles := FindAllElementaryCycles(d)
	results := funcutil.Map(cycles, func(c []int64) string {
		return strings.Join(funcutil.Map(c, func(x int64) string { return strconv.Itoa(int(x)) }), "")
	})
	sort.Strings(results)
	expected := []string{"1231", "343", "55"}
	if !slices.Equal(results, expected) {
		t.Fatalf("expected cycles %v, got %v", expected, results)
	}
}

func TestSubgraphKeepsInnerEdges(t *testing.T) {
	d := digraphOf([][2]int64{{1, 2}, {2, 3}, {3, 1}})
	sub := Subgraph(d, []int64{1, 2})
	if !sub.Edges[1][2] || sub.HasNode(3) || len(sub.Edges[2]) != 0 {
		t.Errorf("unexpected subgraph %v", sub.Edges)
	}
	if sub.Order() != d.Order() {
		t.Errorf("subgraph should keep the order of the original graph")
	}
}

func TestGonumConversion(t *testing.T) {
	d := digraphOf([][2]int64{{0, 1}, {1, 2}, {2, 1}, {2, 2}})
	g := d.Gonum()
	if g.Nodes().Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", g.Nodes().Len())
	}
	if !g.HasEdgeFromTo(2, 1) || g.HasEdgeFromTo(1, 0) {
		t.Errorf("edges not converted")
	}
	if len(topo.TarjanSCC(g)) != 2 {
		t.Errorf("expected two components")
	}
}
