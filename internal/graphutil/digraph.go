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

	"gonum.org/v1/gonum/graph/simple"
)

// Digraph is a directed graph over the dense node ids [0, order). It implements the graph.Iterator interface of
// github.com/yourbasic/graph and converts to a gonum graph for the algorithms of the gonum library.
type Digraph struct {
	// The order of the graph
	order int

	// Keys are the ids of the nodes present in the graph, sorted
	Keys []int64

	// Edges is an adjacency matrix: Edges[x][y] means there is a directed edge between x and y
	Edges map[int64]map[int64]bool
}

// NewDigraph returns an empty graph of the given order
func NewDigraph(order int) *Digraph {
	return &Digraph{
		order: order,
		Edges: map[int64]map[int64]bool{},
	}
}

// AddNode adds node v, if not present
func (d *Digraph) AddNode(v int64) {
	if _, ok := d.Edges[v]; ok {
		return
	}
	d.Edges[v] = map[int64]bool{}
	i := sort.Search(len(d.Keys), func(i int) bool { return d.Keys[i] >= v })
	d.Keys = append(d.Keys, 0)
	copy(d.Keys[i+1:], d.Keys[i:])
	d.Keys[i] = v
}

// AddEdge adds the edge x -> y and the nodes x and y
func (d *Digraph) AddEdge(x, y int64) {
	d.AddNode(x)
	d.AddNode(y)
	d.Edges[x][y] = true
}

// HasNode returns true if v is in the graph
func (d *Digraph) HasNode(v int64) bool {
	_, ok := d.Edges[v]
	return ok
}

// Successors returns the sorted successors of v
func (d *Digraph) Successors(v int64) []int64 {
	var r []int64
	for w := range d.Edges[v] {
		r = append(r, w)
	}
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	return r
}

// Subgraph returns a new graph that is the original graph with only the nodes in include. Only the edges that have
// both the origin and destination nodes in the include nodes are kept in the resulting graph.
// The subgraph's order is the same as the original, meaning that node ids stay consistent across subgraphs.
func Subgraph(original *Digraph, include []int64) *Digraph {
	sub := NewDigraph(original.order)
	for _, i := range include {
		if original.HasNode(i) {
			sub.AddNode(i)
		}
	}
	for _, i := range sub.Keys {
		for e := range original.Edges[i] {
			if sub.HasNode(e) {
				sub.Edges[i][e] = true
			}
		}
	}
	return sub
}

// Order implements the order of the graph.Iterator interface for the Digraph
func (d *Digraph) Order() int {
	return d.order
}

// Visit implements the graph.Iterator interface for the Digraph. Successors are visited in increasing order.
func (d *Digraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if !d.HasNode(int64(v)) {
		return false
	}
	for _, w := range d.Successors(int64(v)) {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// Gonum returns a copy of the graph as a gonum directed graph
func (d *Digraph) Gonum() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for _, k := range d.Keys {
		g.AddNode(simple.Node(k))
	}
	for _, k := range d.Keys {
		for _, w := range d.Successors(k) {
			if w != k {
				g.SetEdge(g.NewEdge(simple.Node(k), simple.Node(w)))
			}
		}
	}
	return g
}
