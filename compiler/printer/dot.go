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

// Package printer contains the dump and verify handlers of the compiler graphs.
//
// The dot handler writes every dumped graph to a GraphViz file; fixed nodes are boxes, control edges are red and
// data edges point from a node to its inputs. The graph verifier fails the compilation when a verified graph
// breaks a structural invariant.
package printer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
)

// Factory creates the handlers of this package for a debug context. The dot handler is only created when the
// options have a dump path.
type Factory struct{}

func (Factory) DumpHandlers(opts config.DebugOptions) []debug.DumpHandler {
	if opts.DumpPath == "" {
		return nil
	}
	return []debug.DumpHandler{NewDotHandler(opts.DumpPath)}
}

func (Factory) VerifyHandlers(config.DebugOptions) []debug.VerifyHandler {
	return []debug.VerifyHandler{GraphVerifier{}}
}

// DotHandler writes the dumped graphs in the DOT format
type DotHandler struct {
	dir string
	out io.Writer
	seq int
	// Written lists the files created by the handler
	Written []string
}

// NewDotHandler returns a handler writing one file per dump in dir
func NewDotHandler(dir string) *DotHandler {
	return &DotHandler{dir: dir}
}

// NewDotWriter returns a handler writing every dump to w
func NewDotWriter(w io.Writer) *DotHandler {
	return &DotHandler{out: w}
}

func (h *DotHandler) Dump(d *debug.DebugContext, obj any, format string, args ...any) error {
	g, ok := obj.(*graph.Graph)
	if !ok {
		return nil
	}
	title := fmt.Sprintf(format, args...)
	b, err := Marshal(g, title)
	if err != nil {
		return fmt.Errorf("could not print %s: %w", g.Name, err)
	}
	if h.out != nil {
		_, err = h.out.Write(b)
		return err
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("could not create dump directory: %w", err)
	}
	h.seq++
	name := fmt.Sprintf("%s-%03d-%s.dot", fileName(d.Description().Compilable, g.Name), h.seq, uuid.NewString())
	file := filepath.Join(h.dir, name)
	if err := os.WriteFile(file, b, 0o644); err != nil {
		return fmt.Errorf("could not write dump: %w", err)
	}
	h.Written = append(h.Written, file)
	return nil
}

func (h *DotHandler) Close() error { return nil }

// fileName returns a name usable in a file name for the compiled unit
func fileName(compilable, graphName string) string {
	name := compilable
	if name == "" {
		name = graphName
	}
	if name == "" {
		name = "graph"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// Marshal returns the DOT representation of the live nodes of g
func Marshal(g *graph.Graph, title string) ([]byte, error) {
	dg := &dotGraph{DirectedGraph: simple.NewDirectedGraph(), title: title}
	nodes := map[graph.NodeID]*dotNode{}
	for _, id := range g.Nodes() {
		n := g.Node(id)
		dn := &dotNode{id: int64(id), label: n.String(), fixed: n.Op().IsFixed()}
		if !n.Op().IsFixed() && n.Stamp().IsInteger() && !n.Stamp().IsUnrestricted() {
			dn.label += " " + n.Stamp().String()
		}
		nodes[id] = dn
		dg.AddNode(dn)
	}
	addEdge := func(from, to graph.NodeID, control bool) {
		// phis of loops can use themselves, simple graphs have no self edges
		if from == to || nodes[to] == nil {
			return
		}
		dg.SetEdge(dotEdge{from: nodes[from], to: nodes[to], control: control})
	}
	for _, id := range g.Nodes() {
		n := g.Node(id)
		for _, s := range n.Successors() {
			addEdge(id, s, true)
		}
		for _, in := range n.Inputs() {
			addEdge(id, in, false)
		}
		addEdge(id, n.State(), false)
		addEdge(id, n.Assoc(), false)
	}
	return dot.Marshal(dg, g.Name, "", "  ")
}

type dotGraph struct {
	*simple.DirectedGraph
	title string
}

func (g *dotGraph) DOTAttributers() (graphAttrs, nodeAttrs, edgeAttrs encoding.Attributer) {
	return attributes{{Key: "label", Value: g.title}}, attributes{{Key: "fontname", Value: "monospace"}}, nil
}

type attributes []encoding.Attribute

func (a attributes) Attributes() []encoding.Attribute { return a }

type dotNode struct {
	id    int64
	label string
	fixed bool
}

func (n *dotNode) ID() int64 { return n.id }

func (n *dotNode) Attributes() []encoding.Attribute {
	shape := "ellipse"
	if n.fixed {
		shape = "box"
	}
	return []encoding.Attribute{{Key: "label", Value: n.label}, {Key: "shape", Value: shape}}
}

type dotEdge struct {
	from, to *dotNode
	control  bool
}

func (e dotEdge) From() gonumgraph.Node { return e.from }

func (e dotEdge) To() gonumgraph.Node { return e.to }

func (e dotEdge) ReversedEdge() gonumgraph.Edge { return dotEdge{from: e.to, to: e.from, control: e.control} }

func (e dotEdge) Attributes() []encoding.Attribute {
	if e.control {
		return []encoding.Attribute{{Key: "color", Value: "red"}}
	}
	return []encoding.Attribute{{Key: "style", Value: "dashed"}}
}

// GraphVerifier checks the structural invariants of verified graphs
type GraphVerifier struct{}

func (GraphVerifier) Verify(d *debug.DebugContext, obj any, message string) {
	g, ok := obj.(*graph.Graph)
	if !ok {
		return
	}
	if err := g.Verify(); err != nil {
		common.Fail("%s: graph %s is broken in scope %s: %v", message, g.Name, d.CurrentScopeName(), err)
	}
}
