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

package printer

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
)

func buildLoop() *graph.Graph {
	g := graph.New("count")
	b := graph.NewBuilder(g)
	n := g.Parameter(0, stamp.ForKind(stamp.Int))
	loop := b.LoopBegin()
	stay, exit := b.BranchExit(g.Binary(graph.OpIntegerLessThan, n, g.Constant(stamp.Int, 10)), loop)
	b.SetCurrent(stay)
	b.LoopEnd(loop)
	b.SetCurrent(exit)
	b.Return(n)
	return g
}

func TestMarshal(t *testing.T) {
	g := buildLoop()
	b, err := Marshal(g, "after parsing")
	if err != nil {
		t.Fatalf("could not marshal graph: %v", err)
	}
	out := string(b)
	if !strings.HasPrefix(out, "strict digraph count {") {
		t.Errorf("expected a digraph named after the graph, got:\n%s", out)
	}
	for _, want := range []string{"LoopBegin", "LoopExit", "IntegerLessThan", "after parsing", "shape=box",
		"color=red", "style=dashed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestDumpThroughDebugContext(t *testing.T) {
	dir := t.TempDir()
	opts := config.NewDebugOptions()
	opts.Dump = ":2"
	opts.DumpPath = dir
	d := debug.NewBuilder(opts).Output(io.Discard).Factories(Factory{}).
		Description(debug.NewDescription("new/instance")).Build()
	g := buildLoop()
	func() {
		s := d.Scope("Parsing", g)
		defer s.Close(nil)
		d.Dump(debug.InfoLevel, g, "after %s", "parsing")
		d.Dump(debug.InfoLevel, "not a graph", "ignored")
		d.Dump(debug.DetailedLevel, g, "too detailed")
	}()
	if err := d.Close(); err != nil {
		t.Fatalf("closing the context failed: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.dot"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected a single dump file, found %v", files)
	}
	if base := filepath.Base(files[0]); !strings.HasPrefix(base, "new_instance-001-") {
		t.Errorf("the dump file should be named after the compilation, got %s", base)
	}
	b, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte("after parsing")) {
		t.Errorf("the dump should carry its title")
	}
}

func TestNoDumpHandlerWithoutPath(t *testing.T) {
	if h := (Factory{}).DumpHandlers(config.NewDebugOptions()); len(h) != 0 {
		t.Errorf("no dot handler should be created without a dump path")
	}
	var buf bytes.Buffer
	h := NewDotWriter(&buf)
	if err := h.Dump(debug.Disabled(), buildLoop(), "x"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "digraph") {
		t.Errorf("the writer handler should print the graph")
	}
}

func TestGraphVerifier(t *testing.T) {
	opts := config.NewDebugOptions()
	opts.Verify = ":1"
	d := debug.NewBuilder(opts).Output(io.Discard).Factories(Factory{}).Build()
	g := buildLoop()
	if err := common.CatchAssertion(func() { d.Verify(g, "valid") }); err != nil {
		t.Fatalf("a valid graph should pass: %v", err)
	}
	g.Add(graph.NewNode(graph.OpSafepoint))
	err := common.CatchAssertion(func() { d.Verify(g, "broken") })
	if err == nil || !strings.HasPrefix(err.Message, "broken: graph count is broken") {
		t.Errorf("a broken graph should fail verification, got %v", err)
	}
}
