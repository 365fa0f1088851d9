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

// Package phases contains the phase abstraction, phase suites and the generic phases of the compiler.
package phases

import (
	"fmt"
	"sync"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
)

// Context is the state shared by the phases of one compilation
type Context struct {
	Debug  *debug.DebugContext
	Config *config.Config
	Logger *config.LogGroup
}

// NewContext returns a phase context using cfg and d. The logger is created from cfg; its messages start with the
// name of the compiled unit of d.
func NewContext(cfg *config.Config, d *debug.DebugContext) *Context {
	logger := config.NewLogGroup(cfg)
	if name := d.Description().Compilable; name != "" {
		logger = logger.With(name)
	}
	return &Context{Debug: d, Config: cfg, Logger: logger}
}

// Phase is a graph transformation
type Phase interface {
	Name() string
	Run(g *graph.Graph, ctx *Context) error
}

// SpeculativePhase is implemented by phases that record assumptions on the graph. Speculative phases are removed
// from the suites of compilations that cannot be invalidated, such as stubs.
type SpeculativePhase interface {
	Phase
	Speculative() bool
}

// IsSpeculative returns true if p is a speculative phase
func IsSpeculative(p Phase) bool {
	s, ok := p.(SpeculativePhase)
	return ok && s.Speculative()
}

var phaseTimers = struct {
	sync.Mutex
	m map[string]*debug.TimerKey
}{m: map[string]*debug.TimerKey{}}

func timerFor(name string) *debug.TimerKey {
	phaseTimers.Lock()
	defer phaseTimers.Unlock()
	t, ok := phaseTimers.m[name]
	if !ok {
		t = debug.Timer("PhaseTime_" + name)
		phaseTimers.m[name] = t
	}
	return t
}

var executedPhases = debug.Counter("ExecutedPhases")

// Apply runs p on g in a debug scope named after the phase. The graph is dumped after the phase, and checked when
// VerifyGraphs is set; a broken graph is an assertion failure.
func Apply(p Phase, g *graph.Graph, ctx *Context) (err error) {
	scope := ctx.Debug.Scope(p.Name(), g)
	defer scope.Close(&err)
	timer := timerFor(p.Name()).Start(ctx.Debug)
	defer timer.Close()
	before := g.NodeCount()
	err = p.Run(g, ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	executedPhases.Increment(ctx.Debug)
	ctx.Logger.Tracef("%s on %s: %d -> %d nodes", p.Name(), g.Name, before, g.NodeCount())
	ctx.Debug.Dump(debug.InfoLevel, g, "After phase %s", p.Name())
	if ctx.Config.VerifyGraphs {
		if verr := g.Verify(); verr != nil {
			common.Fail("graph %s is broken after %s: %v", g.Name, p.Name(), verr)
		}
	}
	ctx.Debug.Verify(g, "After phase "+p.Name())
	return nil
}
