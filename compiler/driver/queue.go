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

// Package driver compiles independent graphs concurrently. Each compilation runs on a single goroutine with its own
// debug context; graphs are never shared between compilations.
package driver

import (
	"fmt"
	"time"

	"github.com/awslabs/ar-go-jit/compiler/backend"
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
	"github.com/awslabs/ar-go-jit/compiler/printer"
	"github.com/awslabs/ar-go-jit/compiler/tiers"
	"github.com/awslabs/ar-go-jit/internal/funcutil"
)

var (
	compiledMethods = debug.Counter("CompiledMethods")
	osrFallbacks    = debug.Counter("OSRFallbacks")
	compilationTime = debug.Timer("CompilationTime")
)

// Request asks for the compilation of a method
type Request struct {
	Name string
	// Build returns the graph of the method. It is called again when an OSR compilation falls back to a normal
	// compilation.
	Build func() *graph.Graph
	// OSR requests an entry at the OSR entry marker of the graph
	OSR bool
}

// Result is the outcome of a request
type Result struct {
	Request Request
	// ID identifies the compilation in dumps and logs
	ID   string
	Code *backend.InstalledCode
	Err  error
	// Bailout is the reason of the OSR bailout when the request fell back to a normal compilation
	Bailout  string
	Duration time.Duration
}

// OSRFallback returns true if an OSR request was compiled without OSR
func (r Result) OSRFallback() bool { return r.Bailout != "" }

// Queue collects requests and compiles them with cfg.CompileThreads goroutines
type Queue struct {
	cfg      *config.Config
	backend  backend.Backend
	logger   *config.LogGroup
	requests []Request
}

// NewQueue returns an empty queue compiling with b
func NewQueue(cfg *config.Config, b backend.Backend) *Queue {
	return &Queue{cfg: cfg, backend: b, logger: config.NewLogGroup(cfg)}
}

// Submit adds a request to the queue
func (q *Queue) Submit(r Request) {
	q.requests = append(q.requests, r)
}

// Len returns the number of pending requests
func (q *Queue) Len() int { return len(q.requests) }

// Run compiles the pending requests and returns their results in submission order. The queue is empty afterwards.
func (q *Queue) Run() []Result {
	requests := q.requests
	q.requests = nil
	q.logger.Infof("compiling %d methods with %d threads", len(requests), q.cfg.CompileThreads)
	return funcutil.MapParallel(requests, q.Compile, q.cfg.CompileThreads)
}

// Compile compiles a single request on the calling goroutine. An assertion failure is reported as the error of
// the result.
func (q *Queue) Compile(r Request) (res Result) {
	res.Request = r
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()
	desc := debug.NewDescription(r.Name)
	res.ID = desc.ID
	d := debug.NewBuilder(q.cfg.Debug).Factories(printer.Factory{}).Description(desc).Build()
	defer func() {
		if err := d.Close(); err != nil && res.Err == nil {
			res.Err = err
		}
	}()
	if failure := common.CatchAssertion(func() { res.Code, res.Err = q.compile(r, d, &res) }); failure != nil {
		res.Err = failure
	}
	if res.Err != nil {
		q.logger.With(r.Name).Errorf("compilation failed: %v", res.Err)
	}
	return res
}

func (q *Queue) compile(r Request, d *debug.DebugContext, res *Result) (code *backend.InstalledCode, err error) {
	scope := d.Sandbox("Compiling_"+r.Name, &q.cfg.Debug)
	defer scope.Close(&err)
	timer := compilationTime.Start(d)
	defer timer.Close()

	g, err := q.optimize(r, d)
	if err != nil && r.OSR && common.IsBailout(err) {
		q.logger.With(r.Name).Warnf("OSR compilation bailed out, compiling without OSR: %v", err)
		osrFallbacks.Increment(d)
		res.Bailout = err.Error()
		r.OSR = false
		g, err = q.optimize(r, d)
	}
	if err != nil {
		return nil, err
	}
	result, err := q.backend.Emit(g, &backend.Request{Name: r.Name, Registers: q.cfg.Registers})
	if err != nil {
		return nil, fmt.Errorf("code generation of %s failed: %w", r.Name, err)
	}
	code, err = q.backend.Install(result)
	if err != nil {
		return nil, err
	}
	compiledMethods.Increment(d)
	q.logger.With(r.Name).Debugf("installed at %#x", code.Address)
	return code, nil
}

// optimize builds the graph of r and runs the suites on it
func (q *Queue) optimize(r Request, d *debug.DebugContext) (*graph.Graph, error) {
	g := r.Build()
	suites := tiers.DefaultSuites(q.cfg)
	if r.OSR {
		suites = tiers.OSRSuites(q.cfg)
	}
	ctx := phases.NewContext(q.cfg, d)
	if err := suites.Apply(g, ctx); err != nil {
		return nil, err
	}
	return g, nil
}
