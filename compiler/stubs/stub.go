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

package stubs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/awslabs/ar-go-jit/compiler/backend"
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/debug"
	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/compiler/phases"
	"github.com/awslabs/ar-go-jit/compiler/printer"
	"github.com/awslabs/ar-go-jit/compiler/tiers"
)

// IntArrayKlass is the metadata of int arrays. The type is never unloaded, so stubs may embed it.
const IntArrayKlass = "[I"

var (
	stubsCompiled   = debug.Counter("StubsCompiled")
	stubCompilation = debug.Timer("StubCompilation")
)

// graphBuilder returns the graph of a stub
type graphBuilder func(s *Stub) *graph.Graph

// Stub is the compiled code of a linkage. It is compiled at most once, by the first call to GetCode.
type Stub struct {
	linkage  *Linkage
	registry *Registry
	cfg      *config.Config
	build    graphBuilder
	// dependencies are the names of the stubs called by the code of the stub
	dependencies []string

	mu           sync.Mutex
	code         *backend.InstalledCode
	compilations atomic.Int32
}

func newStub(l *Linkage, r *Registry, build graphBuilder, dependencies ...string) *Stub {
	s := &Stub{linkage: l, registry: r, cfg: r.cfg, build: build, dependencies: dependencies}
	l.stub = s
	return s
}

// Name returns the name of the linkage of the stub
func (s *Stub) Name() string { return s.linkage.Name() }

// Linkage returns the linkage compiled by the stub
func (s *Stub) Linkage() *Linkage { return s.linkage }

// Compilations returns the number of times the stub has been compiled, at most one
func (s *Stub) Compilations() int { return int(s.compilations.Load()) }

// Code returns the installed code, or nil if the stub has not been compiled
func (s *Stub) Code() *backend.InstalledCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

func (s *Stub) String() string { return "Stub<" + s.Name() + ">" }

// GetCode returns the installed code of the stub, compiling and installing it with b on the first call. Concurrent
// callers wait for the compilation and all observe the same code. A failed compilation is not cached.
func (s *Stub) GetCode(b backend.Backend) (*backend.InstalledCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code != nil {
		return s.code, nil
	}
	code, err := s.compile(b)
	if err != nil {
		return nil, err
	}
	s.code = code
	return code, nil
}

// compile runs on the goroutine holding the stub's lock, with its own debug context
func (s *Stub) compile(b backend.Backend) (code *backend.InstalledCode, err error) {
	d := debug.NewBuilder(s.cfg.Debug).
		Factories(printer.Factory{}).
		Description(debug.NewDescription(s.Name())).
		Build()
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	scope := d.Sandbox("CompilingStub_"+s.Name(), &s.cfg.Debug, s)
	defer scope.Close(&err)
	timer := stubCompilation.Start(d)
	defer timer.Close()

	g := s.build(s)
	d.Dump(debug.BasicLevel, g, "Initial stub graph")
	ctx := phases.NewContext(s.cfg, d)
	if err := tiers.StubSuites(s.cfg).Apply(g, ctx); err != nil {
		return nil, fmt.Errorf("stub %s: %w", s.Name(), err)
	}
	req := &backend.Request{
		Name:               s.Name(),
		Registers:          s.cfg.Registers,
		DestroyedRegisters: s.linkage.DestroyedRegisters(s.cfg.Registers),
	}
	result, err := b.Emit(g, req)
	if err != nil {
		return nil, fmt.Errorf("stub %s: %w", s.Name(), err)
	}
	s.checkInstall(result)
	code, err = b.Install(result)
	if err != nil {
		return nil, fmt.Errorf("could not install stub %s: %w", s.Name(), err)
	}
	s.compilations.Add(1)
	stubsCompiled.Increment(d)
	ctx.Logger.Debugf("installed at %#x (%d bytes)", code.Address, code.Size)
	d.Log(debug.BasicLevel, "code of %s:\n%s", s, result.Listing())
	return code, nil
}

// checkInstall checks the compiled code of the stub before it is installed. Stubs are never invalidated nor
// recompiled, so their code can neither depend on assumptions nor handle exceptions, and it may only embed
// constants that never move. A stub only calls runtime functions, or the deoptimization handler.
func (s *Stub) checkInstall(result *backend.CompilationResult) {
	common.Assertf(len(result.ExceptionHandlers) == 0, "%s should not have exception handlers", s)
	common.Assertf(len(result.Assumptions) == 0, "%s should not have assumptions, found %v", s,
		result.Assumptions)
	for _, p := range result.DataPatches {
		switch p.Kind {
		case backend.PatchObject:
			common.Assertf(p.Interned, "%s should not embed the object constant %q", s, p.Name)
		case backend.PatchKlass:
			common.Assertf(p.Name == IntArrayKlass, "%s should not embed the metadata of %s", s, p.Name)
		}
	}
	for _, c := range result.Calls {
		common.Assertf(c.Kind == backend.CallRuntime, "%s should only call runtime functions, found a call to %s",
			s, c.Target)
		l, ok := s.registry.Lookup(c.Target)
		common.Assertf(ok, "%s calls %s which is not a foreign call", s, c.Target)
		common.Assertf(l.IsRuntime() || l.Name() == backend.DeoptimizationHandler,
			"%s should not call the stub %s", s, l.Name())
	}
}
