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
	"time"

	"github.com/google/btree"

	"github.com/awslabs/ar-go-jit/compiler/backend"
	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/stamp"
	"github.com/awslabs/ar-go-jit/internal/funcutil"
	"github.com/awslabs/ar-go-jit/internal/graphutil"
)

// Registry holds the linkages of the foreign calls known to the compiler, ordered by name
type Registry struct {
	cfg      *config.Config
	mu       sync.RWMutex
	linkages *btree.BTreeG[*Linkage]
}

func lessLinkage(a, b *Linkage) bool { return a.Name() < b.Name() }

// NewRegistry returns a registry with the linkages used by every compilation (the deoptimization handler and the
// barrier slow paths) and the foreign calls of cfg.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{cfg: cfg, linkages: btree.NewG[*Linkage](8, lessLinkage)}
	builtins := []*Linkage{
		{
			Descriptor: ForeignCallDescriptor{Name: UncommonTrap, Result: stamp.Void, Transition: Safepoint},
			Address:    0x1000,
			Effect:     DestroysRegisters,
		},
		{
			Descriptor: ForeignCallDescriptor{Name: backend.PreBarrierSlowPath, Result: stamp.Void,
				Args: []stamp.Kind{stamp.Object}, Transition: LeafNoFP},
			Address: 0x1100,
			Effect:  PreservesRegisters,
		},
		{
			Descriptor: ForeignCallDescriptor{Name: backend.PostBarrierSlowPath, Result: stamp.Void,
				Args: []stamp.Kind{stamp.Object}, Transition: LeafNoFP},
			Address: 0x1200,
			Effect:  PreservesRegisters,
		},
	}
	for _, l := range builtins {
		if err := r.Register(l); err != nil {
			return nil, err
		}
	}
	deopt := &Linkage{
		Descriptor: ForeignCallDescriptor{Name: backend.DeoptimizationHandler, Result: stamp.Void},
		Effect:     DestroysRegisters,
	}
	newStub(deopt, r, buildDeoptimizationGraph)
	if err := r.Register(deopt); err != nil {
		return nil, err
	}
	for _, fc := range cfg.ForeignCalls {
		if err := r.registerSpec(fc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) registerSpec(fc config.ForeignCallSpec) error {
	d, err := descriptorOf(fc)
	if err != nil {
		return err
	}
	l := &Linkage{Descriptor: d, Address: fc.Address, Effect: effectOf(fc.Effect)}
	switch fc.Stub {
	case "":
		return r.Register(l)
	case config.StubForeignCall:
		// the stub is called from compiled code; the thread is only passed to its runtime target
		target := &Linkage{Descriptor: d, Address: fc.Address, Effect: DestroysRegisters}
		target.Descriptor.Name = RuntimeTarget(d.Name)
		l.Address = 0
		l.Descriptor.Transition = Leaf
		if err := r.Register(target); err != nil {
			return err
		}
		newStub(l, r, buildForeignCallGraph, deoptimizationDependencies(target.Descriptor)...)
		return r.Register(l)
	case config.StubArrayStore:
		want := []stamp.Kind{stamp.Object, stamp.Int, stamp.Object}
		if len(d.Args) != len(want) || d.Args[0] != want[0] || d.Args[1] != want[1] || d.Args[2] != want[2] ||
			d.Result != stamp.Void {
			return fmt.Errorf("%s: an array store stub has the signature void(object, int, object), got %s",
				d.Name, d)
		}
		newStub(l, r, buildArrayStoreGraph)
		return r.Register(l)
	default:
		return fmt.Errorf("%s: unknown stub kind %q", fc.Name, fc.Stub)
	}
}

// Register adds a linkage. Names are unique.
func (r *Registry) Register(l *Linkage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkages.Has(l) {
		return fmt.Errorf("foreign call %s is already registered", l.Name())
	}
	r.linkages.ReplaceOrInsert(l)
	return nil
}

// Lookup returns the linkage with the given name
func (r *Registry) Lookup(name string) (*Linkage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.linkages.Get(&Linkage{Descriptor: ForeignCallDescriptor{Name: name}})
}

// Linkages returns every linkage, ordered by name
func (r *Registry) Linkages() []*Linkage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*Linkage, 0, r.linkages.Len())
	r.linkages.Ascend(func(l *Linkage) bool {
		res = append(res, l)
		return true
	})
	return res
}

// Stubs returns the stubs of the linkages, ordered by name
func (r *Registry) Stubs() []*Stub {
	var res []*Stub
	for _, l := range r.Linkages() {
		if l.stub != nil {
			res = append(res, l.stub)
		}
	}
	return res
}

// CompileOrder groups the stubs matching keep in waves: a stub is in a later wave than the stubs it calls. The
// stubs called by a kept stub are kept as well.
func (r *Registry) CompileOrder(keep func(name string) bool) [][]*Stub {
	stubs := r.Stubs()
	byName := map[string]*Stub{}
	for _, s := range stubs {
		byName[s.Name()] = s
	}
	successors := func(s *Stub) []*Stub {
		var res []*Stub
		for _, dep := range s.dependencies {
			if t, ok := byName[dep]; ok {
				res = append(res, t)
			}
		}
		return res
	}
	// components come after the components they call
	sccs := graphutil.StronglyConnectedComponents(funcutil.Filter(stubs, func(s *Stub) bool { return keep(s.Name()) }),
		successors)
	wave := map[*Stub]int{}
	var waves [][]*Stub
	for _, scc := range sccs {
		common.Assertf(len(scc) == 1, "stubs %v call each other", scc)
		s := scc[0]
		w := 0
		for _, t := range successors(s) {
			if wave[t]+1 > w {
				w = wave[t] + 1
			}
		}
		wave[s] = w
		for len(waves) <= w {
			waves = append(waves, nil)
		}
		waves[w] = append(waves[w], s)
	}
	return waves
}

// Result is the outcome of the compilation of a stub
type Result struct {
	Stub     *Stub
	Code     *backend.InstalledCode
	Err      error
	Duration time.Duration
}

// CompileAll compiles the stubs matching keep with threads goroutines, wave by wave. progress, if not nil, is
// called after each compilation. An assertion failure in a stub is reported as the error of its result.
func (r *Registry) CompileAll(b backend.Backend, threads int, keep func(name string) bool,
	progress func(Result)) []Result {
	var mu sync.Mutex
	var results []Result
	for _, w := range r.CompileOrder(keep) {
		results = append(results, funcutil.MapParallel(w, func(s *Stub) Result {
			res := compileStub(s, b)
			if progress != nil {
				mu.Lock()
				progress(res)
				mu.Unlock()
			}
			return res
		}, threads)...)
	}
	return results
}

func compileStub(s *Stub, b backend.Backend) (res Result) {
	res.Stub = s
	start := time.Now()
	if failure := common.CatchAssertion(func() { res.Code, res.Err = s.GetCode(b) }); failure != nil {
		res.Err = failure
	}
	res.Duration = time.Since(start)
	return res
}
