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
	"strings"

	"github.com/awslabs/ar-go-jit/compiler/graph"
	"github.com/awslabs/ar-go-jit/internal/funcutil"
)

// PhaseSuite is an ordered list of phases, itself usable as a phase
type PhaseSuite struct {
	name   string
	phases []Phase
}

// NewPhaseSuite returns a suite running the given phases in order
func NewPhaseSuite(name string, phases ...Phase) *PhaseSuite {
	return &PhaseSuite{name: name, phases: append([]Phase(nil), phases...)}
}

func (s *PhaseSuite) Name() string { return s.name }

// Phases returns the phases of the suite
func (s *PhaseSuite) Phases() []Phase { return append([]Phase(nil), s.phases...) }

// Len returns the number of phases of the suite
func (s *PhaseSuite) Len() int { return len(s.phases) }

// AppendPhase adds p at the end of the suite
func (s *PhaseSuite) AppendPhase(p Phase) { s.phases = append(s.phases, p) }

// InsertBefore inserts p before the first phase named before. It returns false, leaving the suite unchanged, if
// no phase has that name.
func (s *PhaseSuite) InsertBefore(before string, p Phase) bool {
	for i, q := range s.phases {
		if q.Name() == before {
			s.phases = append(s.phases[:i], append([]Phase{p}, s.phases[i:]...)...)
			return true
		}
	}
	return false
}

// Find returns the first phase with the given name
func (s *PhaseSuite) Find(name string) (Phase, bool) {
	for _, p := range s.phases {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Copy returns a suite with the same phases that can be modified independently
func (s *PhaseSuite) Copy() *PhaseSuite {
	return NewPhaseSuite(s.name, s.phases...)
}

// WithoutSpeculative returns a copy of the suite without its speculative phases
func (s *PhaseSuite) WithoutSpeculative() *PhaseSuite {
	return NewPhaseSuite(s.name, funcutil.Filter(s.phases, func(p Phase) bool { return !IsSpeculative(p) })...)
}

// Run applies each phase of the suite in its own scope; it stops at the first error
func (s *PhaseSuite) Run(g *graph.Graph, ctx *Context) error {
	for _, p := range s.phases {
		if err := Apply(p, g, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *PhaseSuite) String() string {
	names := funcutil.Map(s.phases, func(p Phase) string { return p.Name() })
	return s.name + "[" + strings.Join(names, ", ") + "]"
}

// Suites are the phase suites of the three tiers of a compilation
type Suites struct {
	High *PhaseSuite
	Mid  *PhaseSuite
	Low  *PhaseSuite
}

// Apply runs the high, mid and low tier suites on g
func (s Suites) Apply(g *graph.Graph, ctx *Context) error {
	for _, suite := range []*PhaseSuite{s.High, s.Mid, s.Low} {
		if suite == nil {
			continue
		}
		if err := Apply(suite, g, ctx); err != nil {
			return err
		}
	}
	return nil
}

// WithoutSpeculative strips the speculative phases of every tier
func (s Suites) WithoutSpeculative() Suites {
	return Suites{High: s.High.WithoutSpeculative(), Mid: s.Mid.WithoutSpeculative(), Low: s.Low.WithoutSpeculative()}
}
