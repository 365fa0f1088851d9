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

// Package tiers assembles the phase suites of the compiler from the phases of the other compiler packages.
package tiers

import (
	"github.com/awslabs/ar-go-jit/compiler/barrier"
	"github.com/awslabs/ar-go-jit/compiler/canonical"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/awslabs/ar-go-jit/compiler/osr"
	"github.com/awslabs/ar-go-jit/compiler/phases"
)

// DefaultSuites returns the suites used to compile methods:
//
//	High: Canonicalizer, ProfilePruning, DeadCodeElimination
//	Mid:  Lowering, Canonicalizer, WriteBarrierAddition[, WriteBarrierVerification]
//	Low:  DeadCodeElimination
//
// The barrier verification phase is only present when cfg.VerifyBarriers is set.
func DefaultSuites(cfg *config.Config) phases.Suites {
	high := phases.NewPhaseSuite("HighTier",
		canonical.CanonicalizerPhase{},
		phases.ProfilePruningPhase{},
		phases.DeadCodeEliminationPhase{})
	return phases.Suites{High: high, Mid: midTier(cfg), Low: lowTier()}
}

// OSRSuites returns the default suites with the on-stack-replacement transform at the start of the high tier
func OSRSuites(cfg *config.Config) phases.Suites {
	s := DefaultSuites(cfg)
	s.High.InsertBefore(canonical.CanonicalizerPhase{}.Name(), osr.Phase{})
	return s
}

// StubSuites returns the suites used to compile stubs. Stubs are small graphs built by hand, so the high tier is
// empty. Stubs are never recompiled: the speculative phases are removed from every tier.
func StubSuites(cfg *config.Config) phases.Suites {
	s := phases.Suites{High: phases.NewPhaseSuite("HighTier"), Mid: midTier(cfg), Low: lowTier()}
	return s.WithoutSpeculative()
}

func midTier(cfg *config.Config) *phases.PhaseSuite {
	mid := phases.NewPhaseSuite("MidTier",
		phases.LoweringPhase{},
		canonical.CanonicalizerPhase{},
		barrier.PhaseFor(cfg))
	if cfg.VerifyBarriers {
		mid.AppendPhase(barrier.VerificationPhase{Collector: cfg.Collector})
	}
	return mid
}

func lowTier() *phases.PhaseSuite {
	return phases.NewPhaseSuite("LowTier", phases.DeadCodeEliminationPhase{})
}
