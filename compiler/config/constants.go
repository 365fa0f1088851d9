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

package config

const (
	// DefaultCompileThreads is the number of compiler goroutines used when the config does not set one
	DefaultCompileThreads = 4

	// CollectorGenerational selects the two-barrier policy (pre and post barriers)
	CollectorGenerational = "generational"
	// CollectorSimple selects the single post-barrier (card marking) policy
	CollectorSimple = "simple"

	// TransitionLeaf is a runtime call that does not need the thread and cannot reach a safepoint
	TransitionLeaf = "leaf"
	// TransitionLeafNoFP is a leaf call that also does not touch floating point state
	TransitionLeafNoFP = "leaf-no-fp"
	// TransitionSafepoint is a runtime call that may reach a safepoint and needs the current thread
	TransitionSafepoint = "safepoint"

	// EffectDestroysRegisters means the caller must save the registers it needs across the call
	EffectDestroysRegisters = "destroys-registers"
	// EffectPreservesRegisters means the callee saves every register it uses
	EffectPreservesRegisters = "preserves-registers"

	// StubForeignCall compiles a trampoline that calls the runtime target
	StubForeignCall = "foreign-call"
	// StubArrayStore compiles a stub storing an object into an array slot with the collector's barriers
	StubArrayStore = "array-store"

	KindVoid   = "void"
	KindInt    = "int"
	KindLong   = "long"
	KindObject = "object"
)

// Version is the version of the compiler tools
const Version = "v0.1.0"
