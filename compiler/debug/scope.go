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

package debug

import (
	"fmt"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
)

// Scope is a named frame of a DebugContext. A scope is opened by DebugContext.Scope or DebugContext.Sandbox and
// must be closed by deferring its Close method directly:
//
//	s := d.Scope("Phase", g)
//	defer s.Close(&err)
type Scope struct {
	d *DebugContext
	// parent is the scope that was current when this one was opened, restored on Close
	parent        *Scope
	qualifiedName string
	depth         int
	context       []any
	cfg           *config.DebugOptions
	sandbox       bool
	intercept     bool

	dumpLevel   int
	logLevel    int
	verifyLevel int
	countLevel  int
	timeLevel   int

	// inert scopes were opened while scopes were disabled, closing them only forwards failures
	inert bool
	// disabled scopes are sandboxes without config
	disabled            bool
	savedCurrent        *Scope
	savedMetricsEnabled bool
	closed              bool
}

func newScope(d *DebugContext, parent *Scope, name string, cfg *config.DebugOptions, sandbox bool) *Scope {
	s := &Scope{
		d:         d,
		parent:    parent,
		cfg:       cfg,
		sandbox:   sandbox,
		intercept: true,
	}
	switch {
	case parent == nil || sandbox:
		s.qualifiedName = name
	case parent.qualifiedName == "":
		s.qualifiedName = name
		s.depth = parent.depth
	default:
		s.qualifiedName = parent.qualifiedName + "." + name
		s.depth = parent.depth + 1
	}
	if parent != nil && !parent.intercept {
		s.intercept = false
	}
	s.dumpLevel = levelFor(cfg.Dump, s.qualifiedName)
	s.logLevel = levelFor(cfg.Log, s.qualifiedName)
	s.verifyLevel = levelFor(cfg.Verify, s.qualifiedName)
	s.countLevel = levelFor(cfg.Count, s.qualifiedName)
	s.timeLevel = levelFor(cfg.Time, s.qualifiedName)
	return s
}

// QualifiedName returns the dot separated names of the scope and its enclosing scopes up to the nearest sandbox
func (s *Scope) QualifiedName() string { return s.qualifiedName }

// Scope opens a scope nested in the current scope. The context objects are available to handlers and are dumped
// when a failure is intercepted. When scopes are disabled the returned scope is inert.
func (d *DebugContext) Scope(name string, context ...any) *Scope {
	d.checkOwner()
	if d.current == nil {
		return &Scope{d: d, inert: true}
	}
	s := newScope(d, d.current, name, d.current.cfg, false)
	s.context = context
	d.current = s
	return s
}

// Sandbox opens a scope disjoint from the current one that uses cfg instead of the options of the context. A
// failure escaping the sandbox is intercepted: it is logged and, with DumpOnError, the context objects are dumped,
// then the failure is propagated unchanged. Bailouts are only intercepted with InterceptBailout.
//
// A nil cfg disables scopes and metrics until the sandbox is closed.
func (d *DebugContext) Sandbox(name string, cfg *config.DebugOptions, context ...any) *Scope {
	d.checkOwner()
	if cfg == nil {
		s := &Scope{
			d:                   d,
			disabled:            true,
			savedCurrent:        d.current,
			savedMetricsEnabled: d.metricsEnabled,
		}
		d.current = nil
		d.metricsEnabled = false
		return s
	}
	s := newScope(d, d.current, name, cfg, true)
	s.context = context
	d.current = s
	return s
}

// DisableIntercept turns off failure interception in the current scope and the scopes opened inside it. The
// returned function restores the previous state.
func (d *DebugContext) DisableIntercept() (restore func()) {
	d.checkOwner()
	s := d.current
	if s == nil {
		return func() {}
	}
	saved := s.intercept
	s.intercept = false
	return func() { s.intercept = saved }
}

// Close pops the scope. It must be deferred directly so that it can observe a panic unwinding through the scope;
// errp may point to the error returned by the enclosing function. A sandbox intercepts the failure before it is
// propagated. Panics are re-raised after the scope is popped.
func (s *Scope) Close(errp *error) {
	r := recover()
	s.pop()
	var failure error
	switch {
	case r != nil:
		failure = common.AsError(r)
	case errp != nil:
		failure = *errp
	}
	if failure != nil && s.sandbox && s.intercept {
		s.d.interceptFailure(s, failure)
	}
	if r != nil {
		panic(r)
	}
}

func (s *Scope) pop() {
	if s.closed {
		return
	}
	d := s.d
	d.checkOwner()
	switch {
	case s.inert:
	case s.disabled:
		d.current = s.savedCurrent
		d.metricsEnabled = s.savedMetricsEnabled
	default:
		common.Assertf(d.current == s, "scope %q closed out of order, current scope is %q", s.qualifiedName,
			d.CurrentScopeName())
		d.current = s.parent
	}
	s.closed = true
}

func (d *DebugContext) interceptFailure(s *Scope, failure error) {
	if common.IsBailout(failure) && !s.cfg.InterceptBailout {
		return
	}
	fmt.Fprintf(d.out, "Exception raised in scope %s: %s\n", s.qualifiedName, failure)
	if s.cfg.DumpOnError {
		for _, obj := range s.context {
			d.forceDump(obj, "Exception: %v", failure)
		}
	}
}
