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
	"io"
	"os"
	"strings"

	"github.com/awslabs/ar-go-jit/compiler/common"
	"github.com/awslabs/ar-go-jit/compiler/config"
	"github.com/google/uuid"
	"github.com/jtolds/gls"
)

// Levels of the dump, log and verify facilities. A facility enabled at level l handles the requests of level <= l.
const (
	EnabledLevel  = 0
	BasicLevel    = 1
	InfoLevel     = 2
	VerboseLevel  = 3
	DetailedLevel = 4
)

// Description identifies the compilation a debug context belongs to
type Description struct {
	// Compilable is the name of the compiled unit (a stub or a graph name)
	Compilable string
	// ID is a unique identifier of the compilation
	ID string
}

func (d Description) String() string {
	return d.Compilable + ":" + d.ID
}

// NewDescription returns a description with a fresh compilation id
func NewDescription(compilable string) Description {
	return Description{Compilable: compilable, ID: uuid.NewString()}
}

// Builder collects the parameters of a DebugContext
type Builder struct {
	options     config.DebugOptions
	factories   []HandlersFactory
	out         io.Writer
	description Description
}

// NewBuilder returns a builder for contexts using the given options. Output defaults to os.Stderr.
func NewBuilder(options config.DebugOptions) *Builder {
	return &Builder{options: options, out: os.Stderr, description: NewDescription("")}
}

// Factories adds handler factories; every factory is asked for handlers when the context is built
func (b *Builder) Factories(f ...HandlersFactory) *Builder {
	b.factories = append(b.factories, f...)
	return b
}

// Output sets the writer receiving log lines and interception messages
func (b *Builder) Output(w io.Writer) *Builder {
	b.out = w
	return b
}

// Description sets the description of the compilation
func (b *Builder) Description(d Description) *Builder {
	b.description = d
	return b
}

// Build returns a new DebugContext owned by the calling goroutine
func (b *Builder) Build() *DebugContext {
	d := &DebugContext{
		owner:          goroutineID(),
		description:    b.description,
		options:        b.options,
		scopesEnabled:  b.options.ScopesEnabled(),
		out:            b.out,
		factories:      b.factories,
		metricsEnabled: true,
	}
	d.createHandlers(b.options)
	if d.scopesEnabled {
		d.current = newScope(d, nil, "", &d.options, false)
	}
	return d
}

// DebugContext holds the scopes, handlers and metric values of one compilation. A context is confined to the
// goroutine that built it: any use from another goroutine is an assertion failure.
type DebugContext struct {
	owner         uint64
	description   Description
	options       config.DebugOptions
	scopesEnabled bool
	out           io.Writer
	factories     []HandlersFactory

	dumpHandlers   []DumpHandler
	verifyHandlers []VerifyHandler

	// current is nil when scopes are disabled or inside a sandbox without config
	current        *Scope
	metricsEnabled bool
	metrics        []int64
	currentTimer   *TimerCloser
}

// Disabled returns a context with every facility disabled, owned by the calling goroutine
func Disabled() *DebugContext {
	return NewBuilder(config.NewDebugOptions()).Output(io.Discard).Build()
}

func (d *DebugContext) checkOwner() {
	if id := goroutineID(); id != d.owner {
		common.Fail("debug context %s created by goroutine %d used by goroutine %d", d.description, d.owner, id)
	}
}

func (d *DebugContext) createHandlers(opts config.DebugOptions) {
	for _, f := range d.factories {
		d.dumpHandlers = append(d.dumpHandlers, f.DumpHandlers(opts)...)
		d.verifyHandlers = append(d.verifyHandlers, f.VerifyHandlers(opts)...)
	}
}

// Description returns the description of the compilation
func (d *DebugContext) Description() Description { return d.description }

// Options returns the options the context was built with
func (d *DebugContext) Options() config.DebugOptions { return d.options }

// AreScopesEnabled returns true if the options require tracking debug scopes
func (d *DebugContext) AreScopesEnabled() bool { return d.scopesEnabled }

// CurrentScopeName returns the qualified name of the current scope, or "" outside of any scope
func (d *DebugContext) CurrentScopeName() string {
	d.checkOwner()
	if d.current == nil {
		return ""
	}
	return d.current.qualifiedName
}

// Context returns the context objects of the current scope and its enclosing scopes, innermost last
func (d *DebugContext) Context() []any {
	d.checkOwner()
	var chain [][]any
	for s := d.current; s != nil; s = s.parent {
		chain = append(chain, s.context)
		if s.sandbox {
			break
		}
	}
	var res []any
	for i := len(chain) - 1; i >= 0; i-- {
		res = append(res, chain[i]...)
	}
	return res
}

// IsLogEnabled returns true if log messages of the given level are printed in the current scope
func (d *DebugContext) IsLogEnabled(level int) bool {
	d.checkOwner()
	return d.current != nil && level <= d.current.logLevel
}

// IsDumpEnabled returns true if dumps of the given level are handled in the current scope
func (d *DebugContext) IsDumpEnabled(level int) bool {
	d.checkOwner()
	return d.current != nil && level <= d.current.dumpLevel
}

// IsVerifyEnabled returns true if the verify handlers run in the current scope
func (d *DebugContext) IsVerifyEnabled() bool {
	d.checkOwner()
	return d.current != nil && d.current.verifyLevel > 0
}

// Log prints a message to the output of the context if logging at level is enabled in the current scope
func (d *DebugContext) Log(level int, format string, args ...any) {
	if !d.IsLogEnabled(level) {
		return
	}
	indent := strings.Repeat("  ", d.current.depth)
	fmt.Fprintf(d.out, "[%s] %s%s\n", d.current.qualifiedName, indent, fmt.Sprintf(format, args...))
}

// Dump passes obj to the dump handlers if dumping at level is enabled in the current scope
func (d *DebugContext) Dump(level int, obj any, format string, args ...any) {
	if !d.IsDumpEnabled(level) {
		return
	}
	d.forceDump(obj, format, args...)
}

func (d *DebugContext) forceDump(obj any, format string, args ...any) {
	for _, h := range d.dumpHandlers {
		if err := h.Dump(d, obj, format, args...); err != nil {
			fmt.Fprintf(d.out, "dump handler failed: %v\n", err)
		}
	}
}

// Verify runs the verify handlers on obj if verification is enabled in the current scope. Handlers report a
// failed check with an assertion failure.
func (d *DebugContext) Verify(obj any, message string) {
	if !d.IsVerifyEnabled() {
		return
	}
	for _, h := range d.verifyHandlers {
		h.Verify(d, obj, message)
	}
}

// Close releases the handlers of the context and prints the metrics when the options ask for it
func (d *DebugContext) Close() error {
	d.checkOwner()
	var err error
	for _, h := range d.dumpHandlers {
		if cerr := h.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if d.options.PrintMetrics {
		d.PrintMetrics(d.out)
	}
	return err
}

var (
	activations = gls.NewContextManager()
	activeKey   = gls.GenSym()
)

// Activate runs f with d as the current context of the goroutine. Components that do not receive the context
// explicitly retrieve it with Current.
func (d *DebugContext) Activate(f func()) {
	d.checkOwner()
	activations.SetValues(gls.Values{activeKey: d}, f)
}

// Current returns the context activated on the calling goroutine, or nil
func Current() *DebugContext {
	v, ok := activations.GetValue(activeKey)
	if !ok {
		return nil
	}
	d, _ := v.(*DebugContext)
	return d
}
