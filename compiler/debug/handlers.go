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

import "github.com/awslabs/ar-go-jit/compiler/config"

// DumpHandler receives the objects dumped in scopes where dumping is enabled. Handlers ignore objects they cannot
// render.
type DumpHandler interface {
	Dump(d *DebugContext, obj any, format string, args ...any) error
	Close() error
}

// VerifyHandler checks objects passed to DebugContext.Verify. A failed check is an assertion failure.
type VerifyHandler interface {
	Verify(d *DebugContext, obj any, message string)
}

// HandlersFactory creates the handlers of a new context
type HandlersFactory interface {
	DumpHandlers(opts config.DebugOptions) []DumpHandler
	VerifyHandlers(opts config.DebugOptions) []VerifyHandler
}

// Handlers is a factory returning fixed handlers
type Handlers struct {
	Dump   []DumpHandler
	Verify []VerifyHandler
}

func (h Handlers) DumpHandlers(config.DebugOptions) []DumpHandler { return h.Dump }

func (h Handlers) VerifyHandlers(config.DebugOptions) []VerifyHandler { return h.Verify }
