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

// Package debug implements the debug context of a compilation: named scopes with per-scope dump, log and verify
// levels, sandboxes intercepting failures, and counters and timers.
//
// The facilities are configured by config.DebugOptions. Dump, Log, Verify, Count and Time are filters of the form
// pattern[:level],... matched against the qualified scope name and each of its components.
package debug
