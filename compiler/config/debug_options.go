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

// DebugOptions configures the debug scopes of a compilation.
//
// Dump, Log, Verify, Count and Time are scope filters: a comma separated list of patterns, each optionally followed
// by ":level". A pattern matches a qualified scope name, and "*" matches any sequence of characters. An empty filter
// disables the facility; a filter with an empty pattern (e.g. ":2") matches every scope.
type DebugOptions struct {
	// Dump enables dumping graphs in matching scopes
	Dump string `yaml:"dump"`

	// Log enables log output in matching scopes
	Log string `yaml:"log"`

	// Verify enables the verify handlers in matching scopes
	Verify string `yaml:"verify"`

	// Count enables all counters in matching scopes
	Count string `yaml:"count"`

	// Counters lists counters enabled irrespective of Count
	Counters []string `yaml:"counters"`

	// Time enables all timers in matching scopes
	Time string `yaml:"time"`

	// Timers lists timers enabled irrespective of Time
	Timers []string `yaml:"timers"`

	// DumpOnError dumps the scope context when a sandbox intercepts a failure
	DumpOnError bool `yaml:"dump-on-error"`

	// InterceptBailout makes sandboxes intercept bailouts as well
	InterceptBailout bool `yaml:"intercept-bailout"`

	// DumpPath is the directory where dump handlers write their files
	DumpPath string `yaml:"dump-path"`

	// PrintMetrics prints the metric values when a debug context is closed
	PrintMetrics bool `yaml:"print-metrics"`
}

// NewDebugOptions returns debug options with every facility disabled
func NewDebugOptions() DebugOptions {
	return DebugOptions{}
}

// ScopesEnabled returns true if any option requires tracking debug scopes
func (o DebugOptions) ScopesEnabled() bool {
	return o.DumpOnError || o.Dump != "" || o.Log != "" || o.Verify != "" || o.Count != "" || o.Time != "" ||
		len(o.Counters) > 0 || len(o.Timers) > 0
}
