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

import (
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return LoadFile(configFile)
}

// Config contains the options of the compiler, the debug options and the foreign calls for which stubs are compiled.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options `yaml:",inline"`

	sourceFile string

	// if the StubFilter is specified
	stubFilterRegex *regexp.Regexp

	// Debug holds the options of the debug scopes (dump, log, verify, metrics)
	Debug DebugOptions `yaml:"debug"`

	// ForeignCalls lists the runtime calls known to the compiler. Calls with a stub kind get a compiled stub.
	ForeignCalls []ForeignCallSpec `yaml:"foreign-calls"`

	// Registers describes the register configuration given to the backend
	Registers RegisterSpec `yaml:"registers"`
}

// Options are the top-level compiler options
type Options struct {
	// Collector selects the write barrier policy. Must be one of CollectorGenerational or CollectorSimple.
	Collector string `yaml:"collector"`

	// VerifyBarriers runs the write barrier verification phase after barrier addition
	VerifyBarriers bool `yaml:"verify-barriers"`

	// VerifyGraphs checks the structural invariants of the graph after every phase
	VerifyGraphs bool `yaml:"verify-graphs"`

	// CompileThreads is the number of goroutines compiling independent requests. Values <= 0 mean
	// DefaultCompileThreads.
	CompileThreads int `yaml:"compile-threads"`

	// StubFilter restricts the stubs compiled by the tools to those whose name matches. An empty filter matches
	// everything.
	StubFilter string `yaml:"stub-filter"`

	// Loglevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// Suppress warnings
	SilenceWarn bool `yaml:"silence-warn"`
}

// ForeignCallSpec describes a runtime call in the config file
type ForeignCallSpec struct {
	Name string `yaml:"name"`

	// Result is the kind of the returned value: void, int, long or object
	Result string `yaml:"result"`

	// Args are the kinds of the arguments
	Args []string `yaml:"args"`

	// Reexecutable is true when the call can be re-executed after a deoptimization
	Reexecutable bool `yaml:"reexecutable"`

	// Transition is one of TransitionLeaf, TransitionLeafNoFP or TransitionSafepoint
	Transition string `yaml:"transition"`

	// Effect is one of EffectDestroysRegisters or EffectPreservesRegisters
	Effect string `yaml:"effect"`

	// Killed lists the memory locations written by the call
	Killed []string `yaml:"killed-locations"`

	// Address is the entry point of the runtime target
	Address uint64 `yaml:"address"`

	// Stub is the kind of stub compiled for the call. Empty means the call is linked directly to the runtime.
	Stub string `yaml:"stub"`
}

// RegisterSpec lists register names used by the backend
type RegisterSpec struct {
	Allocatable []string `yaml:"allocatable"`
	CalleeSaved []string `yaml:"callee-saved"`
	Thread      string   `yaml:"thread"`
}

// NewDefault returns a default config.
func NewDefault() *Config {
	return &Config{
		sourceFile: "",
		Options: Options{
			Collector:      CollectorGenerational,
			VerifyBarriers: true,
			VerifyGraphs:   false,
			CompileThreads: DefaultCompileThreads,
			StubFilter:     "",
			LogLevel:       int(InfoLevel),
			SilenceWarn:    false,
		},
		Debug:        NewDebugOptions(),
		ForeignCalls: nil,
		Registers:    DefaultRegisters(),
	}
}

// DefaultRegisters returns the register configuration used when the config file does not specify one
func DefaultRegisters() RegisterSpec {
	return RegisterSpec{
		Allocatable: []string{"rax", "rcx", "rdx", "rbx", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14"},
		CalleeSaved: []string{"rbx", "r12", "r13", "r14"},
		Thread:      "r15",
	}
}

// LoadFile reads a configuration from a file
func LoadFile(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return Load(filename, b)
}

// Load parses the configuration in b. The filename is only used to resolve relative paths.
func Load(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}

	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if cfg.CompileThreads <= 0 {
		cfg.CompileThreads = DefaultCompileThreads
	}

	switch cfg.Collector {
	case "":
		cfg.Collector = CollectorGenerational
	case CollectorGenerational, CollectorSimple:
	default:
		return nil, fmt.Errorf("invalid collector %q, expected %q or %q", cfg.Collector, CollectorGenerational,
			CollectorSimple)
	}

	if cfg.StubFilter != "" {
		r, err := regexp.Compile(cfg.StubFilter)
		if err == nil {
			cfg.stubFilterRegex = r
		}
	}

	if cfg.Debug.DumpPath != "" && !path.IsAbs(cfg.Debug.DumpPath) {
		cfg.Debug.DumpPath = cfg.RelPath(cfg.Debug.DumpPath)
	}

	for i, fc := range cfg.ForeignCalls {
		if err := fc.validate(); err != nil {
			return nil, fmt.Errorf("foreign call %d: %w", i, err)
		}
	}

	return cfg, nil
}

func (fc ForeignCallSpec) validate() error {
	if fc.Name == "" {
		return fmt.Errorf("missing name")
	}
	for _, k := range append([]string{fc.Result}, fc.Args...) {
		if !isKindName(k) {
			return fmt.Errorf("%s: unknown kind %q", fc.Name, k)
		}
	}
	switch fc.Transition {
	case "", TransitionLeaf, TransitionLeafNoFP, TransitionSafepoint:
	default:
		return fmt.Errorf("%s: unknown transition %q", fc.Name, fc.Transition)
	}
	switch fc.Effect {
	case "", EffectDestroysRegisters, EffectPreservesRegisters:
	default:
		return fmt.Errorf("%s: unknown register effect %q", fc.Name, fc.Effect)
	}
	switch fc.Stub {
	case "", StubForeignCall, StubArrayStore:
	default:
		return fmt.Errorf("%s: unknown stub kind %q", fc.Name, fc.Stub)
	}
	return nil
}

func isKindName(s string) bool {
	switch s {
	case "", KindVoid, KindInt, KindLong, KindObject:
		return true
	}
	return false
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	return path.Join(path.Dir(c.sourceFile), filename)
}

// MatchStubFilter returns true if the stub name matches the stub filter set in the config file. If no filter has been
// set, any name matches. A filter that could not be compiled to a regex is used as a prefix.
func (c Config) MatchStubFilter(name string) bool {
	if c.stubFilterRegex != nil {
		return c.stubFilterRegex.MatchString(name)
	} else if c.StubFilter != "" {
		return strings.HasPrefix(name, c.StubFilter)
	} else {
		return true
	}
}

// Verbose returns true is the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}

// IsGenerational returns true when the configured collector needs pre and post barriers
func (c Config) IsGenerational() bool {
	return c.Collector == CollectorGenerational
}
