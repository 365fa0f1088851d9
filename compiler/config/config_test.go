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
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

//go:embed testdata
var testfsys embed.FS

func loadFromTestDir(filename string) (string, *Config, error) {
	filename = filepath.Join("testdata", filename)
	b, err := testfsys.ReadFile(filename)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file %v: %v", filename, err)
	}
	config, err := Load(filename, b)
	if err != nil {
		return filename, nil, fmt.Errorf("failed to load file %v: %v", filename, err)
	}
	return filename, config, err
}

func TestNewDefault(t *testing.T) {
	c := NewDefault()
	if c.Collector != CollectorGenerational {
		t.Errorf("Default collector should be generational")
	}
	if !c.VerifyBarriers {
		t.Errorf("Default should verify barriers")
	}
	if c.Debug.ScopesEnabled() {
		t.Errorf("Default debug options should not enable scopes")
	}
	if !c.MatchStubFilter("anything") {
		t.Errorf("Empty stub filter should match any name")
	}
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	c, err := LoadFile(filepath.Join("testdata", "does-not-exist.yaml"))
	if c != nil || err == nil {
		t.Errorf("Expected error and nil value when trying to load non existent file.")
	}
}

func TestLoadBadFormatFileReturnsError(t *testing.T) {
	name, config, err := loadFromTestDir("bad_format.yaml")
	if config != nil || err == nil {
		t.Errorf("Expected error and nil value when trying to load badly formatted %s.", name)
	}
}

func TestLoadBadValuesReturnsError(t *testing.T) {
	for _, name := range []string{"bad_collector.yaml", "bad_kind.yaml"} {
		_, config, err := loadFromTestDir(name)
		if config != nil || err == nil {
			t.Errorf("Expected error when loading %s", name)
		}
	}
}

func TestLoadMinimal(t *testing.T) {
	fileName, config, err := loadFromTestDir("minimal.yaml")
	if err != nil {
		t.Fatalf("Could not load %s: %v", fileName, err)
	}
	if config.VerifyBarriers {
		t.Errorf("verify-barriers should be overridden to false")
	}
	if config.LogLevel != int(InfoLevel) {
		t.Errorf("log level should default to info")
	}
	if config.CompileThreads != DefaultCompileThreads {
		t.Errorf("compile threads should default to %d", DefaultCompileThreads)
	}
	if len(config.Registers.Allocatable) == 0 {
		t.Errorf("default registers should be kept")
	}
}

//gocyclo:ignore
func TestLoadFullConfig(t *testing.T) {
	fileName, config, err := loadFromTestDir("full-config.yaml")
	if config == nil || err != nil {
		t.Fatalf("Could not load %s: %v", fileName, err)
	}
	if config.LogLevel != int(TraceLevel) {
		t.Error("full config should have set trace")
	}
	if config.IsGenerational() {
		t.Error("full config should select the simple collector")
	}
	if !config.VerifyGraphs {
		t.Error("full config should verify graphs")
	}
	if config.CompileThreads != 8 {
		t.Error("full config should set compile-threads to 8")
	}
	if !config.MatchStubFilter("new_instance") || config.MatchStubFilter("store_object") {
		t.Error("full config stub filter should only match new_ stubs")
	}
	if config.Debug.Dump != "CompilingStub*:2" || config.Debug.Time != ":1" {
		t.Errorf("unexpected debug options %+v", config.Debug)
	}
	if !config.Debug.DumpOnError || !config.Debug.ScopesEnabled() {
		t.Error("full config should enable dump on error")
	}
	if config.Debug.DumpPath != filepath.Join("testdata", "dumps") {
		t.Errorf("dump path should be relative to the config file, got %q", config.Debug.DumpPath)
	}
	if len(config.ForeignCalls) != 3 {
		t.Fatalf("full config should have three foreign calls, got %d", len(config.ForeignCalls))
	}
	fc := config.ForeignCalls[0]
	if fc.Name != "new_instance" || fc.Result != KindObject || fc.Transition != TransitionSafepoint ||
		fc.Stub != StubForeignCall || fc.Address != 4096 {
		t.Errorf("unexpected first foreign call %+v", fc)
	}
	if got := config.ForeignCalls[2].Killed; len(got) != 1 || got[0] != "mark-word" {
		t.Errorf("unexpected killed locations %v", got)
	}
	if config.Registers.Thread != "r9" || len(config.Registers.Allocatable) != 4 {
		t.Errorf("unexpected registers %+v", config.Registers)
	}
}

func TestLogGroupLevels(t *testing.T) {
	c := NewDefault()
	c.LogLevel = int(WarnLevel)
	l := NewLogGroup(c)
	var buf bytes.Buffer
	l.SetAllOutput(&buf)
	l.SetAllFlags(0)
	l.Infof("hidden %d", 1)
	l.Warnf("shown %d", 2)
	l.Errorf("shown %d", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 2") || !strings.Contains(out, "[ERROR] shown 3") {
		t.Errorf("missing messages in %q", out)
	}

	buf.Reset()
	l.With("new_instance").Warnf("bailout")
	if out := buf.String(); out != "[WARN] new_instance: bailout\n" {
		t.Errorf("unexpected prefixed message %q", out)
	}
}
