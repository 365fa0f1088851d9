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

package compile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-jit/cmd/arjit/tools"
)

const testConfig = `
collector: generational
verify-barriers: true
foreign-calls:
  - name: new_instance
    result: object
    args: [long]
    transition: safepoint
    address: 4096
    stub: foreign-call
  - name: store_object
    result: void
    args: [object, int, object]
    stub: array-store
`

func runStubs(t *testing.T, args ...string) (string, error) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arjit.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatalf("could not write config: %v", err)
	}
	flags, err := NewFlags(append([]string{"-config", path, "-no-progress"}, args...))
	if err != nil {
		t.Fatalf("could not parse flags: %v", err)
	}
	var out bytes.Buffer
	flags.Out = &out
	err = Run(flags)
	return out.String(), err
}

func TestCompileAllStubs(t *testing.T) {
	out, err := runStubs(t, "-listing")
	if err != nil {
		t.Fatalf("stubs should compile: %v", err)
	}
	for _, name := range []string{"deoptimization_handler", "new_instance", "store_object", "total code size"} {
		if !strings.Contains(out, name) {
			t.Errorf("report should mention %s:\n%s", name, out)
		}
	}
	if !strings.Contains(out, "entry new_instance") {
		t.Errorf("the listing of new_instance should be printed:\n%s", out)
	}
}

func TestCompileWithFilter(t *testing.T) {
	out, err := runStubs(t, "-filter", "store")
	if err != nil {
		t.Fatalf("stubs should compile: %v", err)
	}
	if !strings.Contains(out, "store_object") || strings.Contains(out, "new_instance") {
		t.Errorf("only store_object should be compiled:\n%s", out)
	}
}

func TestCodeCacheLimit(t *testing.T) {
	_, err := runStubs(t, "-code-cache", "16B")
	if err == nil || !strings.Contains(err.Error(), "code cache full") {
		t.Fatalf("the stubs should not fit in 16 bytes, got %v", err)
	}
	if tools.HintForErrorMessage(err.Error()) == "" {
		t.Errorf("a full code cache should come with a hint")
	}
	if _, err := runStubs(t, "-code-cache", "lots"); err == nil {
		t.Errorf("an invalid size should be rejected")
	}
	if _, err := runStubs(t, "-code-cache", "1MiB"); err != nil {
		t.Errorf("the stubs should fit in 1MiB: %v", err)
	}
}

func TestDumpPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := runStubs(t, "-filter", "store", "-dump-path", dir); err != nil {
		t.Fatalf("stubs should compile: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "store_object-*.dot"))
	if err != nil || len(files) == 0 {
		t.Errorf("expected dot files for store_object in %s, got %v (%v)", dir, files, err)
	}
}
