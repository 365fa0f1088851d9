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

package linkages

import (
	"bytes"
	"strings"
	"testing"

	"github.com/awslabs/ar-go-jit/cmd/arjit/tools"
)

func TestDefaultLinkages(t *testing.T) {
	flags, err := tools.NewCommonFlags("linkages", []string{}, Usage)
	if err != nil {
		t.Fatalf("could not parse flags: %v", err)
	}
	var out bytes.Buffer
	if err := Run(flags, true, &out); err != nil {
		t.Fatalf("linkages failed: %v", err)
	}
	s := out.String()
	for _, name := range []string{"deoptimization_handler", "uncommon_trap", "write_barrier_pre", "write_barrier_post",
		"destroyed registers"} {
		if !strings.Contains(s, name) {
			t.Errorf("output should mention %s:\n%s", name, s)
		}
	}
	if !strings.Contains(s, "0x1000") {
		t.Errorf("the address of uncommon_trap should be printed:\n%s", s)
	}
}

func TestMissingConfig(t *testing.T) {
	flags, err := tools.NewCommonFlags("linkages", []string{"-config", "does-not-exist.yaml"}, Usage)
	if err != nil {
		t.Fatalf("could not parse flags: %v", err)
	}
	err = Run(flags, false, nil)
	if err == nil || !strings.Contains(tools.HintForErrorMessage(err.Error()), "-config") {
		t.Errorf("a missing config should fail with a hint, got %v", err)
	}
}
