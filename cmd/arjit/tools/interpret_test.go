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

package tools

import (
	"strings"
	"testing"
)

func validateHint(t *testing.T, errorMsg string, containedHint string) {
	hint := HintForErrorMessage(errorMsg)
	if !strings.Contains(hint, containedHint) {
		t.Fatalf("incorrect hint %q; check and update error message if necessary", hint)
	}
}

func TestHintForBadYaml(t *testing.T) {
	errorMsg := "error: failed to load config file arjit.yaml: could not unmarshal config file: yaml: line 3: " +
		"mapping values are not allowed in this context"
	validateHint(t, errorMsg, "not valid yaml")
}

func TestHintForMissingConfig(t *testing.T) {
	errorMsg := "error: failed to load config file missing.yaml: open missing.yaml: no such file or directory"
	validateHint(t, errorMsg, "-config flag")
}

func TestHintForAssertion(t *testing.T) {
	errorMsg := "1 stubs failed: new_instance: assertion failed: Stub<new_instance> should not have assumptions"
	validateHint(t, errorMsg, "internal compiler error")
}

func TestHintForCodeCache(t *testing.T) {
	validateHint(t, "code cache full: 2.1KiB installed, limit is 2KiB", "-code-cache")
	if h := HintForErrorMessage("something else"); h != "" {
		t.Errorf("unexpected hint %q", h)
	}
}
