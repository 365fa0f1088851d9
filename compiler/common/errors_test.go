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

package common

import (
	"fmt"
	"strings"
	"testing"
)

func TestIsBailoutWrapped(t *testing.T) {
	err := fmt.Errorf("osr: %w", Bailoutf("no entry marker in %s", "f"))
	if !IsBailout(err) {
		t.Fatalf("wrapped bailout should be recognized: %v", err)
	}
	if IsBailout(fmt.Errorf("other")) {
		t.Errorf("plain error should not be a bailout")
	}
	if !strings.HasPrefix(PermanentBailoutf("x").Error(), "permanent") {
		t.Errorf("permanent bailout message should say so")
	}
}

func TestCatchAssertion(t *testing.T) {
	a := CatchAssertion(func() { Assertf(1 == 2, "one is not %d", 2) })
	if a == nil || a.Message != "one is not 2" {
		t.Fatalf("expected assertion failure, got %v", a)
	}
	if CatchAssertion(func() { Assertf(true, "never") }) != nil {
		t.Errorf("no assertion expected")
	}
}

func TestCatchAssertionPropagatesOtherPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("expected the original panic value, got %v", r)
		}
	}()
	CatchAssertion(func() { panic("boom") })
	t.Errorf("unreachable")
}
