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

package funcutil

import (
	"sync/atomic"
	"testing"
)

func TestMapParallelKeepsOrder(t *testing.T) {
	a := make([]int, 100)
	for i := range a {
		a[i] = i
	}
	var calls atomic.Int32
	b := MapParallel(a, func(x int) int {
		calls.Add(1)
		return x * x
	}, 8)
	if len(b) != len(a) || calls.Load() != 100 {
		t.Fatalf("expected 100 results and calls, got %d and %d", len(b), calls.Load())
	}
	for i, x := range b {
		if x != i*i {
			t.Fatalf("result %d should be %d, got %d", i, i*i, x)
		}
	}
	if r := MapParallel([]int{}, func(x int) int { return x }, 4); len(r) != 0 {
		t.Errorf("empty input should give an empty result")
	}
}

func TestSliceHelpers(t *testing.T) {
	a := []string{"rax", "rbx", "rcx"}
	if !Contains(a, "rbx") || Contains(a, "r15") {
		t.Errorf("Contains is wrong on %v", a)
	}
	f := Filter(a, func(s string) bool { return s != "rbx" })
	if len(f) != 2 || f[0] != "rax" || f[1] != "rcx" {
		t.Errorf("unexpected filter result %v", f)
	}
	Reverse(a)
	if a[0] != "rcx" || a[2] != "rax" {
		t.Errorf("unexpected reverse result %v", a)
	}
	if m := Map(a, func(s string) int { return len(s) }); len(m) != 3 || m[0] != 3 {
		t.Errorf("unexpected map result %v", m)
	}
}
