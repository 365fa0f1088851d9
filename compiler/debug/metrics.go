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

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// metric keys are registered globally; each context stores its values in a slice indexed by the key index
var registry struct {
	sync.Mutex
	names  []string
	byName map[string]int
}

func registerKey(name string) int {
	registry.Lock()
	defer registry.Unlock()
	if registry.byName == nil {
		registry.byName = map[string]int{}
	}
	if i, ok := registry.byName[name]; ok {
		return i
	}
	i := len(registry.names)
	registry.names = append(registry.names, name)
	registry.byName[name] = i
	return i
}

func keyName(i int) string {
	registry.Lock()
	defer registry.Unlock()
	return registry.names[i]
}

func (d *DebugContext) add(index int, v int64) {
	if index >= len(d.metrics) {
		grown := make([]int64, index+1)
		copy(grown, d.metrics)
		d.metrics = grown
	}
	d.metrics[index] += v
}

func (d *DebugContext) value(index int) int64 {
	if index >= len(d.metrics) {
		return 0
	}
	return d.metrics[index]
}

// CounterKey names a counter. Counters are enabled by the Counters option, or in the scopes matched by the Count
// filter.
type CounterKey struct {
	name  string
	index int
}

// Counter returns the counter registered under name, registering it on first use
func Counter(name string) *CounterKey {
	return &CounterKey{name: name, index: registerKey(name)}
}

// Name returns the name of the counter
func (k *CounterKey) Name() string { return k.name }

// IsEnabled returns true if the counter records values in the current scope of d
func (k *CounterKey) IsEnabled(d *DebugContext) bool {
	d.checkOwner()
	if !d.metricsEnabled {
		return false
	}
	if slices.Contains(d.options.Counters, k.name) {
		return true
	}
	return d.current != nil && d.current.countLevel >= 0
}

// Add adds v to the counter if it is enabled
func (k *CounterKey) Add(d *DebugContext, v int64) {
	if k.IsEnabled(d) {
		d.add(k.index, v)
	}
}

// Increment adds one to the counter if it is enabled
func (k *CounterKey) Increment(d *DebugContext) { k.Add(d, 1) }

// Current returns the value of the counter in d
func (k *CounterKey) Current(d *DebugContext) int64 {
	d.checkOwner()
	return d.value(k.index)
}

// TimerKey names a timer. A timer records two values: the accumulated time spent between Start and Close (suffix
// .Accm), and the flat time, which excludes the time spent in nested timers with a different name (suffix .Flat).
type TimerKey struct {
	name string
	accm int
	flat int
}

// Timer returns the timer registered under name, registering it on first use
func Timer(name string) *TimerKey {
	return &TimerKey{name: name, accm: registerKey(name + ".Accm"), flat: registerKey(name + ".Flat")}
}

// Name returns the name of the timer
func (k *TimerKey) Name() string { return k.name }

// IsEnabled returns true if the timer records values in the current scope of d
func (k *TimerKey) IsEnabled(d *DebugContext) bool {
	d.checkOwner()
	if !d.metricsEnabled {
		return false
	}
	if slices.Contains(d.options.Timers, k.name) {
		return true
	}
	return d.current != nil && d.current.timeLevel >= 0
}

// Start starts the timer. The returned closer stops it; a disabled timer returns a closer that does nothing.
func (k *TimerKey) Start(d *DebugContext) *TimerCloser {
	if !k.IsEnabled(d) {
		return nil
	}
	t := &TimerCloser{key: k, d: d, start: time.Now(), parent: d.currentTimer}
	d.currentTimer = t
	return t
}

// Accumulated returns the accumulated time of the timer in d
func (k *TimerKey) Accumulated(d *DebugContext) time.Duration {
	d.checkOwner()
	return time.Duration(d.value(k.accm))
}

// Flat returns the flat time of the timer in d
func (k *TimerKey) Flat(d *DebugContext) time.Duration {
	d.checkOwner()
	return time.Duration(d.value(k.flat))
}

// TimerCloser is a running timer
type TimerCloser struct {
	key    *TimerKey
	d      *DebugContext
	start  time.Time
	parent *TimerCloser
	// nested is the time spent in nested timers of another key
	nested int64
}

// Close stops the timer and records its accumulated and flat time
func (t *TimerCloser) Close() {
	if t == nil {
		return
	}
	d := t.d
	d.checkOwner()
	span := time.Since(t.start).Nanoseconds()
	d.add(t.key.accm, span)
	d.add(t.key.flat, span-t.nested)
	d.currentTimer = t.parent
	if t.parent != nil && t.parent.key.name != t.key.name {
		t.parent.nested += span
	}
}

// PrintMetrics writes the non-zero metric values of d to w, sorted by name. Timer values are printed in
// milliseconds.
func (d *DebugContext) PrintMetrics(w io.Writer) {
	d.checkOwner()
	type entry struct {
		name  string
		value string
	}
	var entries []entry
	width := 0
	for i, v := range d.metrics {
		if v == 0 {
			continue
		}
		name := keyName(i)
		value := fmt.Sprintf("%d", v)
		if strings.HasSuffix(name, ".Accm") || strings.HasSuffix(name, ".Flat") {
			value = fmt.Sprintf("%d ms", time.Duration(v).Milliseconds())
		}
		entries = append(entries, entry{name, value})
		if len(name) > width {
			width = len(name)
		}
	}
	slices.SortFunc(entries, func(a, b entry) bool { return a.name < b.name })
	title := "Metrics for " + d.description.String()
	fmt.Fprintln(w, strings.Repeat("#", len(title)))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("~", len(title)))
	for _, e := range entries {
		fmt.Fprintf(w, "%-*s = %20s\n", width, e.name, e.value)
	}
	fmt.Fprintln(w)
}
