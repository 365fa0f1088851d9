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
	"bytes"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

type filterTerm struct {
	pattern *regexp.Regexp // nil matches every scope
	level   int
}

var (
	filterCacheMu sync.Mutex
	filterCache   = map[string][]filterTerm{}
)

// parseFilter parses a comma separated list of pattern[:level] terms. The level defaults to BasicLevel. In a
// pattern, '*' matches any sequence of characters.
func parseFilter(spec string) []filterTerm {
	filterCacheMu.Lock()
	defer filterCacheMu.Unlock()
	if terms, ok := filterCache[spec]; ok {
		return terms
	}
	var terms []filterTerm
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		term := filterTerm{level: BasicLevel}
		pattern := part
		if i := strings.LastIndexByte(part, ':'); i >= 0 {
			if l, err := strconv.Atoi(part[i+1:]); err == nil {
				term.level = l
				pattern = part[:i]
			}
		}
		if pattern != "" && pattern != "*" {
			quoted := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
			term.pattern = regexp.MustCompile("^" + quoted + "$")
		}
		terms = append(terms, term)
	}
	filterCache[spec] = terms
	return terms
}

// levelFor returns the highest level of the terms of spec matching the scope name or one of its components. An
// empty spec disables the facility (level -1).
func levelFor(spec string, qualifiedName string) int {
	level := -1
	if spec == "" {
		return level
	}
	components := strings.Split(qualifiedName, ".")
	for _, t := range parseFilter(spec) {
		if t.level <= level {
			continue
		}
		if t.pattern == nil || t.pattern.MatchString(qualifiedName) {
			level = t.level
			continue
		}
		for _, c := range components {
			if t.pattern.MatchString(c) {
				level = t.level
				break
			}
		}
	}
	return level
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the id of the calling goroutine from its stack header
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic("cannot parse goroutine id: " + err.Error())
	}
	return id
}
