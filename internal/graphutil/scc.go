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

package graphutil

// StronglyConnectedComponents returns the strongly connected components of the graph reachable from nodes, with
// Tarjan's algorithm. The components are in reverse topological order: the components a component has edges to come
// before it. The order within a component is arbitrary; the result only depends on the order of nodes and of the
// successors.
func StronglyConnectedComponents[T comparable](nodes []T, successors func(T) []T) [][]T {
	s := &tarjan[T]{
		successors: successors,
		index:      map[T]int{},
		lowlink:    map[T]int{},
		onStack:    map[T]bool{},
	}
	for _, v := range nodes {
		if _, seen := s.index[v]; !seen {
			s.visit(v)
		}
	}
	return s.sccs
}

type tarjan[T comparable] struct {
	successors func(T) []T
	index      map[T]int
	lowlink    map[T]int
	onStack    map[T]bool
	stack      []T
	sccs       [][]T
}

// frame is a node being visited, with the position of the next successor to visit
type frame[T any] struct {
	v     T
	succs []T
	next  int
}

func (s *tarjan[T]) push(v T) {
	s.index[v] = len(s.index)
	s.lowlink[v] = s.index[v]
	s.stack = append(s.stack, v)
	s.onStack[v] = true
}

func (s *tarjan[T]) visit(root T) {
	s.push(root)
	frames := []frame[T]{{v: root, succs: s.successors(root)}}
	for len(frames) > 0 {
		f := &frames[len(frames)-1]
		if f.next < len(f.succs) {
			w := f.succs[f.next]
			f.next++
			if _, seen := s.index[w]; !seen {
				s.push(w)
				frames = append(frames, frame[T]{v: w, succs: s.successors(w)})
			} else if s.onStack[w] {
				s.lowlink[f.v] = min(s.lowlink[f.v], s.index[w])
			}
			continue
		}
		v := f.v
		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := frames[len(frames)-1].v
			s.lowlink[parent] = min(s.lowlink[parent], s.lowlink[v])
		}
		if s.lowlink[v] == s.index[v] {
			s.popComponent(v)
		}
	}
}

// popComponent pops the nodes of the component rooted at v
func (s *tarjan[T]) popComponent(v T) {
	var scc []T
	for {
		w := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.onStack[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	s.sccs = append(s.sccs, scc)
}
