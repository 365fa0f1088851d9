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

import "github.com/awslabs/ar-go-jit/internal/funcutil"

// Tree is a labelled rooted tree, e.g. a loop nest
type Tree[T any] struct {
	Parent   *Tree[T]
	Children []*Tree[T]
	Label    T
}

// NewTree returns a tree with a single root node
func NewTree[T any](rootLabel T) *Tree[T] {
	return &Tree[T]{Label: rootLabel}
}

// AddChild appends a new child labelled label to t and returns it
func (t *Tree[T]) AddChild(label T) *Tree[T] {
	child := &Tree[T]{Parent: t, Label: label}
	t.Children = append(t.Children, child)
	return child
}

// Depth returns the number of edges between t and the root
func (t *Tree[T]) Depth() int {
	d := 0
	for cur := t.Parent; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}

// Ancestors returns the chain of the n closest ancestors of t, t included, ordered from the farthest to t. If n < 0,
// the chain starts at the root.
func (t *Tree[T]) Ancestors(n int) []*Tree[T] {
	var chain []*Tree[T]
	for cur := t; cur != nil && (n < 0 || len(chain) < n); cur = cur.Parent {
		chain = append(chain, cur)
	}
	funcutil.Reverse(chain)
	return chain
}

// Walk calls f on every node of t in preorder. The children of a node are skipped when f returns false.
func (t *Tree[T]) Walk(f func(*Tree[T]) bool) {
	if !f(t) {
		return
	}
	for _, c := range t.Children {
		c.Walk(f)
	}
}
