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

// Package stamp implements the abstract value domain of graph nodes.
//
// A Stamp describes the values a node can produce: integer stamps carry a signed range [lower, upper] at a given
// width (32 or 64 bits, values always stored sign-extended in an int64), object stamps carry a nominal type and
// nullness. Join narrows and Meet widens. An empty stamp describes a value that cannot exist at runtime.
package stamp

import (
	"fmt"

	"github.com/awslabs/ar-go-jit/compiler/common"
)

// Kind is the kind of value described by a stamp
type Kind uint8

const (
	Illegal Kind = iota
	Void
	Int
	Long
	Object
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Int:
		return "int"
	case Long:
		return "long"
	case Object:
		return "object"
	default:
		return "illegal"
	}
}

// Bits returns the width of an integer kind, and 0 for other kinds
func (k Kind) Bits() int {
	switch k {
	case Int:
		return 32
	case Long:
		return 64
	default:
		return 0
	}
}

// IsInteger returns true for Int and Long
func (k Kind) IsInteger() bool {
	return k == Int || k == Long
}

// KindFromName parses the kind names used in configuration files. The empty name is void.
func KindFromName(name string) (Kind, bool) {
	switch name {
	case "", "void":
		return Void, true
	case "int":
		return Int, true
	case "long":
		return Long, true
	case "object":
		return Object, true
	}
	return Illegal, false
}

// Stamp is a value: it can be compared with == and used in map keys.
type Stamp struct {
	kind  Kind
	empty bool

	// integer stamps
	lower int64
	upper int64

	// object stamps
	typeName   string
	nonNull    bool
	alwaysNull bool
	exact      bool
}

// ForVoid returns the stamp of nodes that produce no value
func ForVoid() Stamp {
	return Stamp{kind: Void}
}

// ForKind returns the unrestricted stamp of kind k
func ForKind(k Kind) Stamp {
	switch k {
	case Int, Long:
		return Stamp{kind: k, lower: MinValue(k.Bits()), upper: MaxValue(k.Bits())}
	case Object:
		return Stamp{kind: Object}
	case Void:
		return ForVoid()
	default:
		return Stamp{kind: Illegal}
	}
}

// ForInteger returns the stamp of an integer kind with range [lower, upper]. An inverted range yields the empty stamp.
func ForInteger(k Kind, lower, upper int64) Stamp {
	common.Assertf(k.IsInteger(), "integer stamp of kind %s", k)
	bits := k.Bits()
	common.Assertf(lower >= MinValue(bits) && upper <= MaxValue(bits),
		"bounds [%d, %d] out of range for %d bits", lower, upper, bits)
	if lower > upper {
		return Empty(k)
	}
	return Stamp{kind: k, lower: lower, upper: upper}
}

// ForConstant returns the stamp of the integer constant v, wrapped to the width of k
func ForConstant(k Kind, v int64) Stamp {
	v = Wrap(v, k.Bits())
	return ForInteger(k, v, v)
}

// Empty returns the empty stamp of kind k
func Empty(k Kind) Stamp {
	s := ForKind(k)
	s.empty = true
	if k.IsInteger() {
		s.lower = MaxValue(k.Bits())
		s.upper = MinValue(k.Bits())
	}
	return s
}

// ForObject returns an object stamp of the nominal type typeName. The empty name stands for any type.
func ForObject(typeName string, nonNull bool) Stamp {
	return Stamp{kind: Object, typeName: typeName, nonNull: nonNull}
}

// ForExactObject returns an object stamp whose runtime type is exactly typeName
func ForExactObject(typeName string, nonNull bool) Stamp {
	return Stamp{kind: Object, typeName: typeName, nonNull: nonNull, exact: true}
}

// ForNull returns the stamp of the null constant
func ForNull() Stamp {
	return Stamp{kind: Object, alwaysNull: true}
}

func (s Stamp) Kind() Kind { return s.kind }
func (s Stamp) IsEmpty() bool { return s.empty }
func (s Stamp) Lower() int64 { return s.lower }
func (s Stamp) Upper() int64 { return s.upper }
func (s Stamp) TypeName() string { return s.typeName }
func (s Stamp) NonNull() bool { return s.nonNull }
func (s Stamp) AlwaysNull() bool { return s.alwaysNull }
func (s Stamp) ExactType() bool { return s.exact }
func (s Stamp) IsObject() bool { return s.kind == Object }
func (s Stamp) IsInteger() bool { return s.kind.IsInteger() }
func (s Stamp) Bits() int { return s.kind.Bits() }
func (s Stamp) Unrestricted() Stamp { return ForKind(s.kind) }

// IsUnrestricted returns true if the stamp allows every value of its kind
func (s Stamp) IsUnrestricted() bool {
	return s == ForKind(s.kind)
}

// IsConstant returns true for single-value integer stamps and for the null stamp
func (s Stamp) IsConstant() bool {
	if s.empty {
		return false
	}
	if s.kind.IsInteger() {
		return s.lower == s.upper
	}
	return s.kind == Object && s.alwaysNull
}

// AsConstant returns the value of a constant integer stamp
func (s Stamp) AsConstant() (int64, bool) {
	if s.kind.IsInteger() && !s.empty && s.lower == s.upper {
		return s.lower, true
	}
	return 0, false
}

// Contains returns true if v is in the range of an integer stamp
func (s Stamp) Contains(v int64) bool {
	return s.kind.IsInteger() && !s.empty && s.lower <= v && v <= s.upper
}

// IsPositive returns true if every value of the integer stamp is >= 0
func (s Stamp) IsPositive() bool {
	return s.kind.IsInteger() && s.lower >= 0
}

func (s Stamp) checkCompatible(other Stamp) {
	common.Assertf(s.kind == other.kind, "incompatible stamps %s and %s", s, other)
}

// Join returns the stamp of values described by both s and other. The result is never wider than either input.
func (s Stamp) Join(other Stamp) Stamp {
	s.checkCompatible(other)
	if s.empty {
		return s
	}
	if other.empty {
		return other
	}
	switch s.kind {
	case Int, Long:
		return ForInteger(s.kind, max64(s.lower, other.lower), min64(s.upper, other.upper))
	case Object:
		r := Stamp{
			kind:       Object,
			nonNull:    s.nonNull || other.nonNull,
			alwaysNull: s.alwaysNull || other.alwaysNull,
			exact:      s.exact || other.exact,
		}
		switch {
		case s.typeName == "":
			r.typeName = other.typeName
		case other.typeName == "" || other.typeName == s.typeName:
			r.typeName = s.typeName
		default:
			// types are compared nominally, two distinct types have no common value except null
			if r.nonNull {
				return Empty(Object)
			}
			return ForNull()
		}
		if r.nonNull && r.alwaysNull {
			return Empty(Object)
		}
		if r.alwaysNull {
			return ForNull()
		}
		return r
	default:
		return s
	}
}

// Meet returns the stamp of values described by s or other.
func (s Stamp) Meet(other Stamp) Stamp {
	s.checkCompatible(other)
	if s.empty {
		return other
	}
	if other.empty {
		return s
	}
	switch s.kind {
	case Int, Long:
		return ForInteger(s.kind, min64(s.lower, other.lower), max64(s.upper, other.upper))
	case Object:
		if s.alwaysNull {
			other.nonNull = false
			return other
		}
		if other.alwaysNull {
			s.nonNull = false
			return s
		}
		r := Stamp{kind: Object, nonNull: s.nonNull && other.nonNull}
		if s.typeName == other.typeName {
			r.typeName = s.typeName
			r.exact = s.exact && other.exact
		}
		return r
	default:
		return s
	}
}

func (s Stamp) String() string {
	switch s.kind {
	case Int, Long:
		prefix := fmt.Sprintf("i%d", s.Bits())
		if s.empty {
			return prefix + " <empty>"
		}
		if s.lower == s.upper {
			return fmt.Sprintf("%s [%d]", prefix, s.lower)
		}
		return fmt.Sprintf("%s [%d - %d]", prefix, s.lower, s.upper)
	case Object:
		if s.empty {
			return "a <empty>"
		}
		if s.alwaysNull {
			return "a null"
		}
		mark := "-"
		if s.nonNull {
			mark = "!"
		}
		if s.exact {
			mark += "#"
		}
		name := s.typeName
		if name == "" {
			name = "*"
		}
		return "a" + mark + " " + name
	default:
		return s.kind.String()
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
