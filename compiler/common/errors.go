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

// Package common contains the error taxonomy shared by the compiler packages.
//
// Two kinds of failures exist. A bailout (*BailoutError) is returned as an error when the input is valid but not
// supported by a transformation; the caller may recover, for example by compiling without on-stack replacement.
// An assertion failure (*AssertionError) signals a compiler bug; it is raised with panic and is never recovered
// inside the compiler.
package common

import (
	"errors"
	"fmt"
)

// BailoutError is returned when a compilation cannot proceed on an otherwise valid input.
type BailoutError struct {
	Reason string
	// Permanent is true when retrying the same compilation cannot succeed.
	Permanent bool
}

func (e *BailoutError) Error() string {
	if e.Permanent {
		return "permanent bailout: " + e.Reason
	}
	return "bailout: " + e.Reason
}

// Bailoutf returns a non-permanent bailout with a formatted reason.
func Bailoutf(format string, args ...any) *BailoutError {
	return &BailoutError{Reason: fmt.Sprintf(format, args...)}
}

// PermanentBailoutf returns a permanent bailout with a formatted reason.
func PermanentBailoutf(format string, args ...any) *BailoutError {
	return &BailoutError{Reason: fmt.Sprintf(format, args...), Permanent: true}
}

// IsBailout returns true if err is or wraps a *BailoutError
func IsBailout(err error) bool {
	var b *BailoutError
	return errors.As(err, &b)
}

// AssertionError is the panic value for a broken compiler invariant.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion failed: " + e.Message
}

// Fail panics with an assertion error carrying the formatted message.
func Fail(format string, args ...any) {
	panic(&AssertionError{Message: fmt.Sprintf(format, args...)})
}

// Assertf panics with an assertion error when cond is false.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		Fail(format, args...)
	}
}

// AsError converts a recovered panic value into an error. Errors are returned unchanged, other values are
// formatted.
func AsError(r any) error {
	switch x := r.(type) {
	case nil:
		return nil
	case error:
		return x
	default:
		return fmt.Errorf("%v", x)
	}
}

// CatchAssertion runs f and returns the assertion error it panicked with, if any. Other panics are propagated.
func CatchAssertion(f func()) (failure *AssertionError) {
	defer func() {
		if r := recover(); r != nil {
			if a, ok := r.(*AssertionError); ok {
				failure = a
				return
			}
			panic(r)
		}
	}()
	f()
	return nil
}
