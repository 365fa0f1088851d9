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

import "regexp"

// Captures errors happening when the config file cannot be read or parsed
var regexConfigLoad = regexp.MustCompile("failed to load config file")

// Captures the yaml errors of a malformed config file
var regexYaml = regexp.MustCompile("yaml: (unmarshal errors|line \\d+)")

// Captures the stubs that could not be compiled because of an internal error
var regexAssertion = regexp.MustCompile("assertion failed: ")

// Captures the code cache limit errors
var regexCodeCache = regexp.MustCompile("code cache (is )?full")

// HintForErrorMessage looks for specific error message and returns some other message that might help the user
// resolve the problem.
func HintForErrorMessage(errMsg string) string {
	if regexConfigLoad.MatchString(errMsg) {
		if regexYaml.MatchString(errMsg) {
			return "the config file is not valid yaml; check the indentation of the foreign-calls entries"
		}
		return "make sure the -config flag points to a readable config file"
	}
	if regexAssertion.MatchString(errMsg) {
		return "this is an internal compiler error; rerun with -dump-on-error to dump the graphs of the failing stub"
	}
	if regexCodeCache.MatchString(errMsg) {
		return "raise the limit with -code-cache (e.g. -code-cache=1MiB)"
	}
	return ""
}
