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

/*
Package config manages the configuration of the compiler.

Use [LoadFile](filename) to load a configuration from a specific filename, or [Load](filename, bytes) when the
content has already been read.

Use [SetGlobalConfig](filename) to set filename as the global config, and then [LoadGlobal]() to load the global config.

A config file is in yaml format. The top-level fields are the fields of [Options], plus the debug options, the
foreign calls and the register configuration. For example, a valid config file is as follows:

	log-level: 4
	collector: generational
	verify-barriers: true
	debug:
	  log: "CompilingStub*:2"
	  time: ":1"
	  dump-on-error: true
	foreign-calls:
	  - name: new_instance
	    result: object
	    args: [long]
	    transition: safepoint
	    effect: destroys-registers
	    stub: foreign-call

# Logging

[NewLogGroup] returns a [LogGroup] whose level is the log-level of the config. The debug scopes of a compilation have
their own log facility, configured by the debug options.
*/
package config
