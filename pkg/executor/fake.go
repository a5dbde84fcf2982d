/*
Copyright 2023 The Credentials Fetcher Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package executor

import (
	"context"
	"io"
	"strings"
)

// FakeCall maps a command-line substring to a canned result.
type FakeCall struct {
	Match  string
	Result Result
}

// Fake is a scripted Executor for tests. The command line joined with its
// env entries is matched against the script by substring, first match wins;
// unscripted commands fail with exit status 127 so tests notice unexpected
// invocations. Every call is recorded together with the bytes read from its
// stdin.
type Fake struct {
	Script []FakeCall

	Calls  []Command
	Stdins [][]byte
}

func (f *Fake) Run(_ context.Context, cmd Command) Result {
	var stdin []byte
	if cmd.Stdin != nil {
		stdin, _ = io.ReadAll(cmd.Stdin)
	}
	f.Calls = append(f.Calls, cmd)
	f.Stdins = append(f.Stdins, stdin)
	matched := cmd.Line + " " + strings.Join(cmd.Env, " ")
	for _, c := range f.Script {
		if strings.Contains(matched, c.Match) {
			return c.Result
		}
	}
	return Result{Code: 127, Output: "fake executor: no script entry for: " + cmd.Line}
}

// CommandLines returns the recorded command lines in invocation order.
func (f *Fake) CommandLines() []string {
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.Line)
	}
	return lines
}
