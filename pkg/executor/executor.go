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
	"errors"
	"io"
	"os"
	"os/exec"
)

// Result holds the combined output and exit status of one trust-tool
// invocation. Never persisted.
type Result struct {
	Code   int
	Output string
}

// Command describes one trust-tool invocation. Env entries such as
// KRB5CCNAME=<path> are scoped to the single invocation instead of being
// mutated process-wide, so operations on different ticket caches never read
// each other's cache path. Stdin, when set, is piped to the child process
// without appearing in the command line.
type Command struct {
	Line  string
	Env   []string
	Stdin io.Reader
}

// Executor runs trust tooling (hostname, realm, dig, ldapsearch, kinit,
// klist, kdestroy) and reports combined output plus exit status.
type Executor interface {
	Run(ctx context.Context, cmd Command) Result
}

// ShellExecutor runs commands through "sh -c".
type ShellExecutor struct{}

func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

func (e *ShellExecutor) Run(ctx context.Context, cmd Command) Result {
	c := exec.CommandContext(ctx, "sh", "-c", cmd.Line)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin
	out, err := c.CombinedOutput()
	res := Result{Output: string(out)}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Code = exitErr.ExitCode()
		} else {
			// pipe/start failure, no process ran
			res.Code = -1
		}
		return res
	}
	res.Code = c.ProcessState.ExitCode()
	return res
}
