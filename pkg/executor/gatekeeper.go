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
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ErrUntrustedTool reports an executable that failed ownership or permission
// verification. The caller must abort without running the tool.
var ErrUntrustedTool = errors.New("untrusted executable")

// IsTrusted reports whether path is owned by root:root and carries no write
// permission for other users. Trust tooling failing this check is never
// executed.
func IsTrusted(path string) bool {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false
	}
	if st.Uid != 0 || st.Gid != 0 {
		return false
	}
	if st.Mode&unix.S_IWOTH != 0 {
		return false
	}
	return true
}

// CheckTrusted resolves each named tool on PATH and verifies it with
// IsTrusted, returning ErrUntrustedTool naming the first offender.
func CheckTrusted(names ...string) error {
	for _, name := range names {
		path, err := exec.LookPath(name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUntrustedTool, name, err)
		}
		if !IsTrusted(path) {
			return fmt.Errorf("%w: %s", ErrUntrustedTool, path)
		}
	}
	return nil
}
