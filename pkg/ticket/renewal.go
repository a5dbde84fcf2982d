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

package ticket

import (
	"context"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
)

const (
	// renewUntilMarker precedes the renewal deadline in klist output.
	renewUntilMarker = "renew until"

	// renewTimeLayout matches klist's default date/time rendering.
	renewTimeLayout = "01/02/2006 15:04:05"

	// renewalThreshold: renew the ticket one hour before the deadline.
	renewalThreshold = time.Hour
)

// Renewer evaluates and performs ticket renewal against existing caches.
type Renewer struct {
	exec executor.Executor

	// Trust verifies the trust tooling before it is invoked. Replaceable in
	// tests; defaults to executor.CheckTrusted.
	Trust func(names ...string) error
}

func NewRenewer(exec executor.Executor) *Renewer {
	return &Renewer{exec: exec, Trust: executor.CheckTrusted}
}

// NeedsRenewal reports whether the ticket in krbCcName is within one hour of
// its renewal deadline. When klist fails or its output carries no usable
// deadline this reports false; the caller decides whether an absent cache
// means a full reissue.
func (r *Renewer) NeedsRenewal(ctx context.Context, krbCcName string) bool {
	res := r.exec.Run(ctx, executor.Command{
		Line: "klist",
		Env:  []string{"KRB5CCNAME=" + krbCcName},
	})
	if res.Code != 0 {
		return false
	}
	deadline, ok := parseRenewUntil(res.Output)
	if !ok {
		return false
	}
	return time.Until(deadline) <= renewalThreshold
}

// RenewTicket reinitializes the ticket from its existing renewable
// credential without re-deriving the password. Fire and forget: the caller
// re-checks renewal state on its next pass, no retry loop lives here.
func (r *Renewer) RenewTicket(ctx context.Context, principal, krbCcName string) {
	if err := r.Trust("kinit"); err != nil {
		klog.Errorf("renewal of %s aborted: %v", krbCcName, err)
		return
	}
	cmd := executor.Command{Line: "kinit -R '" + principal + "'"}
	if krbCcName != "" {
		cmd.Env = []string{"KRB5CCNAME=" + krbCcName}
	}
	res := r.exec.Run(ctx, cmd)
	if res.Code != 0 {
		klog.Errorf("kinit -R for %s exited %d", krbCcName, res.Code)
	}
}

// parseRenewUntil extracts the renewal deadline from klist output. Only the
// first occurrence of the marker is considered. Pure text processing.
func parseRenewUntil(output string) (time.Time, bool) {
	for _, record := range strings.Split(output, "#") {
		idx := strings.Index(record, renewUntilMarker)
		if idx < 0 {
			continue
		}
		fields := strings.Fields(record[idx+len(renewUntilMarker):])
		if len(fields) < 2 {
			return time.Time{}, false
		}
		stamp := fields[0] + " " + fields[1]
		t, err := time.ParseInLocation(renewTimeLayout, stamp, time.Local)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
