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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
)

func klistOutput(renewUntil time.Time) string {
	return fmt.Sprintf(`Ticket cache: FILE:/var/credentials_fetcher/krb_dir/abc123/ccname_webapp01
Default principal: webapp01$@CONTOSO.COM

Valid starting       Expires              Service principal
08/25/2026 09:00:00  08/25/2026 19:00:00  krbtgt/CONTOSO.COM@CONTOSO.COM
	renew until %s
`, renewUntil.Format(renewTimeLayout))
}

func TestParseRenewUntil(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   time.Time
		ok     bool
	}{
		{
			name:   "valid deadline",
			output: "\trenew until 08/25/2026 10:30:00\n",
			want:   time.Date(2026, 8, 25, 10, 30, 0, 0, time.Local),
			ok:     true,
		},
		{
			name:   "marker absent",
			output: "Ticket cache: FILE:/tmp/cc\n",
		},
		{
			name:   "non numeric tokens",
			output: "renew until not a date\n",
		},
		{
			name:   "too few tokens",
			output: "renew until 08/25/2026",
		},
		{
			name:   "first occurrence wins",
			output: "renew until 08/25/2026 10:30:00 # renew until 12/31/2026 23:59:59",
			want:   time.Date(2026, 8, 25, 10, 30, 0, 0, time.Local),
			ok:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRenewUntil(tt.output)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsRenewal(t *testing.T) {
	tests := []struct {
		name   string
		script []executor.FakeCall
		want   bool
	}{
		{
			name: "deadline within threshold",
			script: []executor.FakeCall{
				{Match: "klist", Result: executor.Result{Code: 0, Output: klistOutput(time.Now().Add(30 * time.Minute))}},
			},
			want: true,
		},
		{
			name: "deadline already past",
			script: []executor.FakeCall{
				{Match: "klist", Result: executor.Result{Code: 0, Output: klistOutput(time.Now().Add(-2 * time.Hour))}},
			},
			want: true,
		},
		{
			name: "deadline far away",
			script: []executor.FakeCall{
				{Match: "klist", Result: executor.Result{Code: 0, Output: klistOutput(time.Now().Add(5 * time.Hour))}},
			},
			want: false,
		},
		{
			name: "cache absent",
			script: []executor.FakeCall{
				{Match: "klist", Result: executor.Result{Code: 1, Output: "klist: No credentials cache found"}},
			},
			want: false,
		},
		{
			name: "unparsable metadata",
			script: []executor.FakeCall{
				{Match: "klist", Result: executor.Result{Code: 0, Output: "renew until tomorrow sometime\n"}},
			},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &executor.Fake{Script: tt.script}
			r := NewRenewer(fake)
			got := r.NeedsRenewal(context.Background(), "/tmp/krb5_cc")
			assert.Equal(t, tt.want, got)

			// the cache path travels as per-invocation env
			require.Len(t, fake.Calls, 1)
			assert.Contains(t, fake.Calls[0].Env, "KRB5CCNAME=/tmp/krb5_cc")
		})
	}
}

func TestRenewTicket(t *testing.T) {
	fake := &executor.Fake{Script: []executor.FakeCall{
		{Match: "kinit -R", Result: executor.Result{Code: 0}},
	}}
	r := NewRenewer(fake)
	r.Trust = func(...string) error { return nil }

	r.RenewTicket(context.Background(), "webapp01$@CONTOSO.COM", "/tmp/krb5_cc")

	require.Len(t, fake.Calls, 1)
	assert.Equal(t, "kinit -R 'webapp01$@CONTOSO.COM'", fake.Calls[0].Line)
	assert.Contains(t, fake.Calls[0].Env, "KRB5CCNAME=/tmp/krb5_cc")
}

func TestRenewTicketDefaultCache(t *testing.T) {
	fake := &executor.Fake{Script: []executor.FakeCall{
		{Match: "kinit -R", Result: executor.Result{Code: 0}},
	}}
	r := NewRenewer(fake)
	r.Trust = func(...string) error { return nil }
	r.RenewTicket(context.Background(), "webapp01$@CONTOSO.COM", "")

	require.Len(t, fake.Calls, 1)
	assert.Empty(t, fake.Calls[0].Env)
}

func TestRenewTicketUntrustedTool(t *testing.T) {
	fake := &executor.Fake{}
	r := NewRenewer(fake)
	r.Trust = func(...string) error { return executor.ErrUntrustedTool }
	r.RenewTicket(context.Background(), "webapp01$@CONTOSO.COM", "/tmp/krb5_cc")

	assert.Empty(t, fake.Calls)
}
