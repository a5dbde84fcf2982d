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
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
)

func writeLease(t *testing.T, krbFilesDir, leaseID string, names ...string) {
	t.Helper()
	dir := filepath.Join(krbFilesDir, leaseID)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("cache"), 0o600))
	}
}

func TestDeleteLeaseTicketsEmptyArgs(t *testing.T) {
	krbFilesDir := t.TempDir()
	writeLease(t, krbFilesDir, "lease1", "ccname_1")
	fake := &executor.Fake{}
	s := NewStore(fake)

	assert.Empty(t, s.DeleteLeaseTickets(context.Background(), "", "lease1"))
	assert.Empty(t, s.DeleteLeaseTickets(context.Background(), krbFilesDir, ""))

	// no filesystem mutation and no tool invocation happened
	assert.Empty(t, fake.Calls)
	_, err := os.Stat(filepath.Join(krbFilesDir, "lease1", "ccname_1"))
	assert.NoError(t, err)
}

func TestDeleteLeaseTicketsPartialFailure(t *testing.T) {
	krbFilesDir := t.TempDir()
	writeLease(t, krbFilesDir, "abc123", "ccname_1", "ccname_2", "notes.txt")

	fake := &executor.Fake{Script: []executor.FakeCall{
		{Match: "ccname_1", Result: executor.Result{Code: 0}},
		{Match: "ccname_2", Result: executor.Result{Code: 1, Output: "kdestroy: No credentials cache found"}},
	}}
	s := NewStore(fake)

	deleted := s.DeleteLeaseTickets(context.Background(), krbFilesDir, "abc123")

	// exactly the successful destroy is reported
	assert.Equal(t, []string{"ccname_1"}, deleted)

	// the lease directory is gone regardless of the failed destroy
	_, err := os.Stat(filepath.Join(krbFilesDir, "abc123"))
	assert.True(t, os.IsNotExist(err))

	// kdestroy ran only against cache files, not notes.txt
	assert.Len(t, fake.Calls, 2)
	for _, c := range fake.Calls {
		assert.Equal(t, "kdestroy", c.Line)
		assert.NotContains(t, c.Env[0], "notes.txt")
	}
}

func TestDeleteLeaseTicketsMissingLeaseDir(t *testing.T) {
	fake := &executor.Fake{}
	s := NewStore(fake)
	deleted := s.DeleteLeaseTickets(context.Background(), t.TempDir(), "no-such-lease")
	assert.Empty(t, deleted)
	assert.Empty(t, fake.Calls)
}

func TestCreateLeaseDir(t *testing.T) {
	krbFilesDir := t.TempDir()
	s := NewStore(&executor.Fake{})

	dir, err := s.CreateLeaseDir(krbFilesDir, "abc123")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(krbFilesDir, "abc123"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestTicketCachePath(t *testing.T) {
	got := TicketCachePath("/var/credentials_fetcher/krb_dir", "abc123", "webapp01")
	assert.Equal(t, "/var/credentials_fetcher/krb_dir/abc123/ccname_webapp01", got)
}

func TestGenerateLeaseID(t *testing.T) {
	a, err := GenerateLeaseID()
	require.NoError(t, err)
	b, err := GenerateLeaseID()
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{10}$`), a)
	assert.NotEqual(t, a, b)
}
