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
	"os"
	"path/filepath"
	"strings"

	uuid "github.com/nu7hatch/gouuid"
	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
)

const (
	// ccNameMarker identifies ticket cache files inside a lease directory.
	ccNameMarker = "ccname"

	ccNamePrefix = "ccname_"

	leaseDirMode = 0700
)

// Store owns the on-disk lease directory layout: one directory per lease
// under the kerberos files root, each holding that lease's ticket caches. No
// cache outside a lease's directory belongs to the lease.
type Store struct {
	exec executor.Executor
}

func NewStore(exec executor.Executor) *Store {
	return &Store{exec: exec}
}

// GenerateLeaseID returns a fresh 10-character lease identifier.
func GenerateLeaseID() (string, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", u[0:5]), nil
}

// CreateLeaseDir creates the directory owned by leaseID and returns its path.
// Lease directories only ever come into existence through ticket issuance.
func (s *Store) CreateLeaseDir(krbFilesDir, leaseID string) (string, error) {
	dir := filepath.Join(krbFilesDir, leaseID)
	if err := os.MkdirAll(dir, leaseDirMode); err != nil {
		return "", fmt.Errorf("creating lease dir %s: %v", dir, err)
	}
	return dir, nil
}

// TicketCachePath returns the cache file path for an account's ticket within
// a lease directory.
func TicketCachePath(krbFilesDir, leaseID, gmsaAccountName string) string {
	return filepath.Join(krbFilesDir, leaseID, ccNamePrefix+gmsaAccountName)
}

// DeleteLeaseTickets destroys every ticket cache belonging to leaseID and
// removes the lease directory tree. The returned names are the caches whose
// credentials were destroyed; a partial result is a valid outcome when
// individual kdestroy calls fail. Empty arguments are a no-op.
func (s *Store) DeleteLeaseTickets(ctx context.Context, krbFilesDir, leaseID string) []string {
	deleted := []string{}
	if krbFilesDir == "" || leaseID == "" {
		return deleted
	}

	leaseDir := filepath.Join(krbFilesDir, leaseID)
	entries, err := os.ReadDir(leaseDir)
	if err != nil {
		klog.Errorf("reading lease dir %s: %v", leaseDir, err)
		return deleted
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.Contains(name, ccNameMarker) {
			continue
		}
		ccPath := filepath.Join(leaseDir, name)
		res := s.exec.Run(ctx, executor.Command{
			Line: "kdestroy",
			Env:  []string{"KRB5CCNAME=" + ccPath},
		})
		if res.Code != 0 {
			klog.Warningf("kdestroy for %s exited %d", ccPath, res.Code)
			continue
		}
		deleted = append(deleted, name)
	}

	// the directory tree goes away regardless of individual destroy results
	if err := os.RemoveAll(leaseDir); err != nil {
		klog.Errorf("removing lease dir %s: %v", leaseDir, err)
	}
	return deleted
}
