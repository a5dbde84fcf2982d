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

// Package engine wires the lifecycle components together and tracks which
// ticket caches belong to which lease.
package engine

import (
	"context"
	"os"
	"sync"

	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/ticket"
)

// TicketInfo describes one issued ticket cache and the identity it was
// issued for. A cache is associated with exactly one (lease, principal) pair.
type TicketInfo struct {
	Domain    string
	Account   string
	Principal string
	CcPath    string
}

// SweepResult summarizes one renewal pass over all registered tickets.
type SweepResult struct {
	Checked  int
	Renewed  int
	Reissued int
	Failed   int
}

// Engine sequences domain resolution, password retrieval, issuance, renewal
// and teardown. Operations on different leases may run concurrently from the
// caller; the registry is the only shared state and is mutex guarded. The
// ticket cache path travels as an explicit per-invocation parameter, never as
// process-global environment.
type Engine struct {
	issuer  *ticket.Issuer
	renewer *ticket.Renewer
	store   *ticket.Store

	krbFilesDir string

	mtx    sync.Mutex
	leases map[string][]TicketInfo
}

func New(issuer *ticket.Issuer, renewer *ticket.Renewer, store *ticket.Store, krbFilesDir string) *Engine {
	return &Engine{
		issuer:      issuer,
		renewer:     renewer,
		store:       store,
		krbFilesDir: krbFilesDir,
		leases:      map[string][]TicketInfo{},
	}
}

// CreateLease allocates a lease id and issues the first ticket under it.
// Returns the lease id and the ticket cache path.
func (e *Engine) CreateLease(ctx context.Context, domainName, gmsaAccountName string) (string, string, error) {
	leaseID, err := ticket.GenerateLeaseID()
	if err != nil {
		return "", "", err
	}
	ccPath, err := e.AddTicketToLease(ctx, domainName, gmsaAccountName, leaseID)
	if err != nil {
		return "", "", err
	}
	return leaseID, ccPath, nil
}

// AddTicketToLease issues a ticket for the account into leaseID's directory
// and registers it. Resolution precedes retrieval precedes issuance; a
// failure at any step leaves no registered ticket.
func (e *Engine) AddTicketToLease(ctx context.Context, domainName, gmsaAccountName, leaseID string) (string, error) {
	if _, err := e.store.CreateLeaseDir(e.krbFilesDir, leaseID); err != nil {
		return "", err
	}
	ccPath := ticket.TicketCachePath(e.krbFilesDir, leaseID, gmsaAccountName)
	if err := e.issuer.IssueTicket(ctx, domainName, gmsaAccountName, ccPath); err != nil {
		return "", err
	}

	info := TicketInfo{
		Domain:    domainName,
		Account:   gmsaAccountName,
		Principal: ticket.DefaultPrincipal(domainName, gmsaAccountName),
		CcPath:    ccPath,
	}
	e.mtx.Lock()
	e.leases[leaseID] = append(e.leases[leaseID], info)
	e.mtx.Unlock()
	return ccPath, nil
}

// DeleteLease destroys the lease's ticket caches, removes its directory tree
// and unregisters it. Returns the cache names actually destroyed.
func (e *Engine) DeleteLease(ctx context.Context, leaseID string) []string {
	deleted := e.store.DeleteLeaseTickets(ctx, e.krbFilesDir, leaseID)
	e.mtx.Lock()
	delete(e.leases, leaseID)
	e.mtx.Unlock()
	return deleted
}

// Leases returns a snapshot of the registry.
func (e *Engine) Leases() map[string][]TicketInfo {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	snapshot := make(map[string][]TicketInfo, len(e.leases))
	for id, tickets := range e.leases {
		snapshot[id] = append([]TicketInfo(nil), tickets...)
	}
	return snapshot
}

// RenewAll walks every registered ticket once: a missing cache file is fully
// reissued from the managed password, a ticket within the renewal threshold
// is renewed in place, anything else is left alone.
func (e *Engine) RenewAll(ctx context.Context) SweepResult {
	var result SweepResult
	for leaseID, tickets := range e.Leases() {
		for _, t := range tickets {
			result.Checked++
			if _, err := os.Stat(t.CcPath); err != nil {
				if err := e.issuer.IssueTicket(ctx, t.Domain, t.Account, t.CcPath); err != nil {
					klog.Errorf("reissuing %s for lease %s: %v", t.CcPath, leaseID, err)
					result.Failed++
					continue
				}
				result.Reissued++
				continue
			}
			if e.renewer.NeedsRenewal(ctx, t.CcPath) {
				e.renewer.RenewTicket(ctx, t.Principal, t.CcPath)
				result.Renewed++
			}
		}
	}
	return result
}
