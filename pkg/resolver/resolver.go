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

package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
)

// ErrResolution reports that domain, DNS or principal resolution could not
// produce a usable result. Retried only by the caller's cadence.
var ErrResolution = errors.New("domain resolution failed")

const DefaultKrb5Config = "/etc/krb5.conf"

const (
	hostnameCmd   = `hostname -s | tr -d '\n'`
	realmNameCmd  = `realm list | grep 'realm-name' | cut -f2 -d: | tr -d ' ' | tr -d '\n'`
	domainNameCmd = `realm list | grep 'domain-name' | cut -f2 -d: | tr -d ' ' | tr -d '\n'`
)

// MachinePrincipal identifies the domain-joined host. Derived fresh on every
// ticket-issuance attempt, never cached across restarts.
type MachinePrincipal struct {
	Hostname string
	Realm    string
}

// Principal returns the keytab principal, e.g. EC2AMAZ-Q5VJZQ$@CONTOSO.COM.
func (p MachinePrincipal) Principal() string {
	return p.Hostname + "$@" + strings.ToUpper(p.Realm)
}

// DomainControllerEndpoint is a reachable DC for a domain. The FQDN always
// contains the domain name as a suffix. Recomputed on every issuance.
type DomainControllerEndpoint struct {
	Domain string
	FQDN   string
}

// Resolver determines the machine principal and reachable domain controllers
// through the realmd and DNS trust tooling.
type Resolver struct {
	exec executor.Executor

	// Krb5ConfPath is consulted for libdefaults default_realm when realmd
	// reports no realm. Defaults to $KRB5_CONFIG or /etc/krb5.conf.
	Krb5ConfPath string
}

func New(exec executor.Executor) *Resolver {
	confPath := os.Getenv("KRB5_CONFIG")
	if confPath == "" {
		confPath = DefaultKrb5Config
	}
	return &Resolver{exec: exec, Krb5ConfPath: confPath}
}

// ResolveMachinePrincipal queries the host name and realm membership and
// fails when the host is joined to a different domain than domainName.
func (r *Resolver) ResolveMachinePrincipal(ctx context.Context, domainName string) (MachinePrincipal, error) {
	hostname := r.exec.Run(ctx, executor.Command{Line: hostnameCmd})
	if hostname.Code != 0 {
		return MachinePrincipal{}, fmt.Errorf("%w: hostname exited %d", ErrResolution, hostname.Code)
	}

	realm := r.exec.Run(ctx, executor.Command{Line: realmNameCmd})
	if realm.Code != 0 {
		return MachinePrincipal{}, fmt.Errorf("%w: realm list exited %d", ErrResolution, realm.Code)
	}
	realmName := strings.TrimSpace(realm.Output)
	if realmName == "" {
		realmName = r.defaultRealmFromConfig()
	}
	if realmName == "" {
		return MachinePrincipal{}, fmt.Errorf("%w: host is not joined to any realm", ErrResolution)
	}

	joined := r.exec.Run(ctx, executor.Command{Line: domainNameCmd})
	joinedDomain := strings.TrimSpace(joined.Output)
	if joined.Code != 0 || !strings.EqualFold(joinedDomain, domainName) {
		return MachinePrincipal{}, fmt.Errorf("%w: host joined to %q, expected %q",
			ErrResolution, joinedDomain, domainName)
	}

	return MachinePrincipal{
		Hostname: strings.TrimSpace(hostname.Output),
		Realm:    realmName,
	}, nil
}

func (r *Resolver) defaultRealmFromConfig() string {
	cfg, err := krb5config.Load(r.Krb5ConfPath)
	if err != nil {
		klog.V(4).Infof("no default realm from %s: %v", r.Krb5ConfPath, err)
		return ""
	}
	return cfg.LibDefaults.DefaultRealm
}

// ResolveDomainController forward-resolves domainName to candidate IPs, then
// reverse-resolves each until a name containing domainName is found. Names
// like ip-10-0-0-162.us-west-1.compute.internal never contain the domain and
// are rejected by the substring rule. First acceptable candidate wins.
func (r *Resolver) ResolveDomainController(ctx context.Context, domainName string) (DomainControllerEndpoint, error) {
	fwd := r.exec.Run(ctx, executor.Command{
		Line: fmt.Sprintf("dig +noall +answer %s | awk '{ print $5 }'", domainName),
	})
	if fwd.Code != 0 {
		return DomainControllerEndpoint{}, fmt.Errorf("%w: cannot resolve IPs of %s", ErrResolution, domainName)
	}

	for _, ip := range strings.Split(fwd.Output, "\n") {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		fqdn, ok := r.reverseLookup(ctx, ip, domainName)
		if ok {
			return DomainControllerEndpoint{Domain: domainName, FQDN: fqdn}, nil
		}
	}
	return DomainControllerEndpoint{}, fmt.Errorf("%w: no domain controller found for %s", ErrResolution, domainName)
}

func (r *Resolver) reverseLookup(ctx context.Context, ip, domainName string) (string, bool) {
	rev := r.exec.Run(ctx, executor.Command{
		Line: fmt.Sprintf("dig -x %s +noall +answer +short", ip),
	})
	if rev.Code != 0 {
		return "", false
	}

	for _, line := range strings.Split(rev.Output, "\n") {
		name := strings.TrimSuffix(strings.TrimSpace(line), ".")
		if name == "" {
			continue
		}
		// The answer section repeats the bare domain; only host names
		// such as win-cqec6o8gd7i.contoso.com are usable endpoints.
		if strings.HasPrefix(name, domainName) {
			continue
		}
		if strings.Contains(name, domainName) {
			return name, true
		}
	}
	return "", false
}
