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

// Package gmsa retrieves the managed password of a group-Managed Service
// Account from the directory over the existing machine credential.
package gmsa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/resolver"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/secret"
)

// ErrDirectoryQuery reports a failed directory search or a search result
// without the managed-password attribute.
var ErrDirectoryQuery = errors.New("directory query failed")

const (
	// managedPasswordAttr marks the base64 attribute value in ldapsearch
	// output. The trailing double colon means base64 encoding in LDIF.
	managedPasswordAttr = "msDS-ManagedPassword::"

	// recordDelimiter separates comment/attribute sections in the output.
	recordDelimiter = "#"
)

// Retriever issues directory searches for gMSA objects.
type Retriever struct {
	exec     executor.Executor
	resolver *resolver.Resolver
}

func NewRetriever(exec executor.Executor, res *resolver.Resolver) *Retriever {
	return &Retriever{exec: exec, resolver: res}
}

// DistinguishedName builds the base DN from dot-separated domain components,
// e.g. contoso.com -> DC=contoso,DC=com.
func DistinguishedName(domainName string) string {
	segs := strings.Split(domainName, ".")
	for i, s := range segs {
		segs[i] = "DC=" + s
	}
	return strings.Join(segs, ",")
}

// FetchManagedPassword resolves a domain controller, searches the gMSA object
// and decodes its msDS-ManagedPassword attribute into a secure buffer. The
// caller owns the buffer and must Close it once the password is consumed.
func (r *Retriever) FetchManagedPassword(ctx context.Context, domainName, gmsaAccountName string) (*secret.Buffer, error) {
	if domainName == "" || gmsaAccountName == "" {
		return nil, fmt.Errorf("%w: empty domain or account name", ErrDirectoryQuery)
	}

	dc, err := r.resolver.ResolveDomainController(ctx, domainName)
	if err != nil {
		return nil, err
	}

	cmd := fmt.Sprintf("ldapsearch -H ldap://%s -b 'CN=%s,CN=Managed Service Accounts,%s'"+
		" -s sub \"(objectClass=msDs-GroupManagedServiceAccount)\" msDS-ManagedPassword",
		dc.FQDN, gmsaAccountName, DistinguishedName(domainName))
	klog.Infof("searching managed password: %s", cmd)

	res := r.exec.Run(ctx, executor.Command{Line: cmd})
	if res.Code != 0 {
		return nil, fmt.Errorf("%w: ldapsearch exited %d", ErrDirectoryQuery, res.Code)
	}

	encoded, ok := extractManagedPassword(res.Output)
	if !ok {
		return nil, fmt.Errorf("%w: managed password not found for %s", ErrDirectoryQuery, gmsaAccountName)
	}
	return secret.DecodeBase64(encoded)
}

// extractManagedPassword locates the base64 managed-password value in raw
// ldapsearch output. Pure text processing, no tool invocation.
func extractManagedPassword(output string) (string, bool) {
	for _, record := range strings.Split(output, recordDelimiter) {
		idx := strings.Index(record, managedPasswordAttr)
		if idx < 0 {
			continue
		}
		value := record[idx+len(managedPasswordAttr):]
		// the value runs to the next attribute line, if any
		if end := strings.Index(value, "\n\n"); end >= 0 {
			value = value[:end]
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		return value, true
	}
	return "", false
}
