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

// Package ticket drives the Kerberos ticket lifecycle: issuance from the gMSA
// managed password or the machine keytab, renewal decisions, renewal, and
// per-lease ticket cache teardown.
package ticket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"k8s.io/klog/v2"

	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/executor"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/resolver"
	"github.com/SergeyDuvanskiy/credentials-fetcher/pkg/secret"
)

// ErrIssuance reports that kinit could not be started or exited non-zero.
var ErrIssuance = errors.New("ticket issuance failed")

const defaultKeytabPath = "/etc/krb5.keytab"

// PasswordFetcher yields the gMSA managed password as a secure buffer.
type PasswordFetcher interface {
	FetchManagedPassword(ctx context.Context, domainName, gmsaAccountName string) (*secret.Buffer, error)
}

// Issuer converts managed passwords and machine keytabs into ticket caches.
type Issuer struct {
	exec  executor.Executor
	res   *resolver.Resolver
	fetch PasswordFetcher

	// Trust verifies the trust tooling before it is invoked. Replaceable in
	// tests; defaults to executor.CheckTrusted.
	Trust func(names ...string) error
}

func NewIssuer(exec executor.Executor, res *resolver.Resolver, fetch PasswordFetcher) *Issuer {
	return &Issuer{exec: exec, res: res, fetch: fetch, Trust: executor.CheckTrusted}
}

// DefaultPrincipal builds the gMSA principal, e.g. webapp01$@CONTOSO.COM.
func DefaultPrincipal(domainName, gmsaAccountName string) string {
	return gmsaAccountName + "$@" + strings.ToUpper(domainName)
}

// IssueTicket fetches the managed password of the gMSA account and feeds its
// current password into kinit, producing a ticket cache at krbCcName. The
// decoded password is zeroed and released on every exit path.
func (i *Issuer) IssueTicket(ctx context.Context, domainName, gmsaAccountName, krbCcName string) error {
	if domainName == "" || gmsaAccountName == "" || krbCcName == "" {
		return fmt.Errorf("%w: empty domain, account or cache name", ErrIssuance)
	}
	if err := i.Trust("kinit", "ldapsearch", "dig"); err != nil {
		return err
	}

	blob, err := i.fetch.FetchManagedPassword(ctx, domainName, gmsaAccountName)
	if err != nil {
		return err
	}
	defer blob.Close()

	mp, err := secret.ParseManagedPasswordBlob(blob)
	if err != nil {
		return err
	}

	password, err := decodePassword(mp.CurrentPassword())
	if err != nil {
		return err
	}
	defer password.Close()

	principal := DefaultPrincipal(domainName, gmsaAccountName)
	line := fmt.Sprintf("kinit -c %s -V '%s'", krbCcName, principal)
	klog.Infof("issuing gMSA ticket: %s", line)

	res := i.exec.Run(ctx, executor.Command{Line: line, Stdin: bytes.NewReader(password.Bytes())})
	klog.Infof("kinit exit status %d for %s", res.Code, krbCcName)
	if res.Code != 0 {
		return fmt.Errorf("%w: kinit exited %d", ErrIssuance, res.Code)
	}
	return nil
}

// IssueMachineTicket issues the host's own ticket from the machine keytab.
// No secret blob is involved; the keytab stays on disk.
func (i *Issuer) IssueMachineTicket(ctx context.Context, domainName string) error {
	if err := i.Trust("hostname", "realm", "kinit", "ldapsearch"); err != nil {
		return err
	}

	mp, err := i.res.ResolveMachinePrincipal(ctx, domainName)
	if err != nil {
		klog.Errorf("invalid machine principal: %v", err)
		return err
	}

	line := fmt.Sprintf("kinit -kt %s '%s'", defaultKeytabPath, strings.ToUpper(mp.Principal()))
	res := i.exec.Run(ctx, executor.Command{Line: line})
	if res.Code != 0 {
		return fmt.Errorf("%w: kinit -kt exited %d", ErrIssuance, res.Code)
	}
	return nil
}

// decodePassword converts the fixed-width UTF-16LE password field into its
// narrow form for kinit. The result lives in a secure buffer; the UTF-16
// source stays aliased into the caller's blob and is zeroed with it.
func decodePassword(utf16le []byte) (*secret.Buffer, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

	// UTF-8 needs at most twice the UTF-16 byte length
	out := secret.NewBuffer(len(utf16le) * 2)
	nDst, nSrc, err := dec.Transform(out.Bytes(), utf16le, true)
	if err != nil || nSrc != len(utf16le) {
		out.Close()
		return nil, fmt.Errorf("%w: utf16 decode: %v", ErrIssuance, err)
	}
	out.Truncate(nDst)
	return out, nil
}
