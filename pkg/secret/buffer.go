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

// Package secret holds password material in buffers that are explicitly
// zeroed before release, and parses the directory's managed-password blob.
package secret

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrDecode reports a failed base64 decode or secure-buffer allocation.
var ErrDecode = errors.New("managed password decode failed")

// Buffer owns sensitive bytes. It is never reallocated after creation, so no
// intermediate copy of the secret is left behind by container growth. Close
// zeroes the contents; the buffer is exclusively owned by the single call
// chain that created it and must not be referenced afterwards.
type Buffer struct {
	b []byte
}

func NewBuffer(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

// Bytes returns the underlying storage without copying.
func (s *Buffer) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

func (s *Buffer) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Truncate zeroes the tail beyond n and shrinks the buffer to n bytes.
func (s *Buffer) Truncate(n int) {
	if s == nil || n >= len(s.b) {
		return
	}
	tail := s.b[n:]
	for i := range tail {
		tail[i] = 0
	}
	s.b = s.b[:n]
}

// Close zeroes the contents and drops the reference. Safe to call twice and
// safe to defer on every exit path.
func (s *Buffer) Close() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// DecodeBase64 decodes encoded directly into a fresh secure buffer sized to
// the decoded length. ldapsearch folds long attribute values over several
// lines, so whitespace inside the value is stripped first.
func DecodeBase64(encoded string) (*Buffer, error) {
	encoded = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	buf := NewBuffer(base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(buf.b, []byte(encoded))
	if err != nil {
		buf.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if n == 0 {
		buf.Close()
		return nil, fmt.Errorf("%w: decoded to zero bytes", ErrDecode)
	}
	buf.Truncate(n)
	return buf, nil
}
