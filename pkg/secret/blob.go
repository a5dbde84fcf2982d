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

package secret

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformedBlob reports a managed-password blob too small or inconsistent
// to expose its password fields.
var ErrMalformedBlob = errors.New("malformed managed password blob")

// MSDS-MANAGEDPASSWORD_BLOB layout (MS-ADTS 2.2.19), all fields little
// endian. The offsets are load-bearing and must match the directory's
// published attribute format byte for byte.
const (
	blobVersionOffset            = 0
	blobLengthOffset             = 4
	blobCurrentPwdOffsetField    = 8
	blobPreviousPwdOffsetField   = 10
	blobQueryIntervalOffsetField = 12
	blobUnchangedOffsetField     = 14
	blobHeaderLen                = 16

	// CurrentPasswordLen is the fixed width in bytes of the UTF-16 encoded
	// current-password field.
	CurrentPasswordLen = 256
)

// ManagedPassword exposes the password fields of a decoded blob. Field
// accessors alias the secure buffer; no password byte is ever copied into
// ordinary memory.
type ManagedPassword struct {
	buf *Buffer

	Version     uint16
	Length      uint32
	currentOff  uint16
	previousOff uint16
	queryOff    uint16
}

// ParseManagedPasswordBlob validates the blob held in buf and computes the
// password field offsets. The buffer stays owned by the caller, who zeroes
// and releases it once the password has been consumed.
func ParseManagedPasswordBlob(buf *Buffer) (*ManagedPassword, error) {
	b := buf.Bytes()
	if len(b) < blobHeaderLen+CurrentPasswordLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d",
			ErrMalformedBlob, len(b), blobHeaderLen+CurrentPasswordLen)
	}

	mp := &ManagedPassword{
		buf:         buf,
		Version:     binary.LittleEndian.Uint16(b[blobVersionOffset:]),
		Length:      binary.LittleEndian.Uint32(b[blobLengthOffset:]),
		currentOff:  binary.LittleEndian.Uint16(b[blobCurrentPwdOffsetField:]),
		previousOff: binary.LittleEndian.Uint16(b[blobPreviousPwdOffsetField:]),
		queryOff:    binary.LittleEndian.Uint16(b[blobQueryIntervalOffsetField:]),
	}
	if int(mp.currentOff)+CurrentPasswordLen > len(b) {
		return nil, fmt.Errorf("%w: current password at offset %d exceeds blob of %d bytes",
			ErrMalformedBlob, mp.currentOff, len(b))
	}
	return mp, nil
}

// CurrentPassword returns the fixed-width UTF-16 current-password field,
// aliased into the secure buffer.
func (m *ManagedPassword) CurrentPassword() []byte {
	return m.buf.Bytes()[m.currentOff : int(m.currentOff)+CurrentPasswordLen]
}

// PreviousPassword returns the previous-password field, or nil when the blob
// carries none. During password rollover both values are live in the
// directory.
func (m *ManagedPassword) PreviousPassword() []byte {
	if m.previousOff == 0 || int(m.previousOff)+CurrentPasswordLen > m.buf.Len() {
		return nil
	}
	return m.buf.Bytes()[m.previousOff : int(m.previousOff)+CurrentPasswordLen]
}

// QueryPasswordInterval returns the remaining validity interval in 100ns
// units, or false when the blob carries none.
func (m *ManagedPassword) QueryPasswordInterval() (uint64, bool) {
	if m.queryOff == 0 || int(m.queryOff)+8 > m.buf.Len() {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.buf.Bytes()[m.queryOff:]), true
}
